package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Chunking.BlockSize != 12500 || cfg.Chunking.Overlap != 500 || cfg.Chunking.MinChars != 100 {
		t.Fatalf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Oversample != 2 || cfg.Retrieval.SimilarityThreshold != 0.5 {
		t.Fatalf("retrieval defaults = %+v", cfg.Retrieval)
	}
	if cfg.Provider.Dimensions != 768 || cfg.Provider.MaxRetries != 3 {
		t.Fatalf("provider defaults = %+v", cfg.Provider)
	}
	if len(cfg.SciHub.Mirrors) == 0 {
		t.Fatal("no default mirrors")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paperbot.toml")
	content := `
root_dir = "papers"

[chunking]
block_size = 4000

[retrieval]
top_k = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIREWORKS_API_KEY", "key-from-env")
	t.Setenv("PAPERBOT_ROOT_DIR", "env-papers")
	t.Setenv("PAPERBOT_TOP_K", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chunking.BlockSize != 4000 {
		t.Fatalf("block size = %d, want file value 4000", cfg.Chunking.BlockSize)
	}
	if cfg.Chunking.Overlap != 500 {
		t.Fatalf("overlap = %d, want default 500", cfg.Chunking.Overlap)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Fatalf("top_k = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.RootDir != "env-papers" {
		t.Fatalf("root dir = %q, env must win over file", cfg.RootDir)
	}
	if cfg.Provider.APIKey != "key-from-env" {
		t.Fatalf("api key = %q", cfg.Provider.APIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FIREWORKS_API_KEY", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chunking.BlockSize != 12500 {
		t.Fatalf("block size = %d, want default", cfg.Chunking.BlockSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "k"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missingKey := cfg
	missingKey.Provider.APIKey = ""
	if err := Validate(missingKey); err == nil {
		t.Fatal("missing API key accepted")
	}

	badOverlap := cfg
	badOverlap.Chunking.Overlap = badOverlap.Chunking.BlockSize
	if err := Validate(badOverlap); err == nil {
		t.Fatal("overlap >= block size accepted")
	}
}

func TestSaveFileExcludesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Provider.APIKey = "secret"

	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("empty config file")
	}
	if strings.Contains(string(data), "secret") {
		t.Fatal("API key leaked into the config file")
	}
}
