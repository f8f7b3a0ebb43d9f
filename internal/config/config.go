package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the fully resolved runtime configuration: defaults, then the
// optional TOML file, then environment overrides, in that order.
type Config struct {
	RootDir  string `toml:"root_dir"`
	StateDir string `toml:"state_dir"`

	Provider   Provider   `toml:"provider"`
	Chunking   Chunking   `toml:"chunking"`
	Retrieval  Retrieval  `toml:"retrieval"`
	Generation Generation `toml:"generation"`
	SciHub     SciHub     `toml:"scihub"`
}

type Provider struct {
	BaseURL        string `toml:"base_url"`
	EmbedModel     string `toml:"embed_model"`
	ChatModel      string `toml:"chat_model"`
	Dimensions     int    `toml:"dimensions"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`

	// APIKey is runtime-only: resolved from the environment (optionally via
	// a .env file), never read from or written to the config file.
	APIKey string `toml:"-"`
}

type Chunking struct {
	BlockSize int `toml:"block_size"`
	Overlap   int `toml:"overlap"`
	MinChars  int `toml:"min_chars"`
}

type Retrieval struct {
	TopK int `toml:"top_k"`
	// Oversample multiplies TopK when querying the index so that threshold
	// filtering still leaves enough candidates.
	Oversample int `toml:"oversample"`
	// SimilarityThreshold is a cosine-equivalent floor; candidates below it
	// are dropped. Zero disables filtering.
	SimilarityThreshold float64 `toml:"similarity_threshold"`
}

type Generation struct {
	Temperature        float32 `toml:"temperature"`
	GeneralTemperature float32 `toml:"general_temperature"`
	MaxTokens          int     `toml:"max_tokens"`
	TopP               float32 `toml:"top_p"`
}

type SciHub struct {
	Mirrors        []string `toml:"mirrors"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Default returns the built-in configuration. Block geometry and sampling
// parameters match the corpus the store format was designed around; roughly
// 2500 words per block at five characters per word.
func Default() Config {
	return Config{
		RootDir:  "library",
		StateDir: filepath.Join(".", ".paperbot"),
		Provider: Provider{
			BaseURL:        "https://api.fireworks.ai/inference/v1",
			EmbedModel:     "nomic-ai/nomic-embed-text-v1.5",
			ChatModel:      "accounts/fireworks/models/llama-v3p3-70b-instruct",
			Dimensions:     768,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Chunking: Chunking{
			BlockSize: 12500,
			Overlap:   500,
			MinChars:  100,
		},
		Retrieval: Retrieval{
			TopK:                5,
			Oversample:          2,
			SimilarityThreshold: 0.5,
		},
		Generation: Generation{
			Temperature:        0.2,
			GeneralTemperature: 0.3,
			MaxTokens:          1500,
			TopP:               0.9,
		},
		SciHub: SciHub{
			Mirrors: []string{
				"https://sci-hub.se",
				"https://sci-hub.st",
				"https://sci-hub.ru",
			},
			TimeoutSeconds: 20,
		},
	}
}

// Load resolves the configuration: defaults, then the TOML file at path (if
// it exists), then .env in the working directory, then process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	applyEnv(&cfg)

	return cfg, nil
}

// SaveFile writes the persistable portion of cfg as TOML. The API key is
// deliberately excluded.
func SaveFile(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		closeErr := f.Close()
		_ = os.Remove(tmp)
		return errors.Join(fmt.Errorf("encode config: %w", err), closeErr)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FIREWORKS_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_ROOT_DIR")); v != "" {
		cfg.RootDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_STATE_DIR")); v != "" {
		cfg.StateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_EMBED_MODEL")); v != "" {
		cfg.Provider.EmbedModel = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_CHAT_MODEL")); v != "" {
		cfg.Provider.ChatModel = v
	}
	if v := strings.TrimSpace(os.Getenv("PAPERBOT_TOP_K")); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Retrieval.TopK = k
		}
	}
}

// Validate checks the invariants the rest of the system assumes. A missing
// API key is the one process-fatal startup condition; everything else a run
// can degrade around.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		return errors.New("provider API key is not set (FIREWORKS_API_KEY)")
	}
	if cfg.Chunking.BlockSize <= 0 {
		return errors.New("chunking.block_size must be positive")
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.BlockSize {
		return errors.New("chunking.overlap must be in [0, block_size)")
	}
	if cfg.Provider.Dimensions <= 0 {
		return errors.New("provider.dimensions must be positive")
	}
	if cfg.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be positive")
	}
	return nil
}

// SnapshotPath is the on-disk location of the serialized chunk collection.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.StateDir, "chunks.gob")
}

// IndexPath is the on-disk location of the serialized vector index.
func (c Config) IndexPath() string {
	return filepath.Join(c.StateDir, "vectors.gob")
}
