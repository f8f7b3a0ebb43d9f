package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paperbot/internal/model"
)

// Discover walks root recursively and returns every readable PDF as a
// document, sorted by base name so runs are deterministic. Entries that
// cannot be stat'd or hashed (a dangling symlink, a permission problem) are
// logged, skipped, and counted in the second return value so the run
// continues with the rest of the library. The content hash is recomputed on
// every pass; note that skip decisions downstream key on the base name, not
// the hash.
func Discover(ctx context.Context, root string) ([]model.Document, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("library root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("library root %s is not a directory", root)
	}

	var docs []model.Document
	unreadable := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			log.Printf("discover: skipping %s: %v", path, err)
			unreadable++
			return nil
		}
		hash, err := hashFile(path)
		if err != nil {
			log.Printf("discover: skipping %s: %v", path, err)
			unreadable++
			return nil
		}
		docs = append(docs, model.Document{
			Name:        d.Name(),
			AbsPath:     path,
			SizeBytes:   fi.Size(),
			ContentHash: hash,
		})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(docs, func(a, b int) bool { return docs[a].Name < docs[b].Name })
	return docs, unreadable, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
