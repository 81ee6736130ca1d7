package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

var ErrQueryNotFound = errors.New("no stored results for query")

// JSONStore keeps one indented JSON array of products per query in Dir.
type JSONStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

func (s *JSONStore) Dir() string {
	return s.dir
}

// Save replaces the file for query with products.
func (s *JSONStore) Save(ctx context.Context, query string, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	filename := s.Path(query)

	// Write to temp file first for atomicity
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpFile, err)
	}

	if err := os.Rename(tmpFile, filename); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmpFile, err)
	}

	return nil
}

// Load returns the stored products for query.
func (s *JSONStore) Load(query string) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products, err := readProducts(s.Path(query))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, query)
	}
	return products, err
}

// LoadAll concatenates every stored result file in filename order. A missing
// directory yields an empty slice.
func (s *JSONStore) LoadAll() ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]models.Product, 0)

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		products, err := readProducts(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, products...)
	}

	return all, nil
}

// Path returns the result file for query.
func (s *JSONStore) Path(query string) string {
	return filepath.Join(s.dir, FileName(query))
}

// FileName maps a query to its result file name: spaces and path separators
// become underscores.
func FileName(query string) string {
	name := strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(strings.TrimSpace(query))
	return name + ".json"
}

func readProducts(path string) ([]models.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return products, nil
}

// Products serves stored results: every file when query is empty, otherwise
// the file for query, or an empty slice when it has none.
func (s *JSONStore) Products(ctx context.Context, query string) ([]models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return s.LoadAll()
	}

	products, err := s.Load(query)
	if errors.Is(err, ErrQueryNotFound) {
		return make([]models.Product, 0), nil
	}
	return products, err
}
