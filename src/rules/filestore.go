package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists one markdown document per company under a base
// directory. Writes go through a temp file plus rename so a crashed write
// never leaves a half-document, and a per-company mutex keeps concurrent
// merges for the same company serialized.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Lock returns the mutex guarding one company's document. Callers hold it
// across the whole read-merge-write cycle.
func (fs *FileStore) Lock(company string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	key := companyFilename(company)
	if fs.locks[key] == nil {
		fs.locks[key] = &sync.Mutex{}
	}
	return fs.locks[key]
}

// Path returns the document path for a company.
func (fs *FileStore) Path(company string) string {
	return filepath.Join(fs.baseDir, companyFilename(company))
}

// Load reads and parses a company's rule document. A missing file yields an
// empty store, not an error: a company with no corrections yet has no rules.
func (fs *FileStore) Load(company string) (*Store, error) {
	data, err := os.ReadFile(fs.Path(company))
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(company), nil
		}
		return nil, fmt.Errorf("failed to read rule store for %s: %w", company, err)
	}
	return ParseMarkdown(company, string(data)), nil
}

// Save writes the full document atomically. The store is validated first so
// a malformed merge result can never clobber a good document on disk.
func (fs *FileStore) Save(store *Store) error {
	if err := store.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid rule store for %s: %w", store.Company, err)
	}

	if err := os.MkdirAll(fs.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create rule store directory: %w", err)
	}

	final := fs.Path(store.Company)
	tmp, err := os.CreateTemp(fs.baseDir, ".rules-*.md.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp rule file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(RenderMarkdown(store)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp rule file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace rule file: %w", err)
	}
	return nil
}

// DocumentFilename returns the stable on-disk filename for a company's rule
// document.
func DocumentFilename(company string) string {
	return companyFilename(company)
}

// companyFilename slugs a company name into a stable filename.
func companyFilename(company string) string {
	slug := strings.ToLower(strings.TrimSpace(company))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_', r == '.':
			return '_'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "company"
	}
	return slug + ".md"
}
