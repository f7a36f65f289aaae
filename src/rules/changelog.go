package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ChangelogEntry records one merge outcome. Entries are append-only JSON
// lines so the evolution of a company's rules can be audited after the fact.
type ChangelogEntry struct {
	Timestamp    string `json:"timestamp"`
	Company      string `json:"company"`
	CorrectionID string `json:"correction_id,omitempty"`
	Field        string `json:"field,omitempty"`
	Action       Action `json:"action"`
	Section      string `json:"section,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// Changelog appends merge decisions to a single JSONL file.
type Changelog struct {
	path string
	mu   sync.Mutex
}

func NewChangelog(path string) *Changelog {
	return &Changelog{path: path}
}

// Record appends one entry. Failures are returned, not fatal: a lost
// changelog line must never abort the merge that produced it.
func (c *Changelog) Record(entry ChangelogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal changelog entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create changelog directory: %w", err)
		}
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open changelog: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write changelog entry: %w", err)
	}
	return nil
}

// Read returns every recorded entry, oldest first. Intended for tests and
// admin inspection, not the hot path.
func (c *Changelog) Read() ([]ChangelogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}

	var entries []ChangelogEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e ChangelogEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("failed to decode changelog entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
