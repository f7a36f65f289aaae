package oracle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// PromptStore loads prompt templates from .md files so they can be tuned
// without a rebuild. Templates use {name} placeholders.
type PromptStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{dir: dir, cache: make(map[string]string)}
}

// Render loads the named template and substitutes every {key} with its value.
// An unreplaced placeholder is an error: it means the caller and the template
// file drifted apart.
func (p *PromptStore) Render(name string, vars map[string]string) (string, error) {
	tmpl, err := p.load(name)
	if err != nil {
		return "", err
	}

	out := tmpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}

	if leftover := placeholderPattern.FindString(out); leftover != "" {
		return "", fmt.Errorf("prompt %s has unfilled placeholder %s", name, leftover)
	}
	return out, nil
}

// Placeholders are lowercase snake_case tokens; literal JSON braces in the
// prompt text do not match.
var placeholderPattern = regexp.MustCompile(`\{[a-z][a-z0-9_]*\}`)

func (p *PromptStore) load(name string) (string, error) {
	p.mu.RLock()
	cached, ok := p.cache[name]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := os.ReadFile(filepath.Join(p.dir, name+".md"))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}

	p.mu.Lock()
	p.cache[name] = string(data)
	p.mu.Unlock()
	return string(data), nil
}
