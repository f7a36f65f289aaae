package rules

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangelogAppendsAndReadsBack(t *testing.T) {
	log := NewChangelog(filepath.Join(t.TempDir(), "nested", "changelog.jsonl"))

	require.NoError(t, log.Record(ChangelogEntry{
		Company: "Acme Holdings",
		Field:   "Administrative Expenses",
		Action:  ActionAppend,
		Section: "OPERATING EXPENSES",
	}))
	require.NoError(t, log.Record(ChangelogEntry{
		Company: "Acme Holdings",
		Action:  ActionDiscard,
		Detail:  "duplicate of existing rule",
	}))

	entries, err := log.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionAppend, entries[0].Action)
	assert.NotEmpty(t, entries[0].Timestamp)
	assert.Equal(t, "duplicate of existing rule", entries[1].Detail)
}

func TestChangelogReadMissingFile(t *testing.T) {
	log := NewChangelog(filepath.Join(t.TempDir(), "never-written.jsonl"))
	entries, err := log.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
