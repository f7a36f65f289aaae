package rules

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/finloader/backend/src/template"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)

	s := NewStore("Acme Holdings, Inc.")
	s.Sections = []Section{{
		Name:  template.SectionOpEx,
		Rules: []Rule{{Text: `The combined "SGA Expenses" line maps to Administrative Expenses.`}},
	}}
	require.NoError(t, fs.Save(s))

	loaded, err := fs.Load("Acme Holdings, Inc.")
	require.NoError(t, err)
	require.Len(t, loaded.Sections, 1)
	assert.Equal(t, template.SectionOpEx, loaded.Sections[0].Name)
	assert.True(t, loaded.ContainsText("SGA Expenses"))

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreLoadMissingIsEmpty(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	s, err := fs.Load("Brand New Co")
	require.NoError(t, err)
	assert.Equal(t, "Brand New Co", s.Company)
	assert.Zero(t, s.RuleCount())
}

func TestFileStoreRefusesInvalidStore(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	s := NewStore("Acme")
	s.Sections = []Section{{Name: template.SectionOpEx}}
	assert.Error(t, fs.Save(s))
}

func TestDocumentFilenameSlug(t *testing.T) {
	assert.Equal(t, "acme_holdings_inc.md", DocumentFilename("Acme Holdings, Inc."))
	assert.Equal(t, "company.md", DocumentFilename("株式会社"))
}
