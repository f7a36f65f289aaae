package oracle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrompt(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), []byte(body), 0o644))
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "classify", "Classify for {company_name}:\n{line_items}\n")

	p := NewPromptStore(dir)
	out, err := p.Render("classify", map[string]string{
		"company_name": "Acme Holdings",
		"line_items":   `"Revenue": 1000`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Classify for Acme Holdings:\n\"Revenue\": 1000\n", out)
}

func TestRenderFailsOnUnfilledPlaceholder(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "classify", "Classify {line_items} for {company_name}.")

	p := NewPromptStore(dir)
	_, err := p.Render("classify", map[string]string{"line_items": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{company_name}")
}

func TestRenderIgnoresLiteralJSONBraces(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "shape", `Respond as {"action": "APPEND", "detail": "..."} for {company_name}.`)

	p := NewPromptStore(dir)
	out, err := p.Render("shape", map[string]string{"company_name": "Acme"})
	require.NoError(t, err)
	assert.Contains(t, out, `{"action": "APPEND"`)
}

func TestRenderMissingTemplate(t *testing.T) {
	p := NewPromptStore(t.TempDir())
	_, err := p.Render("nope", nil)
	assert.Error(t, err)
}
