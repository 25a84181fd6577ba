package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir_FlattensNestedKeys(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "es.yaml", `
es:
  flow:
    welcome: "Hola"
    provider:
      detail: "Detalle de %s"
`)

	catalog, err := LoadDir(dir, "es")
	require.NoError(t, err)

	tr := catalog.Translator("es")
	assert.Equal(t, "Hola", tr.T("flow.welcome"))
	assert.Equal(t, "Detalle de %s", tr.T("flow.provider.detail"))
}

func TestLoadDir_MergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "es.yaml", "es:\n  flow:\n    welcome: Hola\n")
	writeCatalog(t, dir, "en.yml", "en:\n  flow:\n    welcome: Hello\n")
	writeCatalog(t, dir, "notes.txt", "ignored")

	catalog, err := LoadDir(dir, "es")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"es", "en"}, catalog.Languages())
	assert.Equal(t, "Hello", catalog.Translator("en").T("flow.welcome"))
}

func TestLoadDir_MissingDefaultLanguage(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "en.yaml", "en:\n  flow:\n    welcome: Hello\n")

	_, err := LoadDir(dir, "es")
	assert.Error(t, err)
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), "es")
	assert.Error(t, err)
}

func TestTranslator_FallbackChain(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "all.yaml", `
es:
  flow:
    welcome: Hola
    goodbye: Adios
en:
  flow:
    welcome: Hello
`)

	catalog, err := LoadDir(dir, "es")
	require.NoError(t, err)

	en := catalog.Translator("en")
	assert.Equal(t, "en", en.Lang())
	assert.Equal(t, "Hello", en.T("flow.welcome"))
	// Missing in en, present in the default language.
	assert.Equal(t, "Adios", en.T("flow.goodbye"))
	// Missing everywhere echoes the key.
	assert.Equal(t, "flow.unknown", en.T("flow.unknown"))

	// Unknown language falls back to the default wholesale.
	assert.Equal(t, "Hola", catalog.Translator("fr").T("flow.welcome"))
	assert.Equal(t, "Hola", catalog.Translator("").T("flow.welcome"))
}

func TestNullTranslatorEchoesKeys(t *testing.T) {
	tr := Null()
	assert.Equal(t, "flow.welcome", tr.T("flow.welcome"))
	assert.Empty(t, tr.T("   "))
	assert.Empty(t, tr.Lang())
}
