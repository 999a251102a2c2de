package processors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/cardiograph/pkg/graph"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadArticleJSON(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "article.json", `{
		"pmid": "12345",
		"title": "Aspirin in acute MI",
		"abstract": "Aspirin treats myocardial infarction.",
		"content": "Full discussion of antiplatelet therapy."
	}`)

	doc, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "12345", doc.ID)
	assert.Equal(t, "Aspirin in acute MI", doc.SourceTitle)
	assert.Equal(t, "pubmed", doc.SourceType)
	assert.Contains(t, doc.Text, "Aspirin in acute MI")
	assert.Contains(t, doc.Text, "Aspirin treats myocardial infarction.")
	assert.Contains(t, doc.Text, "antiplatelet therapy")
}

func TestLoadArticleJSONDefaults(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "bare.json", `{"abstract": "Some abstract."}`)

	doc, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "bare.json", doc.SourceTitle)
	assert.Equal(t, "pubmed", doc.SourceType)
}

func TestLoadArticleJSONInvalid(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "broken.json", "{not json")

	_, err := l.LoadFile(path)
	assert.Error(t, err)
}

func TestLoadPlainText(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "chapter.txt", "The heart has four chambers.")

	doc, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "chapter.txt", doc.SourceTitle)
	assert.Equal(t, "textbook", doc.SourceType)
	assert.Equal(t, "The heart has four chambers.", doc.Text)
}

func TestLoadHTML(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "page.html",
		`<html><head><title>Valvular disease</title></head><body><p>Mitral stenosis narrows the valve.</p></body></html>`)

	doc, err := l.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Valvular disease", doc.SourceTitle)
	assert.Equal(t, "textbook", doc.SourceType)
	assert.Contains(t, doc.Text, "Mitral stenosis narrows the valve.")
}

func TestLoadFileStableID(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()

	path := writeFile(t, dir, "chapter.txt", "The heart has four chambers.")
	first, err := l.LoadFile(path)
	require.NoError(t, err)
	second, err := l.LoadFile(path)
	require.NoError(t, err)

	// Re-running the builder over an unchanged corpus must present the
	// same document IDs, or the store-side dedup never fires.
	assert.Equal(t, first.ID, second.ID)

	other := writeFile(t, dir, "other.txt", "The aorta carries blood.")
	third, err := l.LoadFile(other)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	// Same content under another name still counts as the same document.
	copied := writeFile(t, dir, "copy.txt", "The heart has four chambers.")
	fourth, err := l.LoadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fourth.ID)
}

func TestLoadArticleJSONStableFallbackID(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()
	content := `{"abstract": "Some abstract."}`

	a, err := l.LoadFile(writeFile(t, dir, "a.json", content))
	require.NoError(t, err)
	b, err := l.LoadFile(writeFile(t, dir, "b.json", content))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	l := NewLoader()
	path := writeFile(t, t.TempDir(), "image.png", "not really an image")

	_, err := l.LoadFile(path)
	assert.ErrorIs(t, err, graph.ErrUnsupportedFormat)
}

func TestLoadDirSkipsUnsupported(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "Text one.")
	writeFile(t, dir, "b.md", "Text two.")
	writeFile(t, dir, "ignore.png", "binary")

	docs, err := l.LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
