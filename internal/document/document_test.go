package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nul bytes", "a\x00b", "ab"},
		{"space runs", "one   two  three", "one two three"},
		{"tabs", "a\t\tb", "a b"},
		{"keeps newlines", "  line one\n\nline   two  ", "line one\n\nline two"},
		{"empty", " \x00 ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nbody"), 0o644))

	text, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nbody", text)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("b.markdown"))
	assert.False(t, Supported("c.docx"))
}
