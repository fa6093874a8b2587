package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMissingFile(t *testing.T) {
	e := NewTagExtractor()
	_, err := e.Extract(filepath.Join(t.TempDir(), "gone.mp3"))
	assert.Error(t, err)
}

func TestExtractEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp3")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	e := NewTagExtractor()
	_, err := e.Extract(path)
	assert.Error(t, err)
}

func TestExtractUnreadableContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not an audio container"), 0o644))

	e := NewTagExtractor()
	_, err := e.Extract(path)
	assert.Error(t, err, "junk bytes carry no tag header")
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "The Hobbit", cleanString("  The   Hobbit "))
	assert.Equal(t, "", cleanString("   "))
	assert.Equal(t, "J. R. R. Tolkien", cleanString("J. R. R.\tTolkien"))
}
