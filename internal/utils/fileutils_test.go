package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAudioFile(t *testing.T) {
	assert.True(t, IsAudioFile("/library/book.mp3"))
	assert.True(t, IsAudioFile("/library/Book.M4B"))
	assert.True(t, IsAudioFile("book.flac"))
	assert.False(t, IsAudioFile("/library/cover.jpg"))
	assert.False(t, IsAudioFile("/library/notes.txt"))
	assert.False(t, IsAudioFile("/library/book"))
}

func TestIsTempFile(t *testing.T) {
	assert.True(t, IsTempFile("/library/book.m4b"+TempSuffix))
	assert.True(t, IsTempFile("/incoming/book.mp3.part"))
	assert.True(t, IsTempFile("/incoming/book.mp3.crdownload"))
	assert.True(t, IsTempFile("/incoming/book.TMP"))
	assert.False(t, IsTempFile("/incoming/book.mp3"))
}

func TestWaitForStableSizeSettles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio data"), 0o644))

	size, err := WaitForStableSize(path, time.Millisecond, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(len("audio data")), size)
}

func TestWaitForStableSizeGrowingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.mp3")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	// Keep appending so the size never repeats within the attempt budget.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			f.Write([]byte("chunk"))
			f.Sync()
			time.Sleep(2 * time.Millisecond)
		}
	}()

	_, err = WaitForStableSize(path, 2*time.Millisecond, 3)
	assert.Error(t, err)
	<-done
}

func TestWaitForStableSizeMissingFile(t *testing.T) {
	_, err := WaitForStableSize(filepath.Join(t.TempDir(), "gone.mp3"), time.Millisecond, 3)
	assert.Error(t, err)
}

func TestSanitizePathComponent(t *testing.T) {
	assert.Equal(t, "Brandon Sanderson", SanitizePathComponent("  Brandon Sanderson  "))
	assert.Equal(t, "AC-DC", SanitizePathComponent("AC/DC"))
	assert.Equal(t, "Dune - Messiah", SanitizePathComponent("Dune: Messiah"))
	assert.Equal(t, "What If", SanitizePathComponent("What If?"))
	assert.Equal(t, "Unknown", SanitizePathComponent(""))
	assert.Equal(t, "Unknown", SanitizePathComponent("   "))
	assert.Equal(t, "Unknown", SanitizePathComponent("..."))
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "incoming", "book.mp3")
	dst := filepath.Join(dir, "library", "Author", "Title", "book.mp3")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("audio data"), 0o644))

	require.NoError(t, MoveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio data"), data)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be gone after move")
}

func TestMoveFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "gone.mp3"), filepath.Join(dir, "out", "gone.mp3"))
	assert.Error(t, err)
}
