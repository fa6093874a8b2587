package librarymodule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/events"
	"github.com/mondominator/audiora/internal/metadata"
	"github.com/mondominator/audiora/internal/utils"
)

// stubExtractor fabricates metadata from the file name so tests do not need
// real audio containers. Paths listed in fail return an extraction error.
type stubExtractor struct {
	fail map[string]bool
}

func (s *stubExtractor) Extract(path string) (*metadata.Metadata, error) {
	base := filepath.Base(path)
	if s.fail[base] {
		return nil, errors.New("unreadable tags")
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return &metadata.Metadata{
		Title:    stem,
		Author:   "Test Author",
		Narrator: "Test Narrator",
		Duration: 3600,
		Format:   strings.TrimPrefix(filepath.Ext(base), "."),
	}, nil
}

// fakeLocker is a trivial DirectoryLocker for scanner tests.
type fakeLocker struct {
	locked map[string]bool
}

func (f *fakeLocker) IsLocked(dir string) bool { return f.locked[dir] }

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.Audiobook{}))
	return db
}

func newTestScanner(t *testing.T, db *gorm.DB, extractor metadata.Extractor, locker DirectoryLocker) (*Scanner, *events.Bus) {
	bus := events.NewBus(hclog.NewNullLogger(), 256, 100)
	t.Cleanup(bus.Close)
	if locker == nil {
		locker = &fakeLocker{locked: map[string]bool{}}
	}
	return NewScanner(hclog.NewNullLogger(), NewPathRegistry(db), extractor, locker, bus, false), bus
}

func writeAudioFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio bytes"), 0o644))
	return path
}

func countBooks(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&database.Audiobook{}).Count(&count).Error)
	return count
}

func TestScanner_ScanIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	writeAudioFile(t, root, "Author One/Book One/part1.mp3")
	writeAudioFile(t, root, "Author Two/Book Two/book.m4b")
	writeAudioFile(t, root, "notes.txt") // not audio, ignored

	scanner, _ := newTestScanner(t, db, &stubExtractor{}, nil)

	stats, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.FilesImported)
	assert.Equal(t, int64(2), countBooks(t, db))

	// Second pass over an unchanged tree imports nothing.
	stats, err = scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.FilesImported)
	assert.Equal(t, int64(2), stats.FilesSkipped)
	assert.Equal(t, int64(2), countBooks(t, db))
}

func TestScanner_SkipsLockedDirectoryUntilReleased(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	lockedFile := writeAudioFile(t, root, "Locked Author/Locked Book/book.mp3")
	writeAudioFile(t, root, "Free Author/Free Book/book.mp3")

	locker := &fakeLocker{locked: map[string]bool{filepath.Dir(lockedFile): true}}
	scanner, _ := newTestScanner(t, db, &stubExtractor{}, locker)

	stats, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FilesImported)

	var count int64
	require.NoError(t, db.Model(&database.Audiobook{}).Where("path = ?", lockedFile).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// After release a subsequent scan imports the deferred file.
	locker.locked = map[string]bool{}
	stats, err = scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FilesImported)
	require.NoError(t, db.Model(&database.Audiobook{}).Where("path = ?", lockedFile).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestScanner_ExtractionFailureDoesNotAbortWalk(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	writeAudioFile(t, root, "A/bad.mp3")
	writeAudioFile(t, root, "B/good.mp3")

	scanner, _ := newTestScanner(t, db, &stubExtractor{fail: map[string]bool{"bad.mp3": true}}, nil)

	stats, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FilesImported)
	assert.Equal(t, int64(1), stats.FilesErrored)

	// The bad file stays un-imported and a later scan retries it.
	assert.Equal(t, int64(1), countBooks(t, db))
}

func TestScanner_SkipsConversionArtifacts(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	writeAudioFile(t, root, "A/book.mp3")
	// A crashed conversion leaves a temp-suffixed artifact; never import it.
	path := filepath.Join(root, "A", "book.m4b"+utils.TempSuffix)
	require.NoError(t, os.WriteFile(path, []byte("half converted"), 0o644))

	scanner, _ := newTestScanner(t, db, &stubExtractor{}, nil)

	stats, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FilesImported)
	assert.Equal(t, int64(1), countBooks(t, db))
}

func TestScanner_PublishesLibraryUpdate(t *testing.T) {
	db := setupTestDB(t)
	root := t.TempDir()
	writeAudioFile(t, root, "A/book.mp3")

	scanner, bus := newTestScanner(t, db, &stubExtractor{}, nil)
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub.ID)

	_, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)

	select {
	case ev := <-sub.C:
		assert.Equal(t, events.EventLibraryUpdate, ev.Type)
		assert.NotNil(t, ev.Data["audiobook_id"])
	default:
		t.Fatal("expected a library.update event")
	}
}
