// Package metadata extracts audiobook tags from audio files using dhowden/tag.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Metadata is the structured record extracted from one audiobook file.
type Metadata struct {
	Title          string
	Author         string
	Narrator       string
	Series         string
	SeriesPosition float64
	Duration       int // in seconds, 0 when the container does not carry it
	Format         string
	CoverBytes     []byte
	CoverMIME      string
}

// Extractor turns a file path into a structured metadata record.
// The scanner and watch-folder importer depend on this interface so tests can
// substitute a stub without crafting real audio containers.
type Extractor interface {
	Extract(path string) (*Metadata, error)
}

// TagExtractor reads metadata with dhowden/tag. Author maps from the artist
// frame, narrator from the composer frame, which is the convention most
// audiobook taggers follow.
type TagExtractor struct{}

// NewTagExtractor creates a tag-based extractor.
func NewTagExtractor() *TagExtractor {
	return &TagExtractor{}
}

// Extract reads tags from the file. Missing frames fall back to the file and
// directory names so a freshly ripped, untagged file still imports usably.
func (e *TagExtractor) Extract(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	meta := &Metadata{
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	tags, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	meta.Title = cleanString(tags.Title())
	meta.Author = cleanString(tags.Artist())
	if meta.Author == "" {
		meta.Author = cleanString(tags.AlbumArtist())
	}
	meta.Narrator = cleanString(tags.Composer())

	// Audiobook series conventions vary by tagger; check the common raw frames.
	raw := tags.Raw()
	for _, key := range []string{"series", "SERIES", "MVNM", "mvnm"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				meta.Series = cleanString(s)
				break
			}
		}
	}
	for _, key := range []string{"series-part", "SERIES-PART", "MVIN", "mvin"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				if pos, err := strconv.ParseFloat(strings.SplitN(s, "/", 2)[0], 64); err == nil {
					meta.SeriesPosition = pos
					break
				}
			}
		}
	}

	if pic := tags.Picture(); pic != nil && len(pic.Data) > 0 {
		meta.CoverBytes = pic.Data
		meta.CoverMIME = pic.MIMEType
	}

	// Fallback naming: title from the file stem, author from the parent dir.
	if meta.Title == "" {
		base := filepath.Base(path)
		meta.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if meta.Author == "" {
		meta.Author = filepath.Base(filepath.Dir(path))
	}

	return meta, nil
}

// cleanString trims and collapses internal whitespace.
func cleanString(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}
