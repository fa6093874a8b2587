package librarymodule

import (
	"fmt"
	"path/filepath"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/metadata"
	"github.com/mondominator/audiora/internal/utils"
)

// Organizer computes canonical library locations and moves files into them.
// The naming convention is <root>/<author>/<title>/<basename>.
type Organizer struct {
	rootDir string
}

// NewOrganizer creates an organizer rooted at the library directory.
func NewOrganizer(rootDir string) *Organizer {
	return &Organizer{rootDir: rootDir}
}

// DestinationFor returns the canonical path for a file with the given
// metadata. Author and title are sanitized into safe path components.
func (o *Organizer) DestinationFor(meta *metadata.Metadata, srcPath string) string {
	author := utils.SanitizePathComponent(meta.Author)
	title := utils.SanitizePathComponent(meta.Title)
	return filepath.Join(o.rootDir, author, title, filepath.Base(srcPath))
}

// NeedsOrganization reports whether the entry lives outside its canonical
// location.
func (o *Organizer) NeedsOrganization(book *database.Audiobook) bool {
	meta := &metadata.Metadata{Title: book.Title, Author: book.Author}
	return book.Path != o.DestinationFor(meta, book.Path)
}

// Organize moves the file to its canonical location and returns the new path.
func (o *Organizer) Organize(srcPath string, meta *metadata.Metadata) (string, error) {
	dst := o.DestinationFor(meta, srcPath)
	if dst == srcPath {
		return srcPath, nil
	}
	if err := utils.MoveFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("failed to organize %s: %w", srcPath, err)
	}
	return dst, nil
}
