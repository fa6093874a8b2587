package librarymodule

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mondominator/audiora/internal/database"
)

// PathRegistry is the source of truth for "has this file already been
// imported", keyed by absolute path. The unique index on Audiobook.Path makes
// the insert atomic, so concurrent scanners cannot double-import.
type PathRegistry struct {
	db *gorm.DB
}

// NewPathRegistry creates a registry over the catalog table.
func NewPathRegistry(db *gorm.DB) *PathRegistry {
	return &PathRegistry{db: db}
}

// Known reports whether the path has already been imported.
func (r *PathRegistry) Known(path string) (bool, error) {
	var count int64
	if err := r.db.Model(&database.Audiobook{}).Where("path = ?", path).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check path registry: %w", err)
	}
	return count > 0, nil
}

// Insert registers the audiobook if its path is unseen. Returns true when a
// new row was created; false means another actor got there first, which is
// not an error.
func (r *PathRegistry) Insert(book *database.Audiobook) (bool, error) {
	result := r.db.Where("path = ?", book.Path).FirstOrCreate(book)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert catalog entry: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
