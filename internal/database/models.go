package database

import (
	"time"
)

// Audiobook is the durable catalog record for one imported audiobook file.
// The unique index on Path is what makes concurrent imports safe: the scanner
// and the watch-folder importer both funnel through a first-or-create on it.
type Audiobook struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Path           string    `gorm:"not null;uniqueIndex" json:"path"` // absolute file path
	Title          string    `gorm:"not null;index" json:"title"`
	Author         string    `gorm:"index" json:"author"`
	Narrator       string    `json:"narrator"`
	Series         string    `json:"series,omitempty"`
	SeriesPosition float64   `json:"series_position,omitempty"`
	Duration       int       `json:"duration"` // in seconds, 0 when unknown
	SizeBytes      int64     `gorm:"not null" json:"size_bytes"`
	Format         string    `json:"format"` // e.g. mp3, m4a, m4b, flac
	Available      bool      `gorm:"not null;default:true" json:"available"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
