package librarymodule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mondominator/audiora/internal/database"
	"github.com/mondominator/audiora/internal/metadata"
)

func TestOrganizer_DestinationFor(t *testing.T) {
	o := NewOrganizer("/library")

	meta := &metadata.Metadata{Title: "Foo", Author: "Bar"}
	assert.Equal(t, filepath.Join("/library", "Bar", "Foo", "book.mp3"),
		o.DestinationFor(meta, "/incoming/book.mp3"))
}

func TestOrganizer_SanitizesPathComponents(t *testing.T) {
	o := NewOrganizer("/library")

	meta := &metadata.Metadata{Title: "What/If?", Author: "A: B"}
	dst := o.DestinationFor(meta, "/incoming/book.mp3")
	assert.Equal(t, filepath.Join("/library", "A - B", "WhatIf", "book.mp3"), dst)

	meta = &metadata.Metadata{Title: "", Author: ""}
	dst = o.DestinationFor(meta, "/incoming/book.mp3")
	assert.Equal(t, filepath.Join("/library", "Unknown", "Unknown", "book.mp3"), dst)
}

func TestOrganizer_OrganizeMovesFile(t *testing.T) {
	root := t.TempDir()
	o := NewOrganizer(root)

	src := filepath.Join(t.TempDir(), "book.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	newPath, err := o.Organize(src, &metadata.Metadata{Title: "Foo", Author: "Bar"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Bar", "Foo", "book.mp3"), newPath)

	_, err = os.Stat(newPath)
	assert.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestOrganizer_NeedsOrganization(t *testing.T) {
	o := NewOrganizer("/library")

	organized := &database.Audiobook{
		Path:   filepath.Join("/library", "Bar", "Foo", "book.mp3"),
		Title:  "Foo",
		Author: "Bar",
	}
	assert.False(t, o.NeedsOrganization(organized))

	stray := &database.Audiobook{Path: "/incoming/book.mp3", Title: "Foo", Author: "Bar"}
	assert.True(t, o.NeedsOrganization(stray))
}
