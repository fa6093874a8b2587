package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateNamespaceUUIDIsDeterministic(t *testing.T) {
	a := GenerateNamespaceUUID(NamespaceSessions, "1:42")
	b := GenerateNamespaceUUID(NamespaceSessions, "1:42")
	c := GenerateNamespaceUUID(NamespaceSessions, "1:43")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGenerateShortUUIDLength(t *testing.T) {
	assert.Len(t, GenerateShortUUID(), 8)
	assert.NotEqual(t, GenerateShortUUID(), GenerateShortUUID())
}
