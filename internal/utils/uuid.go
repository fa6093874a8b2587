// Package utils provides file system, identifier, and HTTP helpers shared by
// the library, conversion, and playback modules.
package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID v4 string.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID generates a shorter UUID (first 8 characters).
// Only for non-critical identifiers such as the random suffix of an
// externally visible session ID.
func GenerateShortUUID() string {
	return uuid.New().String()[:8]
}

// GenerateNamespaceUUID generates a UUID v5 based on a namespace and name.
// This produces deterministic UUIDs for the same namespace+name combination,
// used to derive stable lookup keys from external identifiers.
func GenerateNamespaceUUID(namespace uuid.UUID, name string) string {
	return uuid.NewSHA1(namespace, []byte(name)).String()
}

// NamespaceSessions is the namespace UUID for playback session keys.
// Used with "userID:audiobookID" so the same pair always derives the same key.
var NamespaceSessions = uuid.MustParse("6ba7b814-9dad-11d1-80b4-00c04fd430c8")
