// Package fileid derives deterministic document IDs for build sources.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	filePrefix = "file:"
	textPrefix = "text:"
)

// FileDocID returns a stable document ID for the given path.
// Same path always yields the same ID, so re-ingesting a file updates the
// existing document instead of creating a new one.
func FileDocID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])
}

// TextDocID returns a stable document ID for inline text submitted without a
// file path. The title participates so two submissions of the same text under
// different titles stay distinct documents.
func TextDocID(title, text string) string {
	hash := sha256.Sum256([]byte(title + "\x00" + text))
	return textPrefix + hex.EncodeToString(hash[:])
}

// ContentHash returns the hex SHA-256 of the text. Builds compare it against
// the stored hash to skip re-ingesting unchanged content.
func ContentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
