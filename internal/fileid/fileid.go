// Package fileid derives stable library keys from document paths. Unlike a DocumentID, which
// names one open session, a library key names the file and survives restarts.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// keyLen is the number of hash bytes kept in a key.
const keyLen = 16

// LibraryID returns a stable key for the given absolute path. The same path always yields the
// same key, so it is safe to use in file names.
func LibraryID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:keyLen])
}

// PreviewPath returns where the preview image of the document at absolutePath is stored.
func PreviewPath(previewDir, absolutePath string) string {
	return filepath.Join(previewDir, LibraryID(absolutePath)+".png")
}
