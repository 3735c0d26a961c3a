// Package checksum computes digests of saved notes, used as HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/starford/pagenote/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Note returns the digest of the user-visible fields of n. Two saves of the
// same text in the same folder at the same instant hash equal.
func Note(n models.Note) string {
	h := sha256.New()
	for _, part := range []string{n.ID, n.Title, n.Content, n.Folder, strconv.FormatInt(n.LastModified, 10)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
