// Package anonymize replaces buyer identifiers with salted one-way hashes
// before records leave the operational database.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/reviewlens/reviewlens/internal/models"
)

// DefaultSalt is the development fallback. config.Validate refuses it in production.
const DefaultSalt = "default_salt"

var ErrEmptySalt = errors.New("anonymization salt is empty")

// Hasher hashes identifiers as hex(sha256(salt + value))
type Hasher struct {
	salt string
}

// NewHasher creates a hasher for the given salt
func NewHasher(salt string) (*Hasher, error) {
	if salt == "" {
		return nil, ErrEmptySalt
	}
	return &Hasher{salt: salt}, nil
}

// Hash returns the 64-character hex digest for value
func (h *Hasher) Hash(value string) string {
	sum := sha256.Sum256([]byte(h.salt + value))
	return hex.EncodeToString(sum[:])
}

// BuyerID hashes a nullable buyer id. A nil id stays nil.
func (h *Hasher) BuyerID(raw *string) *string {
	if raw == nil {
		return nil
	}
	hashed := h.Hash(*raw)
	return &hashed
}

// Records rewrites the buyer id of every record in place
func (h *Hasher) Records(records []models.ReviewRecord) {
	for i := range records {
		records[i].BuyerID = h.BuyerID(records[i].BuyerID)
	}
}
