package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
)

// Key returns the cache key for token validated as type t: the hex form of
// the first 16 bytes of SHA-256(token "|" t).
func Key(token string, t jwt.TokenType) string {
	h := sha256.New()
	h.Write([]byte(token))
	h.Write([]byte{'|'})
	h.Write([]byte(t))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Entry is a cached validation outcome.
type Entry struct {
	Claims    *jwt.Claims `json:"claims,omitempty"`
	Signature string      `json:"sig,omitempty"`
	Invalid   bool        `json:"invalid,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Subject returns the cached subject, or "" for invalid markers.
func (e Entry) Subject() string {
	if e.Claims == nil {
		return ""
	}
	return e.Claims.Subject
}

func (e Entry) expired(now time.Time) bool {
	if !now.Before(e.ExpiresAt) {
		return true
	}
	if e.Claims != nil {
		if exp := e.Claims.ExpiresAtTime(); !exp.IsZero() && !now.Before(exp) {
			return true
		}
	}
	return false
}

func (e Entry) clone() Entry {
	e.Claims = e.Claims.Clone()
	return e
}
