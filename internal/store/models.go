package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// IdentitySession is the stored half of an identity session; the token itself is
// only ever kept as a hash.
type IdentitySession struct {
	DID       string    `json:"did"`
	Address   string    `json:"address"`
	ChainID   int64     `json:"chain_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
