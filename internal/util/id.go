package util

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lexically sortable id, optionally prefixed ("pg_01J...").
func NewID(prefix string) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader).String()
	if prefix == "" {
		return strings.ToLower(id)
	}
	return prefix + "_" + strings.ToLower(id)
}
