// Package profile reads and merges the basicProfile record of an identity.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Family is the record definition alias every identity's profile is stored under.
const Family = "basicProfile"

const (
	FieldName         = "name"
	FieldDescription  = "description"
	FieldGender       = "gender"
	FieldHomeLocation = "homeLocation"
)

// maxLengths mirrors the string properties of the basicProfile schema.
var maxLengths = map[string]int{
	FieldName:          150,
	FieldDescription:   420,
	"emoji":            2,
	"birthDate":        10,
	"url":              240,
	FieldGender:        42,
	FieldHomeLocation:  140,
	"residenceCountry": 2,
}

// Content maps basicProfile property names to values.
type Content map[string]string

func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Overlay returns c with every key of patch replacing its counterpart.
func (c Content) Overlay(patch Content) Content {
	out := c.Clone()
	if out == nil {
		out = Content{}
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Snapshot is one observed state of a record. Content is nil when no record
// exists yet. Version changes whenever the stored content changes.
type Snapshot struct {
	Content Content
	Version string
}

func (s Snapshot) Exists() bool {
	return s.Content != nil
}

type Backend interface {
	LoadProfile(ctx context.Context, did string) (Snapshot, error)
	MergeProfile(ctx context.Context, did string, patch Content) (Snapshot, error)
}

// Commit is one entry of a record's change history.
type Commit struct {
	Version   string    `json:"version"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Historian is implemented by backends that keep every merge.
type Historian interface {
	History(ctx context.Context, did string, limit int) ([]Commit, error)
}

type ErrorDetail struct {
	Message string
}

// MergeError is returned by Record.Merge. Err carries the message shown to the user.
type MergeError struct {
	Err   ErrorDetail
	cause error
}

func (e *MergeError) Error() string {
	return "merge " + Family + ": " + e.Err.Message
}

func (e *MergeError) Unwrap() error {
	return e.cause
}

var ErrInvalidContent = errors.New("invalid profile content")

// Record is the basicProfile record of one DID.
type Record struct {
	backend Backend
	did     string
}

func NewRecord(backend Backend, did string) *Record {
	return &Record{backend: backend, did: did}
}

func (r *Record) DID() string {
	return r.did
}

func (r *Record) Content(ctx context.Context) (Snapshot, error) {
	snapshot, err := r.backend.LoadProfile(ctx, r.did)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s for %s: %w", Family, r.did, err)
	}
	return snapshot, nil
}

func (r *Record) Merge(ctx context.Context, patch Content) (Snapshot, error) {
	if err := Validate(patch); err != nil {
		return Snapshot{}, &MergeError{Err: ErrorDetail{Message: err.Error()}, cause: err}
	}
	snapshot, err := r.backend.MergeProfile(ctx, r.did, patch.Clone())
	if err != nil {
		return Snapshot{}, &MergeError{Err: ErrorDetail{Message: err.Error()}, cause: err}
	}
	return snapshot, nil
}

// Validate checks a patch against the basicProfile schema.
func Validate(patch Content) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		limit, ok := maxLengths[key]
		if !ok {
			return fmt.Errorf("%w: unknown property %q", ErrInvalidContent, key)
		}
		value := patch[key]
		if n := utf8.RuneCountInString(value); n > limit {
			return fmt.Errorf("%w: %s must be at most %d characters, got %d", ErrInvalidContent, key, limit, n)
		}
		if key == "residenceCountry" && value != "" && value != strings.ToUpper(value) {
			return fmt.Errorf("%w: residenceCountry must be an upper-case ISO country code", ErrInvalidContent)
		}
	}
	return nil
}
