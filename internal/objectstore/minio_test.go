package objectstore

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/util"

	"github.com/minio/minio-go/v7"
)

func TestObjectKey(t *testing.T) {
	got := ObjectKey("did:pkh:eip155:5:0xab")
	if got != "basicProfile/did:pkh:eip155:5:0xab.json" {
		t.Fatalf("unexpected object key %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "no such key", err: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, want: true},
		{name: "access denied", err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, want: false},
		{name: "plain error", err: errors.New("dial tcp: refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isNotFound(tc.err); got != tc.want {
				t.Fatalf("isNotFound() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestObjectVersion(t *testing.T) {
	cases := []struct {
		name         string
		info         minio.ObjectInfo
		wantRevision int64
		wantVersion  string
	}{
		{
			name:         "revision header",
			info:         minio.ObjectInfo{ETag: `"abc"`, Metadata: http.Header{"X-Amz-Meta-Revision": {"7"}}},
			wantRevision: 7,
			wantVersion:  "7",
		},
		{
			name:         "user metadata",
			info:         minio.ObjectInfo{ETag: `"abc"`, UserMetadata: minio.StringMap{"Revision": "3"}},
			wantRevision: 3,
			wantVersion:  "3",
		},
		{name: "missing falls back to etag", info: minio.ObjectInfo{ETag: `"abc"`}, wantRevision: 0, wantVersion: "abc"},
		{
			name:         "garbage falls back to etag",
			info:         minio.ObjectInfo{ETag: "abc", Metadata: http.Header{"X-Amz-Meta-Revision": {"x"}}},
			wantRevision: 0,
			wantVersion:  "abc",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			revision, version := objectVersion(tc.info)
			if revision != tc.wantRevision || version != tc.wantVersion {
				t.Fatalf("objectVersion() = %d, %q, want %d, %q", revision, version, tc.wantRevision, tc.wantVersion)
			}
		})
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	if _, err := New(Options{Endpoint: "localhost:9000/profiles", Bucket: "b"}); err == nil {
		t.Fatal("expected error for endpoint with a path")
	}
}

// Runs against a live MinIO when TEST_MINIO_ENDPOINT is set.
func TestStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	s, err := New(Options{
		Endpoint:  endpoint,
		AccessKey: envOr("TEST_MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("TEST_MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    envOr("TEST_MINIO_BUCKET", "basic-profiles-test"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	did := "did:pkh:eip155:5:" + util.NewID("test")
	empty, err := s.LoadProfile(ctx, did)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if empty.Exists() {
		t.Fatalf("expected no record, got %+v", empty)
	}

	first, err := s.MergeProfile(ctx, did, profile.Content{profile.FieldName: "Ada"})
	if err != nil {
		t.Fatalf("MergeProfile() error = %v", err)
	}
	second, err := s.MergeProfile(ctx, did, profile.Content{profile.FieldGender: "Female"})
	if err != nil {
		t.Fatalf("MergeProfile() error = %v", err)
	}
	if first.Version == second.Version {
		t.Fatal("expected version to change after content change")
	}

	loaded, err := s.LoadProfile(ctx, did)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if loaded.Content[profile.FieldName] != "Ada" || loaded.Content[profile.FieldGender] != "Female" {
		t.Fatalf("unexpected content %v", loaded.Content)
	}
	if loaded.Version != second.Version {
		t.Fatalf("expected version %q, got %q", second.Version, loaded.Version)
	}

	// Writing earlier content back must not reuse an earlier version.
	if _, err := s.MergeProfile(ctx, did, profile.Content{profile.FieldGender: "Male"}); err != nil {
		t.Fatalf("MergeProfile() error = %v", err)
	}
	reverted, err := s.MergeProfile(ctx, did, profile.Content{profile.FieldGender: "Female"})
	if err != nil {
		t.Fatalf("MergeProfile() error = %v", err)
	}
	if reverted.Version == second.Version || reverted.Version != "4" {
		t.Fatalf("expected fresh version 4, got %q (earlier %q)", reverted.Version, second.Version)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
