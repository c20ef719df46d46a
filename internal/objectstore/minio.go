// Package objectstore keeps basicProfile records as JSON objects in an
// S3-compatible bucket. Each write bumps a revision counter kept in the
// object's user metadata, and that counter is the record version.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"ceramicprofile/api/internal/profile"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const revisionMeta = "Revision"

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{
		client: client,
		bucket: opts.Bucket,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func (s *Store) LoadProfile(ctx context.Context, did string) (profile.Snapshot, error) {
	lock := s.recordLock(did)
	lock.Lock()
	defer lock.Unlock()
	return s.load(ctx, did)
}

// MergeProfile overlays patch onto the stored object and writes it back.
// Merges for one DID are serialized within this process.
func (s *Store) MergeProfile(ctx context.Context, did string, patch profile.Content) (profile.Snapshot, error) {
	lock := s.recordLock(did)
	lock.Lock()
	defer lock.Unlock()

	current, revision, err := s.read(ctx, did)
	if err != nil {
		return profile.Snapshot{}, err
	}
	revision++
	merged := current.Content.Overlay(patch)
	payload, err := json.Marshal(merged)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("marshal content: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, ObjectKey(did), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"did": did, revisionMeta: strconv.FormatInt(revision, 10)},
	})
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("put %s: %w", ObjectKey(did), err)
	}
	return profile.Snapshot{Content: merged, Version: strconv.FormatInt(revision, 10)}, nil
}

func (s *Store) load(ctx context.Context, did string) (profile.Snapshot, error) {
	snapshot, _, err := s.read(ctx, did)
	return snapshot, err
}

// read returns the stored record and its revision, 0 when the object is missing.
func (s *Store) read(ctx context.Context, did string) (profile.Snapshot, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(did), minio.GetObjectOptions{})
	if err != nil {
		return profile.Snapshot{}, 0, fmt.Errorf("get %s: %w", ObjectKey(did), err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if isNotFound(err) {
		return profile.Snapshot{}, 0, nil
	}
	if err != nil {
		return profile.Snapshot{}, 0, fmt.Errorf("stat %s: %w", ObjectKey(did), err)
	}
	raw, err := io.ReadAll(obj)
	if err != nil {
		return profile.Snapshot{}, 0, fmt.Errorf("read %s: %w", ObjectKey(did), err)
	}
	content := profile.Content{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return profile.Snapshot{}, 0, fmt.Errorf("decode %s: %w", ObjectKey(did), err)
	}
	revision, version := objectVersion(stat)
	return profile.Snapshot{Content: content, Version: version}, revision, nil
}

// objectVersion reads the revision counter from the object's metadata.
// Objects written without one report their ETag and revision 0.
func objectVersion(info minio.ObjectInfo) (int64, string) {
	raw := info.Metadata.Get("X-Amz-Meta-" + revisionMeta)
	if raw == "" {
		raw = info.UserMetadata[revisionMeta]
	}
	revision, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || revision <= 0 {
		return 0, strings.Trim(info.ETag, `"`)
	}
	return revision, strconv.FormatInt(revision, 10)
}

func (s *Store) recordLock(did string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[did]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[did] = lock
	}
	return lock
}

func ObjectKey(did string) string {
	return profile.Family + "/" + did + ".json"
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
