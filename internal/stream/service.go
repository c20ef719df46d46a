// Package stream stores each identity's basicProfile as a git commit log: one
// repository per DID, one commit per merge, the commit hash as record version.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ceramicprofile/api/internal/profile"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const contentFile = profile.Family + ".json"

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) Ping(context.Context) error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("stat streams dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("streams dir %s is not a directory", s.baseDir)
	}
	return nil
}

func (s *Service) LoadProfile(ctx context.Context, did string) (profile.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return profile.Snapshot{}, err
	}
	lock := s.streamLock(did)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(did))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return profile.Snapshot{}, nil
	}
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("open stream: %w", err)
	}
	return headSnapshot(repo)
}

func (s *Service) MergeProfile(ctx context.Context, did string, patch profile.Content) (profile.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return profile.Snapshot{}, err
	}
	lock := s.streamLock(did)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(did)
	if err != nil {
		return profile.Snapshot{}, err
	}
	current, err := headSnapshot(repo)
	if err != nil {
		return profile.Snapshot{}, err
	}
	merged := current.Content.Overlay(patch)

	worktree, err := repo.Worktree()
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), append(payload, '\n'), 0o644); err != nil {
		return profile.Snapshot{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return profile.Snapshot{}, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(commitMessage(patch), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  did,
			Email: sanitizeEmail(did) + "@streams.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("commit content: %w", err)
	}
	return profile.Snapshot{Content: merged, Version: hash.String()}, nil
}

func (s *Service) History(ctx context.Context, did string, limit int) ([]profile.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := s.streamLock(did)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(did))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []profile.Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []profile.Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := []profile.Commit{}
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, profile.Commit{
			Version:   c.Hash.String(),
			Message:   strings.TrimSpace(c.Message),
			Author:    c.Author.Name,
			Timestamp: c.Author.When,
		})
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) ensureRepo(did string) (*git.Repository, error) {
	path := s.repoPath(did)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create stream dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		return nil, fmt.Errorf("init stream: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(did string) string {
	return filepath.Join(s.baseDir, strings.NewReplacer(":", "_", "/", "_").Replace(did))
}

func (s *Service) streamLock(did string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[did]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[did] = lock
	return lock
}

// headSnapshot reads the content at HEAD; a repository without commits has no record.
func headSnapshot(repo *git.Repository) (profile.Snapshot, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return profile.Snapshot{}, nil
	}
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("load commit object: %w", err)
	}
	file, err := commitObj.File(contentFile)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("read content: %w", err)
	}
	content := profile.Content{}
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return profile.Snapshot{}, fmt.Errorf("decode commit content: %w", err)
	}
	return profile.Snapshot{Content: content, Version: head.Hash().String()}, nil
}

func commitMessage(patch profile.Content) string {
	fields := make([]string, 0, len(patch))
	for k := range patch {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return "merge " + profile.Family + ": " + strings.Join(fields, ", ")
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ':' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "identity"
	}
	return string(out)
}
