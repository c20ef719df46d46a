package profile

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	content Content
	history []Commit
}

// MemoryBackend keeps records in process. Versions count merges per DID.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]*memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*memoryEntry)}
}

func (m *MemoryBackend) LoadProfile(ctx context.Context, did string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.records[did]
	if !ok {
		return Snapshot{}, nil
	}
	return Snapshot{Content: entry.content.Clone(), Version: strconv.Itoa(len(entry.history))}, nil
}

func (m *MemoryBackend) MergeProfile(ctx context.Context, did string, patch Content) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.records[did]
	if !ok {
		entry = &memoryEntry{}
		m.records[did] = entry
	}
	entry.content = entry.content.Overlay(patch)
	version := strconv.Itoa(len(entry.history) + 1)
	entry.history = append(entry.history, Commit{
		Version:   version,
		Message:   "merge " + Family,
		Author:    did,
		Timestamp: time.Now().UTC(),
	})
	return Snapshot{Content: entry.content.Clone(), Version: version}, nil
}

func (m *MemoryBackend) History(ctx context.Context, did string, limit int) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.records[did]
	if !ok {
		return []Commit{}, nil
	}
	out := make([]Commit, 0, len(entry.history))
	for i := len(entry.history) - 1; i >= 0; i-- {
		out = append(out, entry.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}
