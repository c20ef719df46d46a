package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ceramicprofile/api/internal/config"
	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/util"
	"ceramicprofile/api/internal/wallet"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	sessions *identity.Client
	backend  profile.Backend
	checks   map[string]pinger
	newModal func() wallet.Modal
	now      func() time.Time

	pagesMu sync.Mutex
	pages   map[string]*Page
	pageTTL time.Duration
}

// New wires the page registry to a session store and a profile backend. Both
// are pinged by readiness checks when they expose Ping.
func New(cfg config.Config, sessions identity.SessionStore, backend profile.Backend) *Service {
	pageTTL := cfg.PageTTL
	if pageTTL <= 0 {
		pageTTL = time.Hour
	}
	s := &Service{
		cfg:      cfg,
		sessions: identity.NewClient(cfg.SessionSecret, cfg.SessionTTL, sessions),
		backend:  backend,
		checks:   map[string]pinger{},
		now:      time.Now,
		pages:    make(map[string]*Page),
		pageTTL:  pageTTL,
	}
	s.newModal = func() wallet.Modal {
		return wallet.NewModal(wallet.Options{Domain: cfg.Domain})
	}
	if p, ok := sessions.(pinger); ok {
		s.checks["sessions"] = p
	}
	if p, ok := backend.(pinger); ok {
		s.checks["profiles"] = p
	}
	return s
}

func (s *Service) NewPage() *Page {
	now := s.now()
	page := &Page{
		ID:        util.NewID("pg"),
		CreatedAt: now,
		backend:   s.backend,
		lastSeen:  now,
	}
	page.conn = NewConnectionController(ConnectionOptions{
		Sessions:        s.sessions,
		NewModal:        s.newModal,
		Notifier:        page,
		RequiredChainID: s.cfg.RequiredChainID,
		NetworkName:     s.cfg.NetworkName,
	})

	s.pagesMu.Lock()
	s.evictExpiredLocked(now)
	s.pages[page.ID] = page
	s.pagesMu.Unlock()
	return page
}

// Page returns a live page and marks it as seen.
func (s *Service) Page(id string) (*Page, error) {
	now := s.now()
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	s.evictExpiredLocked(now)
	page, ok := s.pages[id]
	if !ok {
		return nil, ErrPageNotFound
	}
	page.touch(now)
	return page, nil
}

func (s *Service) PageCount() int {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	return len(s.pages)
}

func (s *Service) evictExpiredLocked(now time.Time) {
	for id, page := range s.pages {
		if now.Sub(page.idleSince()) > s.pageTTL {
			delete(s.pages, id)
		}
	}
}

// ResumeSession resolves a bearer token issued on connect.
func (s *Service) ResumeSession(ctx context.Context, token string) (*identity.Session, error) {
	return s.sessions.Resume(ctx, token)
}

func (s *Service) History(ctx context.Context, did string, limit int) ([]profile.Commit, error) {
	historian, ok := s.backend.(profile.Historian)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	commits, err := historian.History(ctx, did, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return commits, nil
}

// Ready runs every readiness check and returns the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]error, len(names))
	for _, name := range names {
		results[name] = s.checks[name].Ping(ctx)
	}
	return results
}

func (s *Service) Domain() string {
	return s.cfg.Domain
}

func (s *Service) RequiredChainID() int64 {
	if s.cfg.RequiredChainID == 0 {
		return 5
	}
	return s.cfg.RequiredChainID
}

func (s *Service) NetworkName() string {
	if s.cfg.NetworkName == "" {
		return "Goerli"
	}
	return s.cfg.NetworkName
}
