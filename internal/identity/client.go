// Package identity establishes, resumes and ends identity sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ceramicprofile/api/internal/auth"
	"ceramicprofile/api/internal/did"
	"ceramicprofile/api/internal/store"
	"ceramicprofile/api/internal/util"
)

var ErrSessionNotFound = errors.New("session not found")

// AuthProvider produces the credential a session is established from.
type AuthProvider interface {
	Authenticate(ctx context.Context) (did.Credential, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, session store.IdentitySession) error
	LookupSession(ctx context.Context, tokenHash string) (store.IdentitySession, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

// Session is an authenticated identity. ID is the DID profile records are scoped to.
type Session struct {
	ID        string
	Address   string
	ChainID   int64
	Token     string
	JTI       string
	ExpiresAt time.Time
}

type Client struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	now    func() time.Time
}

func NewClient(secret string, ttl time.Duration, sessions SessionStore) *Client {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		secret: []byte(secret),
		ttl:    ttl,
		store:  sessions,
		now:    time.Now,
	}
}

func (c *Client) Connect(ctx context.Context, provider AuthProvider) (*Session, error) {
	cred, err := provider.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	expiresAt := c.now().Add(c.ttl)
	jti := util.NewID("jti")
	token, err := auth.IssueToken(c.secret, auth.Claims{
		Sub:     cred.DID,
		Address: cred.Address,
		ChainID: cred.ChainID,
		JTI:     jti,
		Exp:     expiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}

	if err := c.store.SaveSession(ctx, auth.HashToken(jti), store.IdentitySession{
		DID:       cred.DID,
		Address:   cred.Address,
		ChainID:   cred.ChainID,
		CreatedAt: c.now().UTC(),
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, err
	}

	return &Session{
		ID:        cred.DID,
		Address:   cred.Address,
		ChainID:   cred.ChainID,
		Token:     token,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// Resume returns the session a token belongs to, provided it was not revoked.
func (c *Client) Resume(ctx context.Context, token string) (*Session, error) {
	claims, err := auth.ParseToken(c.secret, token)
	if err != nil {
		return nil, err
	}
	stored, err := c.store.LookupSession(ctx, auth.HashToken(claims.JTI))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if stored.DID != claims.Sub {
		return nil, auth.ErrInvalidToken
	}
	return &Session{
		ID:        stored.DID,
		Address:   stored.Address,
		ChainID:   stored.ChainID,
		Token:     token,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (c *Client) Disconnect(ctx context.Context, session *Session) error {
	if session == nil || session.JTI == "" {
		return nil
	}
	return c.store.RevokeSession(ctx, auth.HashToken(session.JTI))
}

// MemoryStore is a SessionStore for single-process runs without Redis or Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]store.IdentitySession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]store.IdentitySession)}
}

func (m *MemoryStore) SaveSession(_ context.Context, tokenHash string, session store.IdentitySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = session
	return nil
}

func (m *MemoryStore) LookupSession(_ context.Context, tokenHash string) (store.IdentitySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[tokenHash]
	if !ok || !time.Now().Before(session.ExpiresAt) {
		delete(m.sessions, tokenHash)
		return store.IdentitySession{}, store.ErrNotFound
	}
	return session, nil
}

func (m *MemoryStore) RevokeSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
