package app

import (
	"context"
	"sync"
	"time"

	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/wallet"
)

// Page is the state of one page load: a connection and, while connected, a
// profile editor bound to the session's record. It also collects the
// notifications raised on its behalf until they are drained.
type Page struct {
	ID        string
	CreatedAt time.Time

	conn    *ConnectionController
	backend profile.Backend

	noteMu        sync.Mutex
	notifications []Notification

	mu       sync.Mutex
	editor   *ProfileEditor
	lastSeen time.Time
}

func (p *Page) Notify(n Notification) {
	p.noteMu.Lock()
	defer p.noteMu.Unlock()
	p.notifications = append(p.notifications, n)
}

// Drain returns and clears the queued notifications.
func (p *Page) Drain() []Notification {
	p.noteMu.Lock()
	defer p.noteMu.Unlock()
	out := p.notifications
	p.notifications = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

func (p *Page) Connection() *ConnectionController {
	return p.conn
}

// Connect connects the wallet and loads the profile of the new session.
// A failed load leaves the page connected; the next Editor call retries it.
func (p *Page) Connect(ctx context.Context, resp wallet.Response) error {
	if err := p.conn.Connect(ctx, resp); err != nil {
		return err
	}
	_, _ = p.Editor(ctx)
	return nil
}

// Disconnect ends the session and drops the editor with its unsaved form.
func (p *Page) Disconnect(ctx context.Context) error {
	err := p.conn.Disconnect(ctx)
	if p.conn.Status() == StatusDisconnected {
		p.mu.Lock()
		p.editor = nil
		p.mu.Unlock()
	}
	return err
}

// Editor returns the editor of the connected session, refreshed from the
// record. Once the editor has loaded, a failed refresh keeps the last form.
func (p *Page) Editor(ctx context.Context) (*ProfileEditor, error) {
	session := p.conn.Session()
	if session == nil {
		return nil, ErrNotConnected
	}

	p.mu.Lock()
	editor := p.editor
	if editor == nil || editor.DID() != session.ID {
		editor = NewProfileEditor(profile.NewRecord(p.backend, session.ID), p)
		p.editor = editor
	}
	p.mu.Unlock()

	if err := editor.Refresh(ctx); err != nil && editor.Phase() == PhaseUninitialized {
		return nil, err
	}
	return editor, nil
}

func (p *Page) touch(now time.Time) {
	p.mu.Lock()
	p.lastSeen = now
	p.mu.Unlock()
}

func (p *Page) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// PageView is the connection state rendered to the page.
type PageView struct {
	PageID    string           `json:"pageId"`
	Status    ConnectionStatus `json:"status"`
	ID        string           `json:"id,omitempty"`
	Challenge *Challenge       `json:"challenge,omitempty"`
}

func (p *Page) View() PageView {
	view := PageView{PageID: p.ID, Status: p.conn.Status()}
	if session := p.conn.Session(); session != nil {
		view.ID = session.ID
	}
	if challenge, ok := p.conn.Challenge(); ok {
		view.Challenge = &challenge
	}
	return view
}
