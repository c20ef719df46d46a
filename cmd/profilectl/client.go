package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ceramicprofile/api/internal/wallet"
)

// apiError is the JSON error body returned by the API.
type apiError struct {
	Status        int
	Code          string         `json:"code"`
	Message       string         `json:"error"`
	Notifications []notification `json:"notifications"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type challenge struct {
	Nonce   string `json:"nonce"`
	Domain  string `json:"domain"`
	ChainID int64  `json:"chainId"`
}

type connectionView struct {
	PageID    string     `json:"pageId"`
	Status    string     `json:"status"`
	ID        string     `json:"id"`
	Challenge *challenge `json:"challenge"`
}

type profileForm struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Gender      string `json:"gender"`
	Location    string `json:"location"`
}

type profileView struct {
	Form       profileForm `json:"form"`
	HasProfile bool        `json:"hasProfile"`
	Message    string      `json:"message"`
	Phase      string      `json:"phase"`
	Version    string      `json:"version"`
}

type commit struct {
	Version   string    `json:"version"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// client drives one page of the API with a local key as the wallet.
type client struct {
	server string
	http   *http.Client
	signer *wallet.KeySigner
	pageID string

	// notify receives every notification the server raises for the page.
	notify func(notification)
}

func newClient(server string, signer *wallet.KeySigner, notify func(notification)) *client {
	return &client{
		server: strings.TrimRight(server, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		signer: signer,
		notify: notify,
	}
}

// connect opens a page and answers its challenge on chainID.
func (c *client) connect(ctx context.Context, chainID int64) (connectionView, error) {
	var page connectionView
	if err := c.do(ctx, http.MethodPost, "/api/pages", nil, &page); err != nil {
		return connectionView{}, fmt.Errorf("create page: %w", err)
	}
	c.pageID = page.PageID
	if page.Challenge == nil {
		return connectionView{}, fmt.Errorf("page %s has no challenge", page.PageID)
	}

	resp, err := c.signer.Answer(page.Challenge.Domain, page.Challenge.Nonce, chainID)
	if err != nil {
		return connectionView{}, err
	}
	var out struct {
		Connection    connectionView `json:"connection"`
		Notifications []notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/connection/connect", resp, &out); err != nil {
		return connectionView{}, fmt.Errorf("connect wallet: %w", err)
	}
	c.emit(out.Notifications)
	return out.Connection, nil
}

func (c *client) disconnect(ctx context.Context) error {
	var out struct {
		Notifications []notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/connection/disconnect", nil, &out); err != nil {
		return err
	}
	c.emit(out.Notifications)
	return nil
}

func (c *client) profile(ctx context.Context) (profileView, error) {
	return c.profileCall(ctx, http.MethodGet, "/api/profile", nil)
}

func (c *client) editForm(ctx context.Context, fields map[string]string) (profileView, error) {
	return c.profileCall(ctx, http.MethodPatch, "/api/profile/form", fields)
}

func (c *client) update(ctx context.Context) (profileView, error) {
	return c.profileCall(ctx, http.MethodPost, "/api/profile/update", nil)
}

func (c *client) history(ctx context.Context, limit int) ([]commit, error) {
	var out struct {
		Commits []commit `json:"commits"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/profile/history?limit=%d", limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Commits, nil
}

func (c *client) profileCall(ctx context.Context, method, path string, body any) (profileView, error) {
	var out struct {
		Profile       profileView    `json:"profile"`
		Notifications []notification `json:"notifications"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return profileView{}, err
	}
	c.emit(out.Notifications)
	return out.Profile, nil
}

func (c *client) emit(notes []notification) {
	if c.notify == nil {
		return
	}
	for _, n := range notes {
		c.notify(n)
	}
}

func (c *client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.pageID != "" {
		req.Header.Set("X-Page-ID", c.pageID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		apiErr := &apiError{Status: res.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		c.emit(apiErr.Notifications)
		return apiErr
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
