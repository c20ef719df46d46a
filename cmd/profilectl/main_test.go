package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ceramicprofile/api/internal/app"
	"ceramicprofile/api/internal/config"
	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/wallet"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := app.New(config.Config{
		SessionSecret:   "test-secret",
		SessionTTL:      time.Hour,
		PageTTL:         time.Hour,
		Domain:          "profile.test",
		RequiredChainID: 5,
		NetworkName:     "Goerli",
	}, identity.NewMemoryStore(), profile.NewMemoryBackend())
	server := httptest.NewServer(app.NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func TestUpdateShowAndHistory(t *testing.T) {
	server := newTestServer(t)
	signer, err := wallet.GenerateKeySigner()
	if err != nil {
		t.Fatalf("GenerateKeySigner() error = %v", err)
	}
	base := []string{"--server", server.URL, "--key", signer.PrivateKeyHex()}

	var stdout, stderr bytes.Buffer
	args := append(append([]string{}, base...), "update", "--name", "Ada", "--gender", "Female")
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("update error = %v (stderr %s)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Hello Ada!") || !strings.Contains(stdout.String(), "gender:      Female") {
		t.Fatalf("unexpected update output:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "[profile_updated] Your profile is updated on Ceramic Network successfully.") {
		t.Fatalf("expected success notification, got:\n%s", stderr.String())
	}

	stdout.Reset()
	stderr.Reset()
	if err := run(append(append([]string{}, base...), "show"), &stdout, &stderr); err != nil {
		t.Fatalf("show error = %v", err)
	}
	wantID := "did:pkh:eip155:5:" + strings.ToLower(signer.Address())
	if !strings.Contains(stdout.String(), "Your 3ID is "+wantID) || !strings.Contains(stdout.String(), "name:        Ada") {
		t.Fatalf("unexpected show output:\n%s", stdout.String())
	}

	stdout.Reset()
	if err := run(append(append([]string{}, base...), "history"), &stdout, &stderr); err != nil {
		t.Fatalf("history error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected id line and one commit, got:\n%s", stdout.String())
	}
}

func TestWrongChainReportsNotification(t *testing.T) {
	server := newTestServer(t)
	var stdout, stderr bytes.Buffer
	err := run([]string{"--server", server.URL, "--chain-id", "1", "show"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "WRONG_NETWORK") {
		t.Fatalf("expected WRONG_NETWORK error, got %v", err)
	}
	if !strings.Contains(stderr.String(), "[wrong_network] Please connect your wallet using Goerli testnet!") {
		t.Fatalf("expected wrong network notification, got:\n%s", stderr.String())
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"delete"}, &stdout, &stderr); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := run([]string{}, &stdout, &stderr); err == nil {
		t.Fatal("expected error without a command")
	}
}
