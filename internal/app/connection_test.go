package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/wallet"
)

const testAddress = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type fakeModal struct {
	nonce     string
	connectFn func(context.Context, wallet.Response) (wallet.Provider, error)
}

func (f *fakeModal) Challenge() string { return f.nonce }
func (f *fakeModal) Domain() string    { return "profile.test" }
func (f *fakeModal) Connect(ctx context.Context, resp wallet.Response) (wallet.Provider, error) {
	if f.connectFn != nil {
		return f.connectFn(ctx, resp)
	}
	return &fakeProvider{chainID: resp.ChainID, address: resp.Address}, nil
}

type fakeProvider struct {
	chainID int64
	address string
}

func (f *fakeProvider) Network(context.Context) (wallet.Network, error) {
	return wallet.Network{ChainID: f.chainID, Name: wallet.NetworkName(f.chainID)}, nil
}

func (f *fakeProvider) Signer(context.Context) (wallet.Signer, error) {
	return fakeSigner(f.address), nil
}

type fakeSigner string

func (f fakeSigner) Address(context.Context) (string, error) { return string(f), nil }

type fakeSessions struct {
	mu           sync.Mutex
	connects     int
	disconnects  int
	connectFn    func(context.Context, identity.AuthProvider) (*identity.Session, error)
	disconnectFn func(context.Context, *identity.Session) error
}

func (f *fakeSessions) Connect(ctx context.Context, provider identity.AuthProvider) (*identity.Session, error) {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	if f.connectFn != nil {
		return f.connectFn(ctx, provider)
	}
	cred, err := provider.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return &identity.Session{ID: cred.DID, Address: cred.Address, ChainID: cred.ChainID, JTI: "jti_test"}, nil
}

func (f *fakeSessions) Disconnect(ctx context.Context, session *identity.Session) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	if f.disconnectFn != nil {
		return f.disconnectFn(ctx, session)
	}
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

type controllerFixture struct {
	controller *ConnectionController
	sessions   *fakeSessions
	notifier   *recordingNotifier
	modals     []*fakeModal
}

func newControllerFixture(connectFn func(context.Context, wallet.Response) (wallet.Provider, error)) *controllerFixture {
	f := &controllerFixture{sessions: &fakeSessions{}, notifier: &recordingNotifier{}}
	f.controller = NewConnectionController(ConnectionOptions{
		Sessions: f.sessions,
		NewModal: func() wallet.Modal {
			m := &fakeModal{nonce: "nonce-" + string(rune('a'+len(f.modals))), connectFn: connectFn}
			f.modals = append(f.modals, m)
			return m
		},
		Notifier:        f.notifier,
		RequiredChainID: 5,
		NetworkName:     "Goerli",
	})
	return f
}

func TestConnectRejectsEveryOtherNetwork(t *testing.T) {
	for _, chainID := range []int64{1, 3, 4, 10, 137, 11155111} {
		f := newControllerFixture(nil)
		err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: chainID})
		if !errors.Is(err, ErrWrongNetwork) {
			t.Fatalf("chain %d: expected ErrWrongNetwork, got %v", chainID, err)
		}
		notes := f.notifier.all()
		if len(notes) != 1 {
			t.Fatalf("chain %d: expected exactly one notification, got %d", chainID, len(notes))
		}
		if notes[0].Kind != NotifyWrongNetwork || notes[0].Message != "Please connect your wallet using Goerli testnet!" {
			t.Fatalf("chain %d: unexpected notification %+v", chainID, notes[0])
		}
		if f.sessions.connects != 0 {
			t.Fatalf("chain %d: session layer must not be called", chainID)
		}
		if f.controller.Status() != StatusDisconnected || f.controller.Session() != nil {
			t.Fatalf("chain %d: expected disconnected without session", chainID)
		}
	}
}

func TestConnectSuccessExposesSessionID(t *testing.T) {
	f := newControllerFixture(nil)
	if err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if f.controller.Status() != StatusConnected {
		t.Fatalf("expected connected, got %s", f.controller.Status())
	}
	session := f.controller.Session()
	if session == nil || session.ID != "did:pkh:eip155:5:0xab5801a7d398351b8be11c439e05c5b3259aec9b" {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(f.notifier.all()) != 0 {
		t.Fatalf("expected no notifications, got %v", f.notifier.all())
	}
	if _, ok := f.controller.Challenge(); ok {
		t.Fatal("expected no challenge while connected")
	}
	if err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5}); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectRejectsOverlappingAttempts(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newControllerFixture(func(_ context.Context, resp wallet.Response) (wallet.Provider, error) {
		close(entered)
		<-release
		return &fakeProvider{chainID: resp.ChainID, address: resp.Address}, nil
	})

	done := make(chan error, 1)
	go func() {
		done <- f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5})
	}()
	<-entered

	if f.controller.Status() != StatusConnecting {
		t.Fatalf("expected connecting, got %s", f.controller.Status())
	}
	if err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5}); !errors.Is(err, ErrConnectInFlight) {
		t.Fatalf("expected ErrConnectInFlight, got %v", err)
	}
	if err := f.controller.Disconnect(context.Background()); !errors.Is(err, ErrConnectInFlight) {
		t.Fatalf("expected disconnect to wait for connect, got %v", err)
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first Connect() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not finish")
	}
	if f.sessions.connects != 1 {
		t.Fatalf("expected one session connect, got %d", f.sessions.connects)
	}
}

func TestConnectFailureIsSilentAndRebuildsModal(t *testing.T) {
	f := newControllerFixture(func(context.Context, wallet.Response) (wallet.Provider, error) {
		return nil, wallet.ErrRejected
	})
	first, _ := f.controller.Challenge()

	err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5})
	if !errors.Is(err, wallet.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if len(f.notifier.all()) != 0 {
		t.Fatalf("wallet rejection must not notify, got %v", f.notifier.all())
	}
	if f.controller.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", f.controller.Status())
	}
	second, ok := f.controller.Challenge()
	if !ok || second.Nonce == first.Nonce {
		t.Fatalf("expected a fresh modal after failure, got %+v (was %+v)", second, first)
	}
	if len(f.modals) != 2 {
		t.Fatalf("expected 2 modals, got %d", len(f.modals))
	}
}

func TestConnectSessionFailureRevertsToDisconnected(t *testing.T) {
	f := newControllerFixture(nil)
	f.sessions.connectFn = func(context.Context, identity.AuthProvider) (*identity.Session, error) {
		return nil, errors.New("ceramic node unreachable")
	}
	if err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5}); err == nil {
		t.Fatal("expected error")
	}
	if f.controller.Status() != StatusDisconnected || len(f.notifier.all()) != 0 {
		t.Fatalf("expected silent revert, status=%s notes=%v", f.controller.Status(), f.notifier.all())
	}
}

func TestDisconnectRevokesSessionAndBuildsNewModal(t *testing.T) {
	f := newControllerFixture(nil)
	if err := f.controller.Connect(context.Background(), wallet.Response{Address: testAddress, ChainID: 5}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := f.controller.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if f.controller.Status() != StatusDisconnected || f.controller.Session() != nil {
		t.Fatal("expected disconnected without session")
	}
	if f.sessions.disconnects != 1 {
		t.Fatalf("expected session revoke, got %d", f.sessions.disconnects)
	}
	if len(f.modals) != 2 {
		t.Fatalf("expected a new modal after disconnect, got %d", len(f.modals))
	}
	if err := f.controller.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect() error = %v", err)
	}
	if f.sessions.disconnects != 1 {
		t.Fatal("disconnect while disconnected must not call the session layer")
	}
}

func TestConnectWithSignedWalletResponse(t *testing.T) {
	signer, err := wallet.GenerateKeySigner()
	if err != nil {
		t.Fatalf("GenerateKeySigner() error = %v", err)
	}
	notifier := &recordingNotifier{}
	controller := NewConnectionController(ConnectionOptions{
		Sessions: identity.NewClient("test-secret", time.Hour, identity.NewMemoryStore()),
		NewModal: func() wallet.Modal {
			return wallet.NewModal(wallet.Options{Domain: "profile.test"})
		},
		Notifier:        notifier,
		RequiredChainID: 5,
	})

	challenge, ok := controller.Challenge()
	if !ok {
		t.Fatal("expected a challenge while disconnected")
	}
	message, err := controller.SignInMessage(signer.Address(), 5)
	if err != nil {
		t.Fatalf("SignInMessage() error = %v", err)
	}
	signature, err := signer.SignMessage(message)
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	if challenge.Domain != "profile.test" || challenge.ChainID != 5 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}

	if err := controller.Connect(context.Background(), wallet.Response{Address: signer.Address(), ChainID: 5, Signature: signature}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	session := controller.Session()
	if session == nil || session.Token == "" || session.Address != signer.Address() {
		t.Fatalf("unexpected session %+v", session)
	}
}
