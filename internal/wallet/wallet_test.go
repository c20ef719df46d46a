package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newSigner(t *testing.T) *KeySigner {
	t.Helper()
	signer, err := GenerateKeySigner()
	if err != nil {
		t.Fatalf("GenerateKeySigner() error = %v", err)
	}
	return signer
}

func TestModalConnectAcceptsSignedChallenge(t *testing.T) {
	signer := newSigner(t)
	modal := NewModal(Options{Domain: "profile.test"})

	resp, err := signer.Answer(modal.Domain(), modal.Challenge(), 5)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	provider, err := modal.Connect(context.Background(), resp)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	network, err := provider.Network(context.Background())
	if err != nil {
		t.Fatalf("Network() error = %v", err)
	}
	if network.ChainID != 5 || network.Name != "goerli" {
		t.Fatalf("unexpected network %+v", network)
	}
	s, err := provider.Signer(context.Background())
	if err != nil {
		t.Fatalf("Signer() error = %v", err)
	}
	address, _ := s.Address(context.Background())
	if address != signer.Address() {
		t.Fatalf("expected address %s, got %s", signer.Address(), address)
	}
}

func TestModalConnectAcceptsLowercaseAddress(t *testing.T) {
	signer := newSigner(t)
	modal := NewModal(Options{Domain: "profile.test"})
	resp, err := signer.Answer(modal.Domain(), modal.Challenge(), 5)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	resp.Address = strings.ToLower(resp.Address)
	if _, err := modal.Connect(context.Background(), resp); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func TestModalConnectRejects(t *testing.T) {
	signer := newSigner(t)
	other := newSigner(t)

	tests := []struct {
		name   string
		mutate func(modal *SignatureModal, resp *Response)
	}{
		{"wrong nonce", func(modal *SignatureModal, resp *Response) {
			answered, _ := signer.Answer(modal.Domain(), "some-other-nonce", resp.ChainID)
			resp.Signature = answered.Signature
		}},
		{"chain id not signed", func(_ *SignatureModal, resp *Response) { resp.ChainID = 1 }},
		{"address of someone else", func(_ *SignatureModal, resp *Response) { resp.Address = other.Address() }},
		{"malformed signature", func(_ *SignatureModal, resp *Response) { resp.Signature = "0x1234" }},
		{"non-hex signature", func(_ *SignatureModal, resp *Response) { resp.Signature = "rejected" }},
		{"invalid address", func(_ *SignatureModal, resp *Response) { resp.Address = "not-an-address" }},
		{"missing chain", func(_ *SignatureModal, resp *Response) { resp.ChainID = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modal := NewModal(Options{Domain: "profile.test"})
			resp, err := signer.Answer(modal.Domain(), modal.Challenge(), 5)
			if err != nil {
				t.Fatalf("Answer() error = %v", err)
			}
			tt.mutate(modal, &resp)
			if _, err := modal.Connect(context.Background(), resp); !errors.Is(err, ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestModalChallengeIsSingleUse(t *testing.T) {
	signer := newSigner(t)
	modal := NewModal(Options{Domain: "profile.test"})
	resp, _ := signer.Answer(modal.Domain(), modal.Challenge(), 5)

	if _, err := modal.Connect(context.Background(), resp); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if _, err := modal.Connect(context.Background(), resp); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
}

func TestModalsIssueDistinctChallenges(t *testing.T) {
	if NewModal(Options{}).Challenge() == NewModal(Options{}).Challenge() {
		t.Fatal("expected fresh nonce per modal")
	}
}

func TestKeySignerRoundTripsPrivateKey(t *testing.T) {
	signer := newSigner(t)
	restored, err := NewKeySigner("0x" + signer.PrivateKeyHex())
	if err != nil {
		t.Fatalf("NewKeySigner() error = %v", err)
	}
	if restored.Address() != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address(), restored.Address())
	}
}

func TestRecoverAddress(t *testing.T) {
	signer := newSigner(t)
	sig, err := signer.SignMessage("hello")
	if err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	got, err := RecoverAddress("hello", sig)
	if err != nil {
		t.Fatalf("RecoverAddress() error = %v", err)
	}
	if got.Hex() != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address(), got.Hex())
	}
}

func TestNetworkName(t *testing.T) {
	if NetworkName(5) != "goerli" || NetworkName(42) != "chain-42" {
		t.Fatalf("unexpected names %q %q", NetworkName(5), NetworkName(42))
	}
}
