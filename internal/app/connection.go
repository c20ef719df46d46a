package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ceramicprofile/api/internal/did"
	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// SessionClient establishes and ends identity sessions.
type SessionClient interface {
	Connect(ctx context.Context, provider identity.AuthProvider) (*identity.Session, error)
	Disconnect(ctx context.Context, session *identity.Session) error
}

type ConnectionOptions struct {
	Sessions        SessionClient
	NewModal        func() wallet.Modal
	Notifier        Notifier
	RequiredChainID int64
	NetworkName     string
}

// ConnectionController owns the wallet modal and the identity session of one page.
// A modal exists only while disconnected; each disconnected phase gets a fresh one.
type ConnectionController struct {
	sessions        SessionClient
	newModal        func() wallet.Modal
	notifier        Notifier
	requiredChainID int64
	networkName     string

	mu      sync.Mutex
	status  ConnectionStatus
	session *identity.Session
	modal   wallet.Modal
}

func NewConnectionController(opts ConnectionOptions) *ConnectionController {
	c := &ConnectionController{
		sessions:        opts.Sessions,
		newModal:        opts.NewModal,
		notifier:        opts.Notifier,
		requiredChainID: opts.RequiredChainID,
		networkName:     opts.NetworkName,
	}
	if c.requiredChainID == 0 {
		c.requiredChainID = 5
	}
	if c.networkName == "" {
		c.networkName = "Goerli"
	}
	c.enterDisconnectedLocked()
	return c
}

// Challenge describes what the wallet has to sign while disconnected.
type Challenge struct {
	Nonce   string `json:"nonce"`
	Domain  string `json:"domain"`
	ChainID int64  `json:"chainId"`
}

func (c *ConnectionController) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session is nil unless connected.
func (c *ConnectionController) Session() *identity.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusConnected {
		return nil
	}
	return c.session
}

func (c *ConnectionController) Challenge() (Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.modal == nil || c.status != StatusDisconnected {
		return Challenge{}, false
	}
	return Challenge{
		Nonce:   c.modal.Challenge(),
		Domain:  c.modal.Domain(),
		ChainID: c.requiredChainID,
	}, true
}

// SignInMessage is the text a wallet for address has to sign to answer the current challenge.
func (c *ConnectionController) SignInMessage(address string, chainID int64) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: invalid address %q", wallet.ErrRejected, address)
	}
	challenge, ok := c.Challenge()
	if !ok {
		return "", ErrAlreadyConnected
	}
	return wallet.Message(challenge.Domain, common.HexToAddress(address).Hex(), chainID, challenge.Nonce), nil
}

func (c *ConnectionController) WrongNetworkMessage() string {
	return fmt.Sprintf("Please connect your wallet using %s testnet!", c.networkName)
}

// Connect turns the wallet's answer to the current challenge into an identity session.
func (c *ConnectionController) Connect(ctx context.Context, resp wallet.Response) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnecting:
		c.mu.Unlock()
		return ErrConnectInFlight
	case StatusConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.status = StatusConnecting
	modal := c.modal
	c.mu.Unlock()

	session, err := c.establish(ctx, modal, resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		log.Printf("connection: connect failed: %v", err)
		c.enterDisconnectedLocked()
		return err
	}
	c.status = StatusConnected
	c.session = session
	c.modal = nil
	return nil
}

func (c *ConnectionController) establish(ctx context.Context, modal wallet.Modal, resp wallet.Response) (*identity.Session, error) {
	if modal == nil {
		return nil, errors.New("no wallet modal")
	}
	provider, err := modal.Connect(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("connect wallet: %w", err)
	}

	network, err := provider.Network(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup network: %w", err)
	}
	if network.ChainID != c.requiredChainID {
		message := c.WrongNetworkMessage()
		if c.notifier != nil {
			c.notifier.Notify(Notification{Kind: NotifyWrongNetwork, Message: message})
		}
		return nil, &DomainError{
			Status:  ErrWrongNetwork.Status,
			Code:    ErrWrongNetwork.Code,
			Message: message,
			Details: map[string]any{"chainId": network.ChainID, "requiredChainId": c.requiredChainID},
		}
	}

	signer, err := provider.Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("get signer: %w", err)
	}
	address, err := signer.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("get signer address: %w", err)
	}

	session, err := c.sessions.Connect(ctx, did.NewEthereumAuthProvider(provider, address))
	if err != nil {
		return nil, fmt.Errorf("establish session: %w", err)
	}
	return session, nil
}

// Disconnect ends the session and prepares a fresh modal.
func (c *ConnectionController) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusConnecting {
		c.mu.Unlock()
		return ErrConnectInFlight
	}
	session := c.session
	wasConnected := c.status == StatusConnected
	if wasConnected {
		c.enterDisconnectedLocked()
	}
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := c.sessions.Disconnect(ctx, session); err != nil {
		log.Printf("connection: revoke session %s: %v", session.ID, err)
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (c *ConnectionController) enterDisconnectedLocked() {
	c.status = StatusDisconnected
	c.session = nil
	if c.newModal != nil {
		c.modal = c.newModal()
	}
}
