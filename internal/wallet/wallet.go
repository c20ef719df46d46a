// Package wallet verifies Ethereum wallet responses and exposes them as
// providers the connection flow can query for network and signer.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ceramicprofile/api/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrRejected covers every wallet response that cannot be turned into a provider:
	// user rejection, malformed payloads, bad signatures, reused challenges.
	ErrRejected = errors.New("wallet rejected")
)

// Network is what the wallet reports about the chain it is connected to.
type Network struct {
	ChainID int64
	Name    string
}

type Signer interface {
	Address(ctx context.Context) (string, error)
}

type Provider interface {
	Network(ctx context.Context) (Network, error)
	Signer(ctx context.Context) (Signer, error)
}

// Modal is one wallet connection prompt. A modal issues a single challenge and
// turns the wallet's answer to it into a Provider.
type Modal interface {
	Challenge() string
	Domain() string
	Connect(ctx context.Context, resp Response) (Provider, error)
}

// Response is the wallet's answer to a challenge.
type Response struct {
	Address   string `json:"address"`
	ChainID   int64  `json:"chainId"`
	Signature string `json:"signature"`
}

type Options struct {
	Domain string
}

// SignatureModal verifies EIP-191 personal_sign responses against its nonce.
type SignatureModal struct {
	domain string
	nonce  string

	mu   sync.Mutex
	used bool
}

func NewModal(opts Options) *SignatureModal {
	domain := strings.TrimSpace(opts.Domain)
	if domain == "" {
		domain = "localhost"
	}
	return &SignatureModal{
		domain: domain,
		nonce:  util.NewID(""),
	}
}

func (m *SignatureModal) Challenge() string {
	return m.nonce
}

func (m *SignatureModal) Domain() string {
	return m.domain
}

func (m *SignatureModal) Connect(ctx context.Context, resp Response) (Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.used {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: challenge already answered", ErrRejected)
	}
	m.used = true
	m.mu.Unlock()

	if !common.IsHexAddress(resp.Address) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrRejected, resp.Address)
	}
	if resp.ChainID <= 0 {
		return nil, fmt.Errorf("%w: missing chain id", ErrRejected)
	}
	claimed := common.HexToAddress(resp.Address)

	message := Message(m.domain, claimed.Hex(), resp.ChainID, m.nonce)
	recovered, err := RecoverAddress(message, resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if recovered != claimed {
		return nil, fmt.Errorf("%w: signature does not match %s", ErrRejected, claimed.Hex())
	}

	return &signedProvider{
		network: Network{ChainID: resp.ChainID, Name: NetworkName(resp.ChainID)},
		address: claimed.Hex(),
	}, nil
}

type signedProvider struct {
	network Network
	address string
}

func (p *signedProvider) Network(ctx context.Context) (Network, error) {
	if err := ctx.Err(); err != nil {
		return Network{}, err
	}
	return p.network, nil
}

func (p *signedProvider) Signer(ctx context.Context) (Signer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return staticSigner(p.address), nil
}

type staticSigner string

func (s staticSigner) Address(context.Context) (string, error) {
	return string(s), nil
}

// Message is the text the wallet signs to answer a challenge.
func Message(domain, address string, chainID int64, nonce string) string {
	var b strings.Builder
	b.WriteString(domain)
	b.WriteString(" wants you to sign in with your Ethereum account:\n")
	b.WriteString(address)
	b.WriteString("\n\nSign in to read and update your basic profile.\n\n")
	b.WriteString("Chain ID: ")
	b.WriteString(strconv.FormatInt(chainID, 10))
	b.WriteString("\nNonce: ")
	b.WriteString(nonce)
	return b.String()
}

// PersonalHash is the EIP-191 hash wallets sign for personal_sign.
func PersonalHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}

// RecoverAddress returns the account that produced a personal_sign signature.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// wallets emit v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(PersonalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

var networkNames = map[int64]string{
	1:        "mainnet",
	5:        "goerli",
	137:      "polygon",
	11155111: "sepolia",
}

func NetworkName(chainID int64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return "chain-" + strconv.FormatInt(chainID, 10)
}
