// Package did derives decentralized identifiers from wallet accounts.
package did

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ceramicprofile/api/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAccount = errors.New("invalid account")

// Credential proves control of an account and names the DID it controls.
type Credential struct {
	DID       string
	AccountID string
	Address   string
	ChainID   int64
	IssuedAt  time.Time
}

// EthereumAuthProvider authenticates an Ethereum account obtained from a wallet provider.
type EthereumAuthProvider struct {
	provider wallet.Provider
	address  string
}

func NewEthereumAuthProvider(provider wallet.Provider, address string) *EthereumAuthProvider {
	return &EthereumAuthProvider{provider: provider, address: address}
}

// AccountID is the CAIP-10 id of the account, e.g. eip155:5:0xab...
func (p *EthereumAuthProvider) AccountID(ctx context.Context) (string, error) {
	network, err := p.provider.Network(ctx)
	if err != nil {
		return "", fmt.Errorf("lookup network: %w", err)
	}
	if !common.IsHexAddress(p.address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, p.address)
	}
	return AccountID(network.ChainID, p.address), nil
}

func (p *EthereumAuthProvider) Authenticate(ctx context.Context) (Credential, error) {
	network, err := p.provider.Network(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("lookup network: %w", err)
	}
	signer, err := p.provider.Signer(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("get signer: %w", err)
	}
	signerAddress, err := signer.Address(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("get signer address: %w", err)
	}
	if !common.IsHexAddress(p.address) || !strings.EqualFold(signerAddress, p.address) {
		return Credential{}, fmt.Errorf("%w: signer %s does not control %s", ErrInvalidAccount, signerAddress, p.address)
	}

	accountID := AccountID(network.ChainID, p.address)
	return Credential{
		DID:       "did:pkh:" + accountID,
		AccountID: accountID,
		Address:   common.HexToAddress(p.address).Hex(),
		ChainID:   network.ChainID,
		IssuedAt:  time.Now().UTC(),
	}, nil
}

func AccountID(chainID int64, address string) string {
	return "eip155:" + strconv.FormatInt(chainID, 10) + ":" + strings.ToLower(common.HexToAddress(address).Hex())
}
