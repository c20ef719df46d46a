package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner is a wallet backed by a local secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeySigner{key: key}, nil
}

func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeySigner{key: key}, nil
}

// Address is the EIP-55 checksummed account address.
func (s *KeySigner) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// PrivateKeyHex exports the key without 0x prefix.
func (s *KeySigner) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))[2:]
}

// SignMessage produces a personal_sign signature with v in {27, 28}.
func (s *KeySigner) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(PersonalHash(message), s.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// Answer signs a modal challenge the way a browser wallet would.
func (s *KeySigner) Answer(domain, nonce string, chainID int64) (Response, error) {
	address := s.Address()
	signature, err := s.SignMessage(Message(domain, address, chainID, nonce))
	if err != nil {
		return Response{}, err
	}
	return Response{Address: address, ChainID: chainID, Signature: signature}, nil
}
