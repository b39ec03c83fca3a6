package config

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrIdentityNotConfigured is returned when no admin private key is set.
var ErrIdentityNotConfigured = errors.New("ADMIN_WALLET_PRIVATE_KEY not set")

// Identity is the server-side treasury wallet. Its public key is the only
// recipient a payment may be verified against, and its private key signs
// issued artifact metadata.
type Identity struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// LoadIdentity parses the admin keypair. The private key must be either a JSON
// array of exactly 64 byte values (the solana-keygen file format) or a base58
// string that decodes to exactly 64 bytes. The trailing 32 bytes must be the
// public key derived from the leading seed, and when expectedPublicKey is set
// it must match. Any deviation returns an error and a nil Identity.
func LoadIdentity(privateKey, expectedPublicKey string) (*Identity, error) {
	privateKey = strings.TrimSpace(privateKey)
	if privateKey == "" {
		return nil, ErrIdentityNotConfigured
	}

	var raw []byte
	var err error
	if strings.HasPrefix(privateKey, "[") {
		raw, err = parseKeyBytesJSON(privateKey)
	} else {
		raw, err = parseKeyBytesBase58(privateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("ADMIN_WALLET_PRIVATE_KEY: %w", err)
	}

	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("ADMIN_WALLET_PRIVATE_KEY: public half does not match seed")
	}

	id := &Identity{
		privateKey: solana.PrivateKey(raw),
		publicKey:  solana.PublicKeyFromBytes(raw[ed25519.SeedSize:]),
	}

	expectedPublicKey = strings.TrimSpace(expectedPublicKey)
	if expectedPublicKey != "" {
		expected, err := solana.PublicKeyFromBase58(expectedPublicKey)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_WALLET_PUBLIC_KEY: %w", err)
		}
		if !expected.Equals(id.publicKey) {
			return nil, fmt.Errorf("ADMIN_WALLET_PUBLIC_KEY %s does not match private key (derived %s)", expected, id.publicKey)
		}
	}

	return id, nil
}

// PublicKey returns the treasury address.
func (i *Identity) PublicKey() solana.PublicKey {
	return i.publicKey
}

// Sign signs payload with the treasury private key.
func (i *Identity) Sign(payload []byte) (solana.Signature, error) {
	return i.privateKey.Sign(payload)
}

func parseKeyBytesJSON(s string) ([]byte, error) {
	var values []int
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("invalid JSON byte array: %w", err)
	}
	if len(values) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(values))
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func parseKeyBytesBase58(s string) ([]byte, error) {
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return []byte(key), nil
}
