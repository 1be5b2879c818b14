package util

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// DecodePublicKey decodes a 32-byte Ed25519 public key from its wire
// encoding. Event signer keys are issued as hex, while wallet keys are
// typically base58, so both are accepted: hex (with or without a 0x prefix)
// is tried first, then base58.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	if s == "" {
		return nil, fmt.Errorf("empty public key")
	}

	h := strings.TrimPrefix(s, "0x")
	if b, err := hex.DecodeString(h); err == nil {
		if len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid public key length: %d", len(b))
		}
		return ed25519.PublicKey(b), nil
	}

	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("public key is neither hex nor base58: %v", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

// ValidateWalletAddress checks that a wallet address decodes to a 32-byte
// public key. The address itself is treated as an opaque identifier
// everywhere else; the minting service is responsible for interpreting it.
func ValidateWalletAddress(s string) error {
	_, err := DecodePublicKey(s)
	return err
}
