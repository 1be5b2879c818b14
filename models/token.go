package models

import (
	"crypto/ed25519"
	"encoding/json"
)

// TokenVersion is the current attendance token format version.
const TokenVersion = 1

// AttendanceToken is the ephemeral value rotated on the venue display.
// It is never persisted; security rests on the short expiry, the random
// nonce, and the at-most-one-claim invariant downstream.
type AttendanceToken struct {
	Event string `json:"event"`
	Exp   int64  `json:"exp"`
	Nonce string `json:"nonce"`
	Ver   int    `json:"ver"`
}

// CanonicalBytes returns the serialization of the token that is signed and
// verified. Field order is fixed by the struct definition, so issuer and
// verifier always produce identical bytes for the same token.
func (t *AttendanceToken) CanonicalBytes() ([]byte, error) {
	return json.Marshal(t)
}

// SignedAssertion is a scanned token plus its detached signature and the
// signer public key claimed by the QR payload. Wire encodings (base64
// signature, hex or base58 key) are decoded by the API layer before the
// assertion reaches the verifier.
type SignedAssertion struct {
	Token     AttendanceToken
	Signature []byte
	SignerKey ed25519.PublicKey
}
