package models

import (
	"crypto/ed25519"
	"encoding/hex"
)

// SigningKeyPair is the per-event Ed25519 keypair used to sign attendance
// tokens. The private key never leaves the server; attendees only ever see
// the public key embedded in the QR payload.
type SigningKeyPair struct {
	EventID    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// PublicKeyHex returns the hex encoding of the public key, the format used
// on the wire in issued tokens.
func (kp *SigningKeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.PublicKey)
}
