package services

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/NoNameWrath/poap-api/models"
	"go.uber.org/zap"
)

const (
	// DefaultTokenTTL is how long an issued attendance token stays valid.
	// Short on purpose: a rotating QR code is visually observable, and the
	// TTL is the only thing bounding how far a photographed code travels.
	DefaultTokenTTL = 30 * time.Second

	// Token nonces carry 96 bits of randomness.
	nonceSize = 12
)

// IssuedToken is the payload rendered into the rotating QR code: the token,
// its detached signature, and the signer public key.
type IssuedToken struct {
	Token  models.AttendanceToken `json:"token"`
	Sig    string                 `json:"sig"`
	Signer string                 `json:"signer"`
}

func newNonce() (string, error) {
	b := make([]byte, nonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

// IssueToken mints a freshly signed, time-boxed attendance token for an
// event. Every call produces a new token; nothing is cached or persisted,
// and there is no revocation list. Issuance is allowed outside the event
// window; liveness is enforced at verification.
func (s *Service) IssueToken(eventID string) (*IssuedToken, error) {
	if _, err := s.getEvent(eventID); err != nil {
		return nil, err
	}

	kp, err := s.getSigner(eventID)
	if err != nil {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		s.m.Counter("issue_nonce_failed").Inc()
		return nil, err
	}

	now := s.clock.Now()
	token := models.AttendanceToken{
		Event: eventID,
		Exp:   now.Add(s.tokenTTL).Unix(),
		Nonce: nonce,
		Ver:   models.TokenVersion,
	}

	// Sign the SHA-256 digest of the canonical serialization. The verifier
	// accepts raw canonical bytes as well, for older rotation clients.
	msg, err := token.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(msg)
	sig := ed25519.Sign(kp.PrivateKey, digest[:])

	s.logger.Debug("Issued attendance token",
		zap.String("eventID", eventID),
		zap.Int64("exp", token.Exp))
	s.m.Counter("token_issued").Inc()

	return &IssuedToken{
		Token:  token,
		Sig:    base64.StdEncoding.EncodeToString(sig),
		Signer: kp.PublicKeyHex(),
	}, nil
}
