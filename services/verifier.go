package services

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/NoNameWrath/poap-api/models"
)

// VerifyAssertion decides whether a scanned assertion is acceptable for
// minting. It is side-effect free given the event, signer, and clock; every
// check re-reads shared state from the store, so there is nothing to
// invalidate between calls.
//
// Check order matters: cheap state checks first, then the signature, then
// the signer match, so that rejection reasons stay deterministic for a
// given assertion.
func (s *Service) VerifyAssertion(eventID string, assertion *models.SignedAssertion) error {
	ev, err := s.getEvent(eventID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if !ev.ActiveAt(now) {
		s.m.Counter("verify_event_not_active").Inc()
		return &InactiveError{"event not active"}
	}

	if assertion.Token.Event != eventID {
		s.m.Counter("verify_event_mismatch").Inc()
		return &ProofError{"token event mismatch"}
	}

	if now.Unix() > assertion.Token.Exp {
		s.m.Counter("verify_token_expired").Inc()
		return &ProofError{"token expired"}
	}

	if len(assertion.SignerKey) != ed25519.PublicKeySize {
		return &ProofError{"invalid signer key length"}
	}

	msg, err := assertion.Token.CanonicalBytes()
	if err != nil {
		return err
	}

	// The issuer signs the SHA-256 digest of the canonical bytes; raw
	// canonical bytes are accepted as a compatibility pre-image.
	digest := sha256.Sum256(msg)
	if !ed25519.Verify(assertion.SignerKey, digest[:], assertion.Signature) &&
		!ed25519.Verify(assertion.SignerKey, msg, assertion.Signature) {
		s.m.Counter("verify_bad_signature").Inc()
		return &ProofError{"invalid signature"}
	}

	// The assertion must have been signed by the event's registered signer,
	// compared on raw key bytes regardless of wire encoding.
	kp, err := s.getSigner(eventID)
	if err != nil {
		return err
	}
	if !bytes.Equal(kp.PublicKey, assertion.SignerKey) {
		s.m.Counter("verify_signer_mismatch").Inc()
		return &ProofError{"signer mismatch"}
	}

	s.m.Counter("verify_accepted").Inc()
	return nil
}
