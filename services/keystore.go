package services

import (
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NoNameWrath/poap-api/models"
	"go.uber.org/zap"
)

// generateSigner produces a fresh Ed25519 keypair for an event. It does not
// persist anything; storeSigner does, inside the event-creation transaction,
// so that no event can exist without a signer.
func generateSigner(eventID string) (*models.SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signer keypair: %w", err)
	}
	return &models.SigningKeyPair{
		EventID:    eventID,
		PublicKey:  pub,
		PrivateKey: priv,
	}, nil
}

// storeSigner persists a signer keypair as part of an open transaction.
func (s *Service) storeSigner(tx *sql.Tx, kp *models.SigningKeyPair) error {
	stmt := tx.Stmt(s.addSignerStmt)
	defer stmt.Close()
	_, err := stmt.Exec(kp.EventID, []byte(kp.PublicKey), []byte(kp.PrivateKey), s.clock.Now().Unix())
	return err
}

// getSigner returns the signing keypair for an event. A missing signer for
// an existing event is a data-integrity violation, since signer rows are
// created in the same transaction as their event.
func (s *Service) getSigner(eventID string) (*models.SigningKeyPair, error) {
	row := s.getSignerStmt.QueryRow(eventID)

	var pub, priv []byte
	err := row.Scan(&pub, &priv)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("Event has no signer keypair",
			zap.String("eventID", eventID))
		s.m.Counter("signer_missing").Inc()
		return nil, &NotFoundError{"event signer missing"}
	}
	if err != nil {
		return nil, err
	}
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		s.logger.Error("Stored signer keypair has invalid length",
			zap.String("eventID", eventID),
			zap.Int("publicKeyLen", len(pub)),
			zap.Int("privateKeyLen", len(priv)))
		return nil, &PersistenceError{"stored signer keypair is corrupt"}
	}
	return &models.SigningKeyPair{
		EventID:    eventID,
		PublicKey:  ed25519.PublicKey(pub),
		PrivateKey: ed25519.PrivateKey(priv),
	}, nil
}
