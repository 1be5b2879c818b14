package services

import (
	"time"

	"github.com/NoNameWrath/poap-api/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatedEvent is returned from CreateEvent so the organizer UI can show
// the event id and the signer key that will appear in issued tokens.
type CreatedEvent struct {
	EventID         string
	SignerPublicKey string
}

// CreateEvent creates an event and its signing keypair in one transaction.
// The scheduling window is immutable afterward, and the event never exists
// without a signer: if either insert fails, the whole operation fails.
func (s *Service) CreateEvent(identity, name string, startsAt, endsAt time.Time, metadataURI, imageURL string) (*CreatedEvent, error) {
	if name == "" {
		return nil, &ValidationError{"name is required"}
	}
	if startsAt.IsZero() || endsAt.IsZero() {
		return nil, &ValidationError{"starts_at and ends_at are required"}
	}
	if !endsAt.After(startsAt) {
		return nil, &ValidationError{"ends_at must be after starts_at"}
	}

	eventID := uuid.NewString()
	kp, err := generateSigner(eventID)
	if err != nil {
		s.m.Counter("event_keygen_failed").Inc()
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	stmt := tx.Stmt(s.addEventStmt)
	defer stmt.Close()
	_, err = stmt.Exec(eventID, name, startsAt.Unix(), endsAt.Unix(), metadataURI, imageURL, identity, s.clock.Now().Unix())
	if err != nil {
		s.logger.Error("Failed to insert event", zap.Error(err))
		return nil, &PersistenceError{"failed to create event"}
	}

	if err := s.storeSigner(tx, kp); err != nil {
		s.logger.Error("Failed to store event signer", zap.Error(err))
		return nil, &PersistenceError{"failed to store event signer"}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{"failed to create event"}
	}

	s.logger.Info("Created event",
		zap.String("eventID", eventID),
		zap.String("name", name),
		zap.String("createdBy", identity))
	s.m.Counter("event_created").Inc()

	return &CreatedEvent{
		EventID:         eventID,
		SignerPublicKey: kp.PublicKeyHex(),
	}, nil
}

// GetEvent returns event display metadata. Read-only, used by the rotation
// and wallet clients.
func (s *Service) GetEvent(eventID string) (*models.Event, error) {
	return s.getEvent(eventID)
}

// DeleteEvent removes an event and its signer keypair. Admin only. Existing
// passes are kept; they record credentials that were already minted.
func (s *Service) DeleteEvent(identity, eventID string) error {
	if !s.isAdmin(identity) {
		s.m.Counter("event_delete_denied").Inc()
		return &AuthorizationError{"admin access required"}
	}

	if _, err := s.getEvent(eventID); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer rollback(tx)

	// The signer is exclusively owned by the event; delete it first.
	ds := tx.Stmt(s.deleteSignerStmt)
	defer ds.Close()
	if _, err := ds.Exec(eventID); err != nil {
		s.logger.Error("Failed to delete event signer", zap.Error(err))
		return &PersistenceError{"failed to delete event signer"}
	}

	de := tx.Stmt(s.deleteEventStmt)
	defer de.Close()
	if _, err := de.Exec(eventID); err != nil {
		s.logger.Error("Failed to delete event", zap.Error(err))
		return &PersistenceError{"failed to delete event"}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{"failed to delete event"}
	}

	s.logger.Info("Deleted event",
		zap.String("eventID", eventID),
		zap.String("deletedBy", identity))
	s.m.Counter("event_deleted").Inc()
	return nil
}
