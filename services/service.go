package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/NoNameWrath/poap-api/metrics"
	"github.com/NoNameWrath/poap-api/models"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Minter is the credential-issuance boundary. It is assumed to be a slow,
// fallible remote service with its own retry behavior; the core calls it at
// most once per successful first-time claim and persists its result.
type Minter interface {
	Mint(ctx context.Context, owner, name, metadataURI string) (string, error)
}

type ValidationError struct {
	msg string
}

func (v *ValidationError) Error() string {
	return v.msg
}

func (v *ValidationError) Is(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

type AuthenticationError struct {
	msg string
}

func (a *AuthenticationError) Error() string {
	return a.msg
}

func (a *AuthenticationError) Is(err error) bool {
	_, ok := err.(*AuthenticationError)
	return ok
}

type AuthorizationError struct {
	msg string
}

func (a *AuthorizationError) Error() string {
	return a.msg
}

func (a *AuthorizationError) Is(err error) bool {
	_, ok := err.(*AuthorizationError)
	return ok
}

type NotFoundError struct {
	msg string
}

func (n *NotFoundError) Error() string {
	return n.msg
}

func (n *NotFoundError) Is(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// InactiveError means the event exists but its scheduling window does not
// cover the current time.
type InactiveError struct {
	msg string
}

func (i *InactiveError) Error() string {
	return i.msg
}

func (i *InactiveError) Is(err error) bool {
	_, ok := err.(*InactiveError)
	return ok
}

// ProofError covers every way a presented assertion can fail verification:
// expired or mismatched token, bad signature, wrong signer. Proof failures
// are never retried server-side; the attendee re-scans a fresh code.
type ProofError struct {
	msg string
}

func (p *ProofError) Error() string {
	return p.msg
}

func (p *ProofError) Is(err error) bool {
	_, ok := err.(*ProofError)
	return ok
}

type UpstreamError struct {
	msg string
}

func (u *UpstreamError) Error() string {
	return u.msg
}

func (u *UpstreamError) Is(err error) bool {
	_, ok := err.(*UpstreamError)
	return ok
}

type PersistenceError struct {
	msg string
}

func (p *PersistenceError) Error() string {
	return p.msg
}

func (p *PersistenceError) Is(err error) bool {
	_, ok := err.(*PersistenceError)
	return ok
}

// ServiceConfig contains the configuration for a Service.
type ServiceConfig struct {
	DB          *sql.DB
	Minter      Minter
	TokenTTL    time.Duration
	AdminEmails []string

	// ReplayGuard, when set, is used as-is (redis in production). When nil
	// and EnableReplayGuard is set, a sqlite-backed guard is used.
	ReplayGuard       ReplayGuard
	EnableReplayGuard bool

	Logger *zap.Logger
	Clock  clockwork.Clock
}

// Services contain business logic, are responsible for interacting with the
// database, and with the external minting service.
// They are called by the API handlers.
type Service struct {
	// Database
	db               *sql.DB
	getEventStmt     *sql.Stmt
	addEventStmt     *sql.Stmt
	deleteEventStmt  *sql.Stmt
	getSignerStmt    *sql.Stmt
	addSignerStmt    *sql.Stmt
	deleteSignerStmt *sql.Stmt
	getPassStmt      *sql.Stmt
	addPassStmt      *sql.Stmt
	isAdminStmt      *sql.Stmt
	consumeNonceStmt *sql.Stmt
	releaseNonceStmt *sql.Stmt
	sweepNoncesStmt  *sql.Stmt

	// The external minting boundary.
	minter Minter

	// Optional anti-replay guard for token nonces.
	guard ReplayGuard

	tokenTTL          time.Duration
	adminEmails       []string
	enableReplayGuard bool

	m      *metrics.MetricsRegistry
	logger *zap.Logger

	clock clockwork.Clock
}

func NewService(config *ServiceConfig) *Service {
	return &Service{
		db:                config.DB,
		minter:            config.Minter,
		guard:             config.ReplayGuard,
		tokenTTL:          config.TokenTTL,
		adminEmails:       config.AdminEmails,
		enableReplayGuard: config.EnableReplayGuard,
		logger:            config.Logger,
		clock:             config.Clock,
	}
}

func (s *Service) Init() error {
	s.m = metrics.NewMetricsRegistry("service")
	if err := s.createTables(); err != nil {
		return err
	}
	if err := s.prepareStatements(); err != nil {
		return err
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	// Fall back to the sqlite guard when the feature is enabled but no
	// external guard was injected. With the guard off, nonces are not
	// tracked at all and replay protection rests on the short TTL plus the
	// at-most-one-claim invariant.
	if s.guard == nil && s.enableReplayGuard {
		s.guard = &dbReplayGuard{svc: s}
	}
	return s.seedAdmins()
}

func (s *Service) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			starts_at INTEGER NOT NULL,
			ends_at INTEGER NOT NULL,
			metadata_uri TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS qr_keys (
			event_id TEXT PRIMARY KEY REFERENCES events(id),
			public_key BLOB(32) NOT NULL,
			secret_key BLOB(64) NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS passes (
			event_id TEXT NOT NULL,
			wallet_pubkey TEXT NOT NULL,
			minted_asset TEXT NOT NULL,
			user_email TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (event_id, wallet_pubkey)
		);
		CREATE TABLE IF NOT EXISTS consumed_tokens (
			event_id TEXT NOT NULL,
			nonce TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (event_id, nonce)
		);
		CREATE TABLE IF NOT EXISTS admins (
			email TEXT PRIMARY KEY
		);
	`)
	return err
}

func (s *Service) prepareStatements() error {
	var err error

	if s.getEventStmt, err = s.db.Prepare(`
		SELECT id, name, starts_at, ends_at, metadata_uri, image_url, created_by, created_at
		FROM events WHERE id = ?;
	`); err != nil {
		return err
	}

	if s.addEventStmt, err = s.db.Prepare(`
		INSERT INTO events (id, name, starts_at, ends_at, metadata_uri, image_url, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`); err != nil {
		return err
	}

	if s.deleteEventStmt, err = s.db.Prepare(`
		DELETE FROM events WHERE id = ?;
	`); err != nil {
		return err
	}

	if s.getSignerStmt, err = s.db.Prepare(`
		SELECT public_key, secret_key FROM qr_keys WHERE event_id = ?;
	`); err != nil {
		return err
	}

	if s.addSignerStmt, err = s.db.Prepare(`
		INSERT INTO qr_keys (event_id, public_key, secret_key, created_at) VALUES (?, ?, ?, ?);
	`); err != nil {
		return err
	}

	if s.deleteSignerStmt, err = s.db.Prepare(`
		DELETE FROM qr_keys WHERE event_id = ?;
	`); err != nil {
		return err
	}

	if s.getPassStmt, err = s.db.Prepare(`
		SELECT minted_asset, user_email, created_at FROM passes
		WHERE event_id = ? AND wallet_pubkey = ?;
	`); err != nil {
		return err
	}

	if s.addPassStmt, err = s.db.Prepare(`
		INSERT INTO passes (event_id, wallet_pubkey, minted_asset, user_email, created_at)
		VALUES (?, ?, ?, ?, ?);
	`); err != nil {
		return err
	}

	if s.isAdminStmt, err = s.db.Prepare(`
		SELECT email FROM admins WHERE email = ? LIMIT 1;
	`); err != nil {
		return err
	}

	if s.consumeNonceStmt, err = s.db.Prepare(`
		INSERT INTO consumed_tokens (event_id, nonce, expires_at) VALUES (?, ?, ?);
	`); err != nil {
		return err
	}

	if s.releaseNonceStmt, err = s.db.Prepare(`
		DELETE FROM consumed_tokens WHERE event_id = ? AND nonce = ?;
	`); err != nil {
		return err
	}

	if s.sweepNoncesStmt, err = s.db.Prepare(`
		DELETE FROM consumed_tokens WHERE expires_at <= ?;
	`); err != nil {
		return err
	}

	return nil
}

func (s *Service) seedAdmins() error {
	for _, email := range s.adminEmails {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO admins (email) VALUES (?);`, email); err != nil {
			return err
		}
	}
	return nil
}

// getEvent looks up an event by id.
func (s *Service) getEvent(eventID string) (*models.Event, error) {
	row := s.getEventStmt.QueryRow(eventID)

	var ev models.Event
	var startsAt, endsAt, createdAt int64
	err := row.Scan(&ev.ID, &ev.Name, &startsAt, &endsAt, &ev.MetadataURI, &ev.ImageURL, &ev.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{"event not found"}
	}
	if err != nil {
		return nil, err
	}
	ev.StartsAt = time.Unix(startsAt, 0)
	ev.EndsAt = time.Unix(endsAt, 0)
	ev.CreatedAt = time.Unix(createdAt, 0)
	return &ev, nil
}

// isAdmin checks if an identity is allowed to manage events.
func (s *Service) isAdmin(email string) bool {
	var got string
	err := s.isAdminStmt.QueryRow(email).Scan(&got)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("Failed to query admins", zap.Error(err))
		}
		return false
	}
	return true
}

func (s *Service) Deinit() {
	// Close prepared statements
	for _, stmt := range []**sql.Stmt{
		&s.getEventStmt,
		&s.addEventStmt,
		&s.deleteEventStmt,
		&s.getSignerStmt,
		&s.addSignerStmt,
		&s.deleteSignerStmt,
		&s.getPassStmt,
		&s.addPassStmt,
		&s.isAdminStmt,
		&s.consumeNonceStmt,
		&s.releaseNonceStmt,
		&s.sweepNoncesStmt,
	} {
		if *stmt == nil {
			continue
		}
		(*stmt).Close()
		*stmt = nil
	}
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
