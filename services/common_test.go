package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NoNameWrath/poap-api/database"
	"github.com/NoNameWrath/poap-api/metrics"
	"github.com/NoNameWrath/poap-api/models"
	"github.com/NoNameWrath/poap-api/util"
	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// stubMinter is the minting boundary used in tests. It counts invocations
// so tests can assert on the exactly-once contract.
type stubMinter struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (m *stubMinter) Mint(ctx context.Context, owner, name, metadataURI string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("rpc unavailable")
	}
	m.calls++
	return fmt.Sprintf("asset-%d", m.calls), nil
}

func (m *stubMinter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *stubMinter) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Create a new service using an in-memory database.
// Each connection to ":memory:" opens a brand new in-memory sql database,
// so a shared-cache URI scoped to the test name is used instead: every
// connection in one test points at the same database, and tests stay
// isolated from each other.
func setupTestService(t *testing.T, clock clockwork.Clock, enableGuard bool) (*Service, *stubMinter, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() {
		db.Close()
	})

	// Logger
	logger, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		return nil, nil, err
	}

	if err := metrics.Init(t.Name()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		metrics.Deinit()
	})

	minter := &stubMinter{}
	config := &ServiceConfig{
		DB:                db,
		Minter:            minter,
		TokenTTL:          30 * time.Second,
		AdminEmails:       []string{"admin@example.com"},
		EnableReplayGuard: enableGuard,
		Logger:            logger,
		Clock:             clock,
	}
	return NewService(config), minter, nil
}

// Create an event whose window covers the current clock reading.
func createTestEvent(svc *Service) (*CreatedEvent, error) {
	now := svc.clock.Now()
	return svc.CreateEvent(
		"organizer@example.com",
		"Test Event",
		now.Add(-time.Hour),
		now.Add(time.Hour),
		"https://example.com/poap.json",
		"",
	)
}

// Generate a base58 wallet address the way wallet clients do.
func newTestWallet() (string, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	return base58.Encode(pub), nil
}

// Rebuild the scanned assertion from an issued token, decoding the wire
// encodings the way the API layer does.
func assertionFromIssued(issued *IssuedToken) (*models.SignedAssertion, error) {
	sig, err := base64.StdEncoding.DecodeString(issued.Sig)
	if err != nil {
		return nil, err
	}
	signer, err := util.DecodePublicKey(issued.Signer)
	if err != nil {
		return nil, err
	}
	return &models.SignedAssertion{
		Token:     issued.Token,
		Signature: sig,
		SignerKey: signer,
	}, nil
}
