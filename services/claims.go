package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/NoNameWrath/poap-api/models"
	"github.com/NoNameWrath/poap-api/util"

	"github.com/mattn/go-sqlite3"

	"go.uber.org/zap"
)

var (
	// The delay between retries when inserting a pass hits a busy database.
	// Values are taken from SQLite's default busy handler.
	dbTryDelayMs = []int{1, 2, 5, 10, 15, 20, 25, 25, 25, 50, 50, 100}
)

// MintResult is the outcome of a claim: the minted asset identifier and
// whether it came from a prior claim for the same (event, wallet) pair.
type MintResult struct {
	MintedAsset string
	Reused      bool
}

// MintPass is the verify-then-claim entry point. On verification failure the
// rejection reason is returned verbatim and the ledger is never touched. On
// success the claim is recorded at most once per (event, wallet); repeat
// scans return the original asset with Reused set.
func (s *Service) MintPass(ctx context.Context, eventID string, assertion *models.SignedAssertion, wallet, identity string) (*MintResult, error) {
	if err := util.ValidateWalletAddress(wallet); err != nil {
		s.m.Counter("mint_invalid_wallet").Inc()
		return nil, &ValidationError{"invalid wallet_pubkey"}
	}

	if err := s.VerifyAssertion(eventID, assertion); err != nil {
		return nil, err
	}

	// Re-read the event for display metadata. Cheap, and keeps the verifier
	// free of minting concerns.
	ev, err := s.getEvent(eventID)
	if err != nil {
		return nil, err
	}

	// The mint function only runs on the first-time-claim path, after the
	// idempotency lookup missed. The replay guard is consulted here rather
	// than during verification so that post-success re-scans by the same
	// wallet never burn a nonce.
	mintFn := func() (string, error) {
		if s.guard != nil {
			err := s.guard.Consume(ctx, eventID, assertion.Token.Nonce, time.Unix(assertion.Token.Exp, 0))
			if errors.Is(err, ErrTokenConsumed) {
				s.m.Counter("mint_token_replayed").Inc()
				return "", &ProofError{"token already used"}
			}
			if err != nil {
				s.logger.Error("Replay guard failure", zap.Error(err))
				return "", &PersistenceError{"replay guard unavailable"}
			}
		}

		// No in-process lock is held here; the minting service can be slow.
		asset, err := s.minter.Mint(ctx, wallet, ev.Name, ev.MetadataURI)
		if err != nil {
			// The claim was never recorded, so hand the nonce back: the
			// same assertion must stay resubmittable until its own expiry.
			if s.guard != nil {
				if rerr := s.guard.Release(ctx, eventID, assertion.Token.Nonce); rerr != nil {
					s.logger.Error("Failed to release token nonce after mint failure",
						zap.String("eventID", eventID),
						zap.Error(rerr))
				}
			}
			s.logger.Error("Minting service failure",
				zap.String("eventID", eventID),
				zap.Error(err))
			s.m.Counter("mint_upstream_failed").Inc()
			return "", &UpstreamError{"minting service failed"}
		}
		return asset, nil
	}

	res, err := s.claimPass(eventID, wallet, identity, mintFn)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Minted attendance pass",
		zap.String("eventID", eventID),
		zap.String("wallet", wallet),
		zap.String("asset", res.MintedAsset),
		zap.Bool("reused", res.Reused))
	return res, nil
}

// claimPass enforces the at-most-one-claim invariant for a (event, wallet)
// pair. mintFn is invoked only when no prior pass exists; if the subsequent
// insert loses a uniqueness race to a concurrent claim, the winner's result
// is returned as a success. The mint side effect is not undone in that case.
func (s *Service) claimPass(eventID, wallet, identity string, mintFn func() (string, error)) (*MintResult, error) {
	// Idempotent replay of a prior claim: cheap and side-effect free.
	pass, err := s.getPass(eventID, wallet)
	if err == nil {
		s.m.Counter("claim_reused").Inc()
		return &MintResult{MintedAsset: pass.MintedAsset, Reused: true}, nil
	}
	if !errors.Is(err, &NotFoundError{}) {
		return nil, err
	}

	asset, err := mintFn()
	if err != nil {
		return nil, err
	}

	// Record the claim. The primary key on (event_id, wallet_pubkey) is
	// what actually serializes concurrent writers.
	var try int
	for try = range dbTryDelayMs {
		_, err = s.addPassStmt.Exec(eventID, wallet, asset, identity, s.clock.Now().Unix())
		if err == nil {
			s.m.Counter("claim_created").Inc()
			return &MintResult{MintedAsset: asset}, nil
		}

		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			break
		}
		if sqliteErr.Code == sqlite3.ErrConstraint {
			// A concurrent claim won the race. Return its result; the
			// attendee did not cause this and must not see an error.
			winner, gerr := s.getPass(eventID, wallet)
			if gerr != nil {
				s.logger.Error("Lost claim race but winner row is unreadable",
					zap.String("eventID", eventID),
					zap.String("wallet", wallet),
					zap.Error(gerr))
				return nil, &PersistenceError{"failed to read concurrent claim"}
			}
			s.m.Counter("claim_race_resolved").Inc()
			return &MintResult{MintedAsset: winner.MintedAsset, Reused: true}, nil
		}
		if sqliteErr.Code != sqlite3.ErrLocked && sqliteErr.Code != sqlite3.ErrBusy {
			break
		}

		// Retry after a delay.
		sleepFor := dbTryDelayMs[try]
		s.logger.Warn("Failed to record pass. Retrying",
			zap.Int("try", try),
			zap.Int("retryMs", sleepFor),
			zap.Error(err),
		)
		s.clock.Sleep(time.Duration(sleepFor) * time.Millisecond)
	}

	s.logger.Error("Failed to record pass. Giving up.",
		zap.Int("tries", try),
		zap.Error(err))
	s.m.Counter("claim_persist_failed").Inc()
	return nil, &PersistenceError{"failed to record pass"}
}

// getPass looks up an existing claim for a (event, wallet) pair.
func (s *Service) getPass(eventID, wallet string) (*models.Pass, error) {
	row := s.getPassStmt.QueryRow(eventID, wallet)

	pass := models.Pass{EventID: eventID, WalletPubkey: wallet}
	var createdAt int64
	err := row.Scan(&pass.MintedAsset, &pass.UserEmail, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{"pass not found"}
	}
	if err != nil {
		return nil, err
	}
	pass.CreatedAt = time.Unix(createdAt, 0)
	return &pass, nil
}
