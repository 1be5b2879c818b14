package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
)

// ErrTokenConsumed is returned by a ReplayGuard when a (event, nonce) pair
// has already been consumed by an earlier claim.
var ErrTokenConsumed = errors.New("token nonce already consumed")

// ReplayGuard consumes a token nonce exactly once. It is an opt-in
// strictness layer on top of the TTL: without it, a still-valid token
// scanned by a second wallet within the rotation window would mint.
// Entries only need to live until the token's own expiry.
type ReplayGuard interface {
	Consume(ctx context.Context, eventID, nonce string, expiresAt time.Time) error
	// Release hands a consumed nonce back. Used when a claim fails after
	// the guard but before the ledger write, so the same assertion stays
	// resubmittable until its own expiry.
	Release(ctx context.Context, eventID, nonce string) error
}

// RedisReplayGuard tracks consumed nonces in redis, relying on key TTLs for
// eviction.
type RedisReplayGuard struct {
	rdb   *redis.Client
	clock clockwork.Clock
}

func NewRedisReplayGuard(rdb *redis.Client, clock clockwork.Clock) *RedisReplayGuard {
	return &RedisReplayGuard{rdb: rdb, clock: clock}
}

func (g *RedisReplayGuard) Consume(ctx context.Context, eventID, nonce string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(g.clock.Now())
	if ttl <= 0 {
		// Expired tokens never reach the guard; keep a floor anyway so the
		// key does not live forever.
		ttl = time.Second
	}
	ok, err := g.rdb.SetNX(ctx, replayKey(eventID, nonce), 1, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenConsumed
	}
	return nil
}

func (g *RedisReplayGuard) Release(ctx context.Context, eventID, nonce string) error {
	return g.rdb.Del(ctx, replayKey(eventID, nonce)).Err()
}

func replayKey(eventID, nonce string) string {
	return fmt.Sprintf("replay:%s:%s", eventID, nonce)
}

// dbReplayGuard tracks consumed nonces in the consumed_tokens table. Expired
// rows are evicted by the background sweep task.
type dbReplayGuard struct {
	svc *Service
}

func (g *dbReplayGuard) Consume(ctx context.Context, eventID, nonce string, expiresAt time.Time) error {
	_, err := g.svc.consumeNonceStmt.ExecContext(ctx, eventID, nonce, expiresAt.Unix())
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrTokenConsumed
	}
	return err
}

func (g *dbReplayGuard) Release(ctx context.Context, eventID, nonce string) error {
	_, err := g.svc.releaseNonceStmt.ExecContext(ctx, eventID, nonce)
	return err
}

// SweepExpiredNonces deletes consumed-nonce rows whose tokens have expired.
// Called periodically by the sweep task.
func (s *Service) SweepExpiredNonces() (int64, error) {
	res, err := s.sweepNoncesStmt.Exec(s.clock.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
