package tasks

import (
	"time"

	"github.com/NoNameWrath/poap-api/services"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// Consumed nonces only matter until their token expires, so sweeping a
	// few times a minute keeps the table small without mattering for
	// correctness.
	sweepInterval = 15 * time.Second
)

// SweepTokensTask periodically evicts expired rows from the consumed-nonce
// table backing the sqlite replay guard.
type SweepTokensTask struct {
	svc    *services.Service
	done   chan bool
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewSweepTokensTask(svc *services.Service, clock clockwork.Clock, logger *zap.Logger) *SweepTokensTask {
	return &SweepTokensTask{
		svc:    svc,
		done:   make(chan bool),
		clock:  clock,
		logger: logger,
	}
}

func (t *SweepTokensTask) Run() {
	ticker := t.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			t.logger.Info("Sweep tokens task stopped")
			return
		case <-ticker.Chan():
			swept, err := t.svc.SweepExpiredNonces()
			if err != nil {
				t.logger.Warn("Failed to sweep expired token nonces", zap.Error(err))
				continue
			}
			if swept > 0 {
				t.logger.Debug("Swept expired token nonces", zap.Int64("count", swept))
			}
		}
	}
}

func (t *SweepTokensTask) Stop() error {
	t.done <- true
	return nil
}
