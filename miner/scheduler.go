package miner

import (
	"context"
	"time"

	"github.com/boocoin/boocoin/log"
)

// wakeInterval is the scheduler's wake-up cadence (spec.md §4.7).
const wakeInterval = 30 * time.Second

// Scheduler is the background task that periodically checks whether
// conditions to mine have been met. It is cancellable via context so node
// shutdown never blocks on it.
type Scheduler struct {
	miner  *Miner
	logger log.Logger
	done   chan struct{}
}

// NewScheduler builds a scheduler bound to miner.
func NewScheduler(miner *Miner) *Scheduler {
	return &Scheduler{
		miner:  miner,
		logger: log.New("module", "scheduler"),
		done:   make(chan struct{}),
	}
}

// Start runs the wake loop until ctx is cancelled. Intended to be run in
// its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(wakeInterval)
	defer ticker.Stop()
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Wait blocks until Start has returned, for callers that want a clean join
// at shutdown.
func (s *Scheduler) Wait() {
	<-s.done
}

func (s *Scheduler) tick() {
	shouldMine, err := s.miner.IsTimeToMine()
	if err != nil {
		s.logger.Warn("failed to check mining condition", "err", err)
		return
	}
	if !shouldMine {
		return
	}
	if err := s.miner.MineBlock(); err != nil {
		s.logger.Warn("scheduled mine attempt failed", "err", err)
	}
}
