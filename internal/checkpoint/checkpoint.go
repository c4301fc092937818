// Package checkpoint runs the store's periodic WAL checkpoint on a cron
// schedule, outside internal/engine (the engine itself never starts
// background goroutines — spec.md's storage core is single-threaded
// save for the caller's own locking).
package checkpoint

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Checkpointer is the subset of *store.Store the scheduler depends on,
// kept as an interface so this package never imports internal/store
// (avoids a dependency cycle and keeps the scheduler testable without a
// real disk-backed store).
type Checkpointer interface {
	Checkpoint() error
}

// Scheduler periodically calls Checkpoint() on a cron expression.
type Scheduler struct {
	target Checkpointer
	cron   *cron.Cron
	mu     sync.Mutex
	running bool
}

// New builds a Scheduler that checkpoints target on the given cron
// expression (seconds-resolution, e.g. "0 */5 * * * *" for every five
// minutes).
func New(target Checkpointer, cronExpr string) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	s := &Scheduler{target: target, cron: c}

	if _, err := c.AddFunc(cronExpr, s.runOnce); err != nil {
		return nil, fmt.Errorf("checkpoint: invalid schedule %q: %w", cronExpr, err)
	}
	return s, nil
}

// Start begins running checkpoints on schedule. Calling it again while the
// scheduler is running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Printf("checkpoint scheduler started")
}

// Stop halts the scheduler, waiting for any in-flight checkpoint to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	log.Printf("checkpoint scheduler stopped")
}

// RunNow triggers an immediate out-of-band checkpoint (used by cmd/dam's
// "checkpoint" subcommand).
func (s *Scheduler) RunNow() error {
	return s.target.Checkpoint()
}

func (s *Scheduler) runOnce() {
	if err := s.target.Checkpoint(); err != nil {
		log.Printf("checkpoint failed: %v", err)
		return
	}
	log.Printf("checkpoint completed")
}
