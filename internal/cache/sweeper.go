package cache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sweepable is anything that can drop its expired entries in one pass.
type Sweepable interface {
	SweepExpired() int
}

// Sweeper periodically calls SweepExpired on a target. It owns one goroutine
// between Start and Stop.
type Sweeper struct {
	target Sweepable
	every  time.Duration
	name   string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewSweeper(name string, target Sweepable, every time.Duration) *Sweeper {
	return &Sweeper{target: target, every: every, name: name}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op;
// a non-positive interval disables sweeping (lazy expiry in Get still applies).
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.every <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(ctx)
	log.WithFields(log.Fields{"cache": s.name, "every": s.every.String()}).Debug("cache sweeper started")
}

// Stop cancels the loop and waits for it to exit. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	log.WithField("cache", s.name).Debug("cache sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.target.SweepExpired(); n > 0 {
				log.WithFields(log.Fields{"cache": s.name, "removed": n}).Debug("swept expired entries")
			}
		}
	}
}
