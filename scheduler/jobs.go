package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"ticker_backend/models"
	"ticker_backend/services/market"
	"ticker_backend/services/metrics"
	"ticker_backend/services/predictions"
)

// Timer is a cancellable one-shot timer. Stopping a fired or stopped timer is a no-op.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a one-shot timer calling f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Broadcaster publishes the ticker digest
type Broadcaster interface {
	Enabled() bool
	Broadcast(ctx context.Context) string
}

// Resolver settles predictions on boundary ticks
type Resolver interface {
	ResolveAll(ctx context.Context, tick models.TickState) []predictions.Outcome
}

// Purger removes stale predictions
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Options tunes the scheduler
type Options struct {
	// PhasePause separates the broadcast from the resolution on boundary ticks
	PhasePause time.Duration
	// PredictionMaxAge enables the nightly purge when positive
	PredictionMaxAge time.Duration
}

// Scheduler drives the 15-minute tick loop. It owns the only tick timer:
// every fire re-arms the next boundary before doing any work, and Stop
// cancels the pending timer so a restart never leaves two timers armed.
type Scheduler struct {
	broadcaster Broadcaster
	resolver    Resolver
	purger      Purger
	opts        Options

	now       func() time.Time
	afterFunc AfterFunc

	mu         sync.Mutex
	running    bool
	generation uint64
	timer      Timer
	next       time.Time
	cron       *gocron.Scheduler

	inflight sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(b Broadcaster, r Resolver, p Purger, opts Options) *Scheduler {
	return &Scheduler{
		broadcaster: b,
		resolver:    r,
		purger:      p,
		opts:        opts,
		now:         market.Now,
		afterFunc:   realAfterFunc,
	}
}

// Start arms the timer for the next 15-minute boundary. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.generation++
	s.arm(s.generation, s.now())

	if s.purger != nil && s.opts.PredictionMaxAge > 0 {
		s.startMaintenance()
	}

	log.Info().Time("next_tick", s.next).Msg("Scheduler started")
}

// Stop cancels the pending timer. A tick already running is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = time.Time{}
	cron := s.cron
	s.cron = nil
	s.mu.Unlock()

	if cron != nil {
		cron.Stop()
	}
	log.Info().Msg("Scheduler stopped")
}

// Wait blocks until running ticks finish or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextTick returns the boundary the timer is armed for, zero when stopped
func (s *Scheduler) NextTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// IsRunning returns whether the scheduler is armed
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// arm must be called with s.mu held
func (s *Scheduler) arm(gen uint64, after time.Time) {
	next := market.NextBoundary(after)
	delay := next.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.next = next
	s.timer = s.afterFunc(delay, func() { s.fire(gen, next) })
}

// fire runs on the timer goroutine for the boundary at
func (s *Scheduler) fire(gen uint64, at time.Time) {
	s.mu.Lock()
	if !s.running || gen != s.generation {
		// timer from a stopped or replaced run
		s.mu.Unlock()
		return
	}

	// Re-arm first so a slow tick body cannot delay the next tick. Basing it on the
	// later of now and at means an early timer cannot re-arm for the same boundary.
	after := s.now()
	if at.After(after) {
		after = at
	}
	s.arm(gen, after)
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	s.runTick(context.Background(), at)
}

// runTick classifies the boundary instant and runs the phases that apply
func (s *Scheduler) runTick(ctx context.Context, at time.Time) {
	tick := market.Classify(at)
	log.Debug().Time("tick", tick.Now).Bool("market_open", tick.IsMarketOpen).
		Bool("open_boundary", tick.IsOpenBoundary).Bool("close_boundary", tick.IsCloseBoundary).
		Msg("Scheduler tick")

	ran := false
	if tick.IsMarketOpen && s.broadcaster != nil && s.broadcaster.Enabled() {
		ran = true
		metrics.Ticks.WithLabelValues("broadcast").Inc()
		s.safely("broadcast", func() { s.broadcaster.Broadcast(ctx) })
	}

	if tick.ShouldResolve() && s.resolver != nil {
		ran = true
		metrics.Ticks.WithLabelValues("resolve").Inc()

		// Leave room in the upstream rate budget after the broadcast fan-out
		if err := sleep(ctx, s.opts.PhasePause); err != nil {
			log.Warn().Err(err).Msg("Tick interrupted before resolving predictions")
			return
		}
		s.safely("resolve", func() { s.resolver.ResolveAll(ctx, tick) })
	}

	if !ran {
		metrics.Ticks.WithLabelValues("idle").Inc()
	}
}

// safely keeps a failing phase from killing the loop
func (s *Scheduler) safely(phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("phase", phase).Str("panic", fmt.Sprint(r)).Msg("Tick phase panicked")
		}
	}()
	fn()
}

// startMaintenance schedules the nightly purge. Must be called with s.mu held.
func (s *Scheduler) startMaintenance() {
	cron := gocron.NewScheduler(market.Location)
	if _, err := cron.Every(1).Day().At("03:00").Do(s.purgeStale); err != nil {
		log.Error().Err(err).Msg("Failed to schedule prediction purge")
		return
	}
	cron.StartAsync()
	s.cron = cron
}

// purgeStale removes predictions older than the configured age, for example on
// symbols whose quotes keep failing and therefore never resolve
func (s *Scheduler) purgeStale() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.opts.PredictionMaxAge)
	n, err := s.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge stale predictions")
		return
	}
	log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("Purged stale predictions")
}

// sleep waits d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
