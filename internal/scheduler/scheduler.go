package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"cafe_notifier/internal/domain"
	"cafe_notifier/internal/service"
)

// ErrAlreadyStarted is returned when Start is called on a scheduler that is already running.
var ErrAlreadyStarted = errors.New("scheduler already started")

// tickSchedule fires once per wall-clock minute; cycles are gated on top of it.
const tickSchedule = "* * * * *"

// Poller defines the interface for poll cycles.
type Poller interface {
	Poll(ctx context.Context) (*domain.CycleStats, error)
}

type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

type Config struct {
	EveryMinutes int
	RunOnStart   bool
	CycleTimeout time.Duration
}

type Scheduler struct {
	poller Poller
	config Config
	logger *slog.Logger
	now    func() time.Time

	started atomic.Bool
	state   atomic.Int32
}

func NewScheduler(poller Poller, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.EveryMinutes <= 0 {
		cfg.EveryMinutes = 1
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 5 * time.Minute
	}
	return &Scheduler{
		poller: poller,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// State reports where the scheduler is in its Idle -> Waiting -> Running cycle.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start waits for ready to be closed, then ticks every minute until ctx is done.
// It may be called only once.
func (s *Scheduler) Start(ctx context.Context, ready <-chan struct{}) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.state.Store(int32(StateWaiting))
	defer s.state.Store(int32(StateIdle))

	s.logger.Info("scheduler waiting for connection")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return fmt.Errorf("create cron scheduler: %w", err)
	}

	_, err = cron.NewJob(
		gocron.CronJob(tickSchedule, false),
		gocron.NewTask(func() { s.tick(ctx) }),
		gocron.WithName("poll-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return fmt.Errorf("create tick job: %w", err)
	}

	s.logger.Info("scheduler started", "every_minutes", s.config.EveryMinutes)

	if s.config.RunOnStart {
		s.runCycle(ctx)
	}

	cron.Start()
	<-ctx.Done()

	if err := cron.Shutdown(); err != nil {
		s.logger.Warn("cron shutdown failed", "error", err)
	}
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if !s.due(now) {
		s.logger.Debug("tick skipped", "minute", now.Minute())
		return
	}
	s.runCycle(ctx)
}

// due reports whether the wall-clock minute is a multiple of the configured interval.
func (s *Scheduler) due(now time.Time) bool {
	return now.Minute()%s.config.EveryMinutes == 0
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	prev := s.state.Swap(int32(StateRunning))
	defer s.state.Store(prev)

	cycleCtx, cancel := context.WithTimeout(ctx, s.config.CycleTimeout)
	defer cancel()

	if _, err := s.poller.Poll(cycleCtx); err != nil {
		if errors.Is(err, service.ErrCycleInProgress) {
			s.logger.Warn("previous cycle still running, skipping")
			return
		}
		s.logger.Error("poll cycle failed", "error", err)
	}
}
