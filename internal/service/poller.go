package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cafe_notifier/internal/domain"
)

// ErrCycleInProgress is returned by Poll when another cycle is still running.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

type PollerConfig struct {
	Boards        []domain.BoardConfig
	TitleMaxRunes int
}

// Poller runs poll cycles: fetch each board, detect changes, persist, announce.
type Poller struct {
	store     StateStore
	fetcher   Fetcher
	announcer Announcer
	publisher Publisher
	logger    *slog.Logger
	config    PollerConfig
	now       func() time.Time

	running sync.Mutex
}

func NewPoller(
	store StateStore,
	fetcher Fetcher,
	announcer Announcer,
	publisher Publisher,
	logger *slog.Logger,
	cfg PollerConfig,
) *Poller {
	return &Poller{
		store:     store,
		fetcher:   fetcher,
		announcer: announcer,
		publisher: publisher,
		logger:    logger.With("component", "poller"),
		config:    cfg,
		now:       time.Now,
	}
}

// Poll runs one cycle over all boards in configured order. Failures of a single board are
// logged and counted; they never stop the remaining boards.
func (p *Poller) Poll(ctx context.Context) (*domain.CycleStats, error) {
	if !p.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer p.running.Unlock()

	startTime := time.Now()
	p.logger.Info("starting poll cycle", "boards", len(p.config.Boards))

	state, err := p.store.Load(ctx)
	if err != nil || state == nil {
		p.logger.Warn("load state failed, treating all boards as new", "error", err)
		state = make(domain.SeenState)
	}

	stats := &domain.CycleStats{}
	for _, board := range p.config.Boards {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("poll cycle interrupted: %w", err)
		}
		p.checkBoard(ctx, state, board, stats)
	}

	stats.Duration = time.Since(startTime)

	p.logger.Info("poll cycle completed",
		"checked", stats.Checked,
		"seeded", stats.Seeded,
		"announced", stats.Announced,
		"unchanged", stats.Unchanged,
		"fetch_failures", stats.FetchFailures,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (p *Poller) checkBoard(ctx context.Context, state domain.SeenState, board domain.BoardConfig, stats *domain.CycleStats) {
	logger := p.logger.With("board", board.Key)
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			logger.Error("board check panicked", "panic", r)
		}
	}()

	stats.Checked++

	latest := p.fetcher.Fetch(ctx, board)
	if latest == nil {
		stats.FetchFailures++
	}

	switch Evaluate(state, board, latest, logger) {
	case domain.Seed:
		stats.Seeded++
		p.save(ctx, state, logger)
		logger.Info("seeded board", "link", state[board.Key])

	case domain.Announce:
		announcement := domain.Announcement{
			BoardKey:  board.Key,
			BoardName: board.DisplayName,
			Title:     latest.DisplayTitle(p.config.TitleMaxRunes),
			Link:      state[board.Key],
			SentAt:    p.now(),
		}

		// Persist first: a crash after sending must not send the same post again.
		p.save(ctx, state, logger)

		if err := p.announcer.Announce(ctx, announcement); err != nil {
			stats.Errors++
			logger.Error("announce failed", "link", announcement.Link, "error", err)
			return
		}
		stats.Announced++
		logger.Info("announced new post", "link", announcement.Link, "id", latest.ID)

		if p.publisher != nil {
			if err := p.publisher.Publish(ctx, announcement); err != nil {
				stats.Errors++
				logger.Error("publish announcement failed", "error", err)
			} else {
				stats.Published++
			}
		}

	default:
		if latest != nil {
			stats.Unchanged++
		}
	}
}

func (p *Poller) save(ctx context.Context, state domain.SeenState, logger *slog.Logger) {
	if err := p.store.Save(ctx, state); err != nil {
		logger.Error("save state failed", "error", err)
	}
}
