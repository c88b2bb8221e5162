package cafe

import (
	"context"
	"log/slog"

	"cafe_notifier/internal/domain"
)

type strategy interface {
	name() string
	latest(ctx context.Context, board domain.BoardConfig) (*domain.LatestPost, error)
}

// Source fetches the latest post of a board with the strategy the board is configured for.
type Source struct {
	strategies map[string]strategy
	logger     *slog.Logger
}

// New creates a Source with both the api and scrape strategies sharing one HTTP client.
func New(cfg Config, logger *slog.Logger) *Source {
	c := newClient(cfg, logger)
	return &Source{
		strategies: map[string]strategy{
			domain.StrategyAPI:    &apiStrategy{client: c, baseURL: cfg.APIBaseURL},
			domain.StrategyScrape: &scrapeStrategy{client: c},
		},
		logger: logger.With("component", "cafe_source"),
	}
}

// Fetch returns the newest post on the board, or nil when it could not be determined.
// Every failure (transport, status, body shape) is logged here and reported as nil.
func (s *Source) Fetch(ctx context.Context, board domain.BoardConfig) *domain.LatestPost {
	st, ok := s.strategies[board.Strategy]
	if !ok {
		s.logger.Warn("unknown fetch strategy", "board", board.Key, "strategy", board.Strategy)
		return nil
	}

	post, err := st.latest(ctx, board)
	if err != nil {
		s.logger.Warn("fetch latest post failed",
			"board", board.Key,
			"strategy", st.name(),
			"error", err,
		)
		return nil
	}

	s.logger.Debug("fetched latest post",
		"board", board.Key,
		"id", post.ID,
	)
	return post
}
