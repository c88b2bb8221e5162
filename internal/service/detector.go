package service

import (
	"log/slog"

	"cafe_notifier/internal/domain"
)

// Evaluate decides what to do with the latest post of a board and records the new
// link in state when the board is seeded or announced. A nil post leaves state untouched.
func Evaluate(state domain.SeenState, board domain.BoardConfig, latest *domain.LatestPost, logger *slog.Logger) domain.Action {
	if latest == nil {
		logger.Warn("no latest post this cycle", "board", board.Key)
		return domain.NoChange
	}

	link := board.Link(latest.ID)
	stored := state[board.Key]

	switch {
	case stored == "":
		state[board.Key] = link
		return domain.Seed
	case stored == link:
		return domain.NoChange
	default:
		state[board.Key] = link
		return domain.Announce
	}
}
