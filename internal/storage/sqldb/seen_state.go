package sqldb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"cafe_notifier/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_state (
	board_key  TEXT PRIMARY KEY,
	link       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

type seenRow struct {
	BoardKey string `db:"board_key"`
	Link     string `db:"link"`
}

// SeenStateStore keeps seen state in a SQL table, one row per board.
type SeenStateStore struct {
	db        *sqlx.DB
	txManager *TransactionManager
	logger    *slog.Logger
}

func NewSeenStateStore(db *sqlx.DB, logger *slog.Logger) *SeenStateStore {
	return &SeenStateStore{
		db:        db,
		txManager: NewTransactionManager(db, txOptionsFor(db.DriverName())),
		logger:    logger.With("component", "sql_state", "driver", db.DriverName()),
	}
}

// EnsureSchema creates the seen_state table when it does not exist.
func (s *SeenStateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create seen_state table: %w", err)
	}
	return nil
}

// Load returns every stored row. A query failure is logged and yields an empty mapping.
func (s *SeenStateStore) Load(ctx context.Context) (domain.SeenState, error) {
	var rows []seenRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT board_key, link FROM seen_state`)
	if err != nil {
		s.logger.Warn("load seen state failed, starting empty", "error", err)
		return make(domain.SeenState), nil
	}

	state := make(domain.SeenState, len(rows))
	for _, r := range rows {
		state[r.BoardKey] = r.Link
	}
	return state, nil
}

// Save upserts the whole mapping in one transaction.
func (s *SeenStateStore) Save(ctx context.Context, state domain.SeenState) error {
	query := s.db.Rebind(`
		INSERT INTO seen_state (board_key, link, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (board_key) DO UPDATE SET
			link = EXCLUDED.link,
			updated_at = EXCLUDED.updated_at
		WHERE seen_state.link <> EXCLUDED.link`)

	now := time.Now().UTC()
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		for key, link := range state {
			if _, err := exec.ExecContext(txCtx, query, key, link, now); err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
}
