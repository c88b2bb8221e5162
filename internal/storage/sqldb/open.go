package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to a sqlite file or a postgres DSN depending on backend.
func Open(ctx context.Context, backend, dsn string) (*sqlx.DB, error) {
	var driver string
	switch backend {
	case "sqlite":
		driver = "sqlite"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported sql backend %q", backend)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", backend, err)
	}
	if driver == "sqlite" {
		// One writer; avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
