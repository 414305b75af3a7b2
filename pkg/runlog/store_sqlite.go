//go:build !cgo

package runlog

import (
	"context"
	"database/sql"
	"fmt"

	sqlite "modernc.org/sqlite"
)

const driverName = "libsql"

func init() {
	sql.Register(driverName, &sqlite.Driver{})
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping run log: %w", err)
	}

	if err := configureLocal(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
