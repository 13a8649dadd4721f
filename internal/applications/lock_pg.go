package applications

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"resume-pipeline/internal/shared/telemetry"
)

// PGLocker takes a session-level advisory lock per application on a dedicated connection,
// so replicas of the API and the worker never run the same application at once.
type PGLocker struct {
	DB *sql.DB
}

// Lock blocks until the application's advisory lock is held or ctx ends.
func (l *PGLocker) Lock(ctx context.Context, applicationID string) (func(), error) {
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock application: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, applicationID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("lock application: %w", err)
	}
	return func() {
		_, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, applicationID)
		if err != nil {
			telemetry.Warn("application.unlock_failed", map[string]any{
				"application_id": applicationID,
				"error":          err,
			})
			// A session still holding the lock must not go back to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}, nil
}
