package session

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit is an optional, best-effort sink that appends one row per
// successfully applied batch. It is observability, not engine state:
// nothing in the batch path waits on it, and a write failure is logged
// and dropped rather than surfaced to the client.
type Audit struct {
	pool *pgxpool.Pool
}

// NewAudit opens a connection pool against dsn and ensures the audit
// table exists. Call Close when the server shuts down.
func NewAudit(ctx context.Context, dsn string) (*Audit, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	const ddl = `CREATE TABLE IF NOT EXISTS gridcore_audit (
		id BIGSERIAL PRIMARY KEY,
		revision BIGINT NOT NULL,
		session_id TEXT NOT NULL,
		op_count INT NOT NULL,
		cycle_detected BOOLEAN NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, err
	}
	return &Audit{pool: pool}, nil
}

// Record appends one audit row. Best-effort: a failure is logged and
// otherwise ignored.
func (a *Audit) Record(revision uint64, sessionID string, opCount int, cycleDetected bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	const stmt = `INSERT INTO gridcore_audit (revision, session_id, op_count, cycle_detected, applied_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := a.pool.Exec(ctx, stmt, revision, sessionID, opCount, cycleDetected, time.Now()); err != nil {
		log.Printf("session: audit write failed: %v", err)
	}
}

// Close releases the connection pool.
func (a *Audit) Close() { a.pool.Close() }
