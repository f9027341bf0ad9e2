// Package idempotency deduplicates webhook deliveries. A delivery key is
// claimed exactly once per workflow; replays of a bound key get the original
// execution back instead of starting a second run.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/verdandi/pkg/sqlutil"
)

// Store persists delivery claims in the main database.
type Store struct {
	db     *sql.DB
	driver string
	table  string
}

// New returns a store on the shared database handle.
func New(db *sql.DB, driver string) *Store {
	return NewWithTable(db, driver, "webhook_deliveries")
}

// NewWithTable allows a custom table name (namespace).
func NewWithTable(db *sql.DB, driver, table string) *Store {
	if table == "" {
		table = "webhook_deliveries"
	}
	return &Store{db: db, driver: driver, table: table}
}

// Init ensures the delivery table exists.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.query(queryInitTable))
	return err
}

func (s *Store) query(name string) string {
	q := fmt.Sprintf(commonQueries[name], sqlutil.QuoteIdent(s.driver, s.table))
	return sqlutil.Rewrite(s.driver, q)
}

// Claim attempts to insert the key; returns true if inserted (we own it),
// false if another delivery already holds it.
func (s *Store) Claim(ctx context.Context, workflowID, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.query(queryClaim), workflowID, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Bind records the execution started for a claimed key.
func (s *Store) Bind(ctx context.Context, workflowID, key, executionID string) error {
	_, err := s.db.ExecContext(ctx, s.query(queryBind), executionID, workflowID, key)
	return err
}

// Lookup returns the execution bound to a key, or "" when the key is
// claimed but not bound yet. Unknown keys also return "".
func (s *Store) Lookup(ctx context.Context, workflowID, key string) (string, error) {
	var executionID sql.NullString
	err := s.db.QueryRowContext(ctx, s.query(queryLookup), workflowID, key).Scan(&executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return executionID.String, nil
}

// Release frees a claimed key so the delivery can be retried, used when the
// run could not be queued after a successful claim.
func (s *Store) Release(ctx context.Context, workflowID, key string) error {
	_, err := s.db.ExecContext(ctx, s.query(queryRelease), workflowID, key)
	return err
}

// CleanupTTL removes entries with last_update older than now-ttl.
// This is a best-effort maintenance function; errors are returned but safe to ignore by callers.
func (s *Store) CleanupTTL(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-ttl).UTC().Format("2006-01-02 15:04:05")
	_, err := s.db.ExecContext(ctx, s.query(queryCleanup), cutoff)
	return err
}

// StartCleanup prunes expired claims on a timer until ctx is cancelled.
func (s *Store) StartCleanup(ctx context.Context, every, ttl time.Duration) {
	if every <= 0 || ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.CleanupTTL(ctx, ttl)
			}
		}
	}()
}
