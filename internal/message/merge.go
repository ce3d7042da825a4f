package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
)

// mergeQuery deletes every row that is not the winner of its identity
// key. Winner selection matches Query's read-side collapse: latest
// received_at, ties broken by the later insert.
const mergeQuery = `
DELETE FROM messages
WHERE id NOT IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (` + identityPartition + `) AS rn
		FROM messages
	)
	WHERE rn = 1
)`

// Merger periodically collapses duplicate message rows.
//
// The write path is append-only and may record the same logical message
// more than once. Readers already see a deduplicated view; the merger
// exists so the raw table converges too, keeping storage and the
// identity index small.
type Merger struct {
	db       *sql.DB
	interval time.Duration
	logger   *logging.Logger
}

// NewMerger creates a merge job over the given database.
//
// Parameters:
//   - db: Open SQLite connection
//   - interval: Delay between merge passes
//   - logger: Structured logger (nil for the default logger)
//
// Returns:
//   - *Merger: Merge job, run it with Run or drive it with MergeOnce
func NewMerger(db *sql.DB, interval time.Duration, logger *logging.Logger) *Merger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Merger{
		db:       db,
		interval: interval,
		logger:   logger.With("component", "merger"),
	}
}

// Run executes merge passes on the configured interval until ctx is
// cancelled. Pass failures are logged and do not stop the loop.
func (m *Merger) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("merge job started", "interval", m.interval.String())

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("merge job stopped")
			return
		case <-ticker.C:
			removed, err := m.MergeOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					m.logger.Info("merge job stopped")
					return
				}
				m.logger.Error("merge pass failed", "error", err)
				continue
			}
			if removed > 0 {
				m.logger.Info("collapsed duplicate messages", "removed", removed)
			}
		}
	}
}

// MergeOnce runs a single merge pass and returns the number of rows
// removed.
func (m *Merger) MergeOnce(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx, mergeQuery)
	if err != nil {
		return 0, fmt.Errorf("merging messages: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading merge result: %w", err)
	}
	return removed, nil
}
