package message

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultQueryLimit is applied when QueryOptions.Limit is unset.
	DefaultQueryLimit = 50
	// MaxQueryLimit caps QueryOptions.Limit.
	MaxQueryLimit = 500
)

// QueryOptions narrows and pages a message query.
//
// Before and Since are mutually exclusive: Before pages backwards
// through history, Since polls forward for messages newer than a known
// point. Both bounds are exclusive.
type QueryOptions struct {
	// Limit is the maximum records to return (default 50, max 500).
	Limit int

	// Before restricts to messages received strictly before this time.
	Before time.Time

	// Since restricts to messages received strictly after this time.
	Since time.Time

	// Channel filters by channel slot when non-nil.
	Channel *int

	// MsgType filters by message type when non-empty.
	MsgType MsgType

	// Ascending orders oldest first. Default is newest first.
	Ascending bool
}

// Repository persists and reads normalized messages.
type Repository interface {
	// Insert appends one message row.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - rec: Record to persist; ID and ReceivedAt are filled in when unset
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying database error
	Insert(ctx context.Context, rec *Record) error

	// Query returns messages matching the options, one record per
	// identity key.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - opts: Filters, paging and ordering
	//
	// Returns:
	//   - []Record: Matching records (may be empty)
	//   - error: nil on success, otherwise ErrInvalidQuery or the query error
	Query(ctx context.Context, opts QueryOptions) ([]Record, error)

	// CountEstimate returns the raw row count. It over-counts by
	// whatever duplicates the merge job has not collapsed yet.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//
	// Returns:
	//   - int64: Raw row count
	//   - error: nil on success, otherwise the underlying query error
	CountEstimate(ctx context.Context) (int64, error)
}

// SQLiteMessageRepository implements Repository using SQLite.
//
// The messages table is append-only. The write path may insert the same
// logical message more than once (reconnects, device retransmits), so
// Query collapses rows by identity key at read time: latest ReceivedAt
// wins, ties broken by the later insert. The background Merger removes
// the losing rows eventually.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewSQLiteMessageRepository creates a new SQLite message repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteMessageRepository: Repository instance ready for use
func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

const messageColumns = `id, received_at, msg_type, channel_idx, channel_name,
	sender_timestamp, sender_pubkey_prefix, sender_name, path_len, snr,
	text, txt_type, signature`

// identityPartition matches the identity key columns in Record.IdentityKey.
const identityPartition = `PARTITION BY msg_type, channel_idx, sender_timestamp, sender_pubkey_prefix, text
			ORDER BY received_at DESC, id DESC`

func (r *SQLiteMessageRepository) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: record is required", ErrInvalidRecord)
	}
	if !rec.MsgType.Valid() {
		return fmt.Errorf("%w: unknown msg_type %q", ErrInvalidRecord, rec.MsgType)
	}
	if !rec.TxtType.Valid() {
		return fmt.Errorf("%w: unknown txt_type %q", ErrInvalidRecord, rec.TxtType)
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (received_at, msg_type, channel_idx, channel_name,
		 sender_timestamp, sender_pubkey_prefix, sender_name, path_len, snr,
		 text, txt_type, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ReceivedAt.UnixMilli(),
		string(rec.MsgType),
		rec.ChannelIdx,
		rec.ChannelName,
		rec.SenderTimestamp,
		rec.SenderPubkeyPrefix,
		rec.SenderName,
		rec.PathLen,
		rec.SNR,
		rec.Text,
		string(rec.TxtType),
		rec.Signature,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *SQLiteMessageRepository) Query(ctx context.Context, opts QueryOptions) ([]Record, error) {
	if !opts.Before.IsZero() && !opts.Since.IsZero() {
		return nil, fmt.Errorf("%w: before and since are mutually exclusive", ErrInvalidQuery)
	}
	if opts.MsgType != "" && !opts.MsgType.Valid() {
		return nil, fmt.Errorf("%w: unknown msg_type %q", ErrInvalidQuery, opts.MsgType)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if !opts.Before.IsZero() {
		conditions = append(conditions, "received_at < ?")
		args = append(args, opts.Before.UnixMilli())
	}
	if !opts.Since.IsZero() {
		conditions = append(conditions, "received_at > ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Channel != nil {
		conditions = append(conditions, "channel_idx = ?")
		args = append(args, *opts.Channel)
	}
	if opts.MsgType != "" {
		conditions = append(conditions, "msg_type = ?")
		args = append(args, string(opts.MsgType))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT `+messageColumns+`
		FROM (
			SELECT *, ROW_NUMBER() OVER (`+identityPartition+`) AS rn
			FROM messages%s
		)
		WHERE rn = 1
		ORDER BY received_at %s, id %s
		LIMIT ?`, where, order, order)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return records, nil
}

func (r *SQLiteMessageRepository) CountEstimate(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec        Record
		receivedAt int64
		msgType    string
		txtType    string
	)
	if err := rows.Scan(
		&rec.ID,
		&receivedAt,
		&msgType,
		&rec.ChannelIdx,
		&rec.ChannelName,
		&rec.SenderTimestamp,
		&rec.SenderPubkeyPrefix,
		&rec.SenderName,
		&rec.PathLen,
		&rec.SNR,
		&rec.Text,
		&txtType,
		&rec.Signature,
	); err != nil {
		return Record{}, fmt.Errorf("scanning message: %w", err)
	}
	rec.ReceivedAt = time.UnixMilli(receivedAt).UTC()
	rec.MsgType = MsgType(msgType)
	rec.TxtType = TxtType(txtType)
	return rec, nil
}
