package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Storage is the relational DiscussionStore backed by SQLite or PostgreSQL
type Storage struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ DiscussionStore = (*Storage)(nil)

// NewStorage wraps an open SQLite database and ensures the schema exists
func NewStorage(ctx context.Context, db *sql.DB) (*Storage, error) {
	return newStorage(ctx, db, sqliteDialect)
}

// NewPostgresStorage wraps an open PostgreSQL database and ensures the schema exists
func NewPostgresStorage(ctx context.Context, db *sql.DB) (*Storage, error) {
	return newStorage(ctx, db, postgresDialect)
}

func newStorage(ctx context.Context, db *sql.DB, d dialect) (*Storage, error) {
	s := &Storage{db: db, dialect: d, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, &StoreError{Op: "init", Err: err}
	}
	return s, nil
}

// OpenStore opens the store addressed by dsn: a PostgreSQL URL or a SQLite file path
func OpenStore(ctx context.Context, dsn string) (*Storage, error) {
	if IsPostgresURL(dsn) {
		db, err := OpenPostgres(dsn)
		if err != nil {
			return nil, &StoreError{Op: "open", Err: err}
		}
		s, err := NewPostgresStorage(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	}

	db, err := OpenDatabase(dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	s, err := NewStorage(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect returns the engine name ("sqlite" or "postgres")
func (s *Storage) Dialect() string {
	return s.dialect.name
}

// DB exposes the underlying handle
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Storage) timestamp() string {
	return s.now().UTC().Format(TimestampLayout)
}

// CreateDiscussion allocates the next number and provisions an empty discussion
func (s *Storage) CreateDiscussion(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &StoreError{Op: "create", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var n int64
	err = tx.QueryRowContext(ctx,
		"UPDATE discussion_counter SET last_number = last_number + 1 WHERE id = 1 RETURNING last_number",
	).Scan(&n)
	if err != nil {
		return "", &StoreError{Op: "create", Err: fmt.Errorf("allocate number: %w", err)}
	}

	id := DiscussionID(n)
	_, err = tx.ExecContext(ctx,
		s.dialect.rebind("INSERT INTO discussions (id, number, created_at) VALUES (?, ?, ?)"),
		id, n, s.timestamp(),
	)
	if err != nil {
		return "", &StoreError{Op: "create", Discussion: id, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return "", &StoreError{Op: "create", Discussion: id, Err: err}
	}

	LogDebug("Created %s", id)
	return id, nil
}

// ListDiscussions returns every discussion, most recently created first
func (s *Storage) ListDiscussions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM discussions ORDER BY number DESC")
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &StoreError{Op: "list", Err: fmt.Errorf("scan failed: %w", err)}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: fmt.Errorf("rows iteration error: %w", err)}
	}

	return ids, nil
}

// AppendMessage appends one message. When the discussion has no provisioned
// storage it is provisioned and the insert retried exactly once.
func (s *Storage) AppendMessage(ctx context.Context, discussionID, sender, content string) (Message, error) {
	if _, err := ParseDiscussionID(discussionID); err != nil {
		return Message{}, &StoreError{Op: "append", Discussion: discussionID, Err: err}
	}

	msg := Message{
		DiscussionID: discussionID,
		Sender:       sender,
		Content:      content,
	}
	ts := s.timestamp()
	msg.Timestamp, _ = time.Parse(TimestampLayout, ts)

	id, err := s.insertMessage(ctx, msg, ts)
	if err != nil && s.isMissingStorage(err) {
		LogWarn("Storage for %s is missing, provisioning and retrying: %v", discussionID, err)
		if perr := s.provision(ctx, discussionID); perr != nil {
			return Message{}, &StoreError{Op: "provision", Discussion: discussionID, Err: perr}
		}
		id, err = s.insertMessage(ctx, msg, ts)
	}
	if err != nil {
		return Message{}, &StoreError{Op: "append", Discussion: discussionID, Err: err}
	}

	msg.ID = id
	return msg, nil
}

// insertMessage inserts only when the discussion row exists; sql.ErrNoRows
// signals missing provisioning.
func (s *Storage) insertMessage(ctx context.Context, msg Message, ts string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO messages (discussion_id, sender, message, timestamp)
		 SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM discussions WHERE id = ?)
		 RETURNING id`),
		msg.DiscussionID, msg.Sender, msg.Content, ts, msg.DiscussionID,
	).Scan(&id)
	return id, err
}

func (s *Storage) isMissingStorage(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || s.dialect.missingRel(err)
}

// provision (re)creates the schema and the discussion row, advancing the
// counter so the number is never handed out again.
func (s *Storage) provision(ctx context.Context, discussionID string) error {
	n, err := ParseDiscussionID(discussionID)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		"UPDATE discussion_counter SET last_number = "+s.dialect.greatest+"(last_number, ?) WHERE id = 1"), n)
	if err != nil {
		return fmt.Errorf("advance counter: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO discussions (id, number, created_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING"),
		discussionID, n, s.timestamp())
	if err != nil {
		return fmt.Errorf("insert discussion: %w", err)
	}
	return tx.Commit()
}

// ReadMessages returns the discussion's messages in insertion order
func (s *Storage) ReadMessages(ctx context.Context, discussionID string) ([]Message, error) {
	if _, err := ParseDiscussionID(discussionID); err != nil {
		return nil, &StoreError{Op: "read", Discussion: discussionID, Err: err}
	}

	var createdAt string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind("SELECT created_at FROM discussions WHERE id = ?"), discussionID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StoreError{Op: "read", Discussion: discussionID, Err: ErrDiscussionNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "read", Discussion: discussionID, Err: err}
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		"SELECT id, sender, message, timestamp FROM messages WHERE discussion_id = ? ORDER BY id"),
		discussionID,
	)
	if err != nil {
		return nil, &StoreError{Op: "read", Discussion: discussionID, Err: err}
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		msg := Message{DiscussionID: discussionID}
		var ts string
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Content, &ts); err != nil {
			return nil, &StoreError{Op: "read", Discussion: discussionID, Err: fmt.Errorf("scan failed: %w", err)}
		}
		if t, err := time.Parse(TimestampLayout, ts); err == nil {
			msg.Timestamp = t
		} else {
			LogDebug("Unparseable timestamp %q on message %d", ts, msg.ID)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read", Discussion: discussionID, Err: fmt.Errorf("rows iteration error: %w", err)}
	}

	return msgs, nil
}

// DeleteDiscussion irreversibly removes the discussion and its messages
func (s *Storage) DeleteDiscussion(ctx context.Context, discussionID string) error {
	if _, err := ParseDiscussionID(discussionID); err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.dialect.rebind("DELETE FROM messages WHERE discussion_id = ?"), discussionID); err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}
	res, err := tx.ExecContext(ctx,
		s.dialect.rebind("DELETE FROM discussions WHERE id = ?"), discussionID)
	if err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}
	if affected == 0 {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: ErrDiscussionNotFound}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "delete", Discussion: discussionID, Err: err}
	}
	LogDebug("Deleted %s", discussionID)
	return nil
}

// Stats counts discussions and messages
func (s *Storage) Stats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM discussions),
		        (SELECT COUNT(*) FROM messages),
		        (SELECT last_number FROM discussion_counter WHERE id = 1)`,
	).Scan(&st.Discussions, &st.Messages, &st.LastNumber)
	if err != nil {
		return StoreStats{}, &StoreError{Op: "stats", Err: err}
	}
	return st, nil
}
