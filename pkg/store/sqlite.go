// ABOUTME: SQLite-backed message store built on modernc.org/sqlite
// ABOUTME: Executes compiled query requests and id-scoped reads and writes

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/msgstore/pkg/apierror"
	"github.com/nainya/msgstore/pkg/message"
	"github.com/nainya/msgstore/pkg/query"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	text          TEXT    NOT NULL,
	title         TEXT,
	size          INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	last_modified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_created_at ON messages(created_at);
CREATE INDEX IF NOT EXISTS messages_last_modified ON messages(last_modified);`

const selectColumns = "id, text, title, size, created_at, last_modified"

// SQLiteStore persists messages in a single SQLite table. Writes are
// serialised through one connection, so it is safe for concurrent use.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway in-memory database.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection keeps an in-memory database alive and avoids SQLITE_BUSY
	// between writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the location the store was opened with.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores msgs in one transaction and returns their new ids in input
// order. Either every message is stored or none is. The ids are also written
// back into msgs.
func (s *SQLiteStore) Insert(ctx context.Context, msgs []*message.Message) ([]string, error) {
	if len(msgs) == 0 {
		return []string{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			ids[i], m.Text, nullable(m.Title), m.Size,
			encodeTime(m.CreatedAt), encodeTime(m.LastModified),
		); err != nil {
			return nil, fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	for i, m := range msgs {
		m.ID = ids[i]
	}
	return ids, nil
}

// Get returns the message with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*message.Message, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return m, nil
}

// Find returns the messages matching req in the requested order. Ties and
// unsorted results follow insertion order.
func (s *SQLiteStore) Find(ctx context.Context, req *query.Request) ([]*message.Message, error) {
	where, args, err := buildWhere(req.Filter)
	if err != nil {
		return nil, err
	}
	orderBy, err := buildOrderBy(req.Sort)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + selectColumns + " FROM messages WHERE ")
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	if req.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	msgs := []*message.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return msgs, nil
}

// Update applies upd to the message with the given id and returns the number
// of modified messages, which is always 1 on success.
func (s *SQLiteStore) Update(ctx context.Context, id string, upd *message.Update) (int64, error) {
	id, err := canonicalID(id)
	if err != nil {
		return 0, err
	}

	set, args := buildSet(upd)
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", id, err)
	}
	if n == 0 {
		return 0, notFound(id)
	}
	return n, nil
}

// UpdateMany applies upd to every message matching filter and returns how
// many were modified.
func (s *SQLiteStore) UpdateMany(ctx context.Context, filter *query.Filter, upd *message.Update) (int64, error) {
	where, whereArgs, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}

	set, args := buildSet(upd)
	args = append(args, whereArgs...)
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET "+set+" WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update many: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes the message with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (int64, error) {
	id, err := canonicalID(id)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		return 0, notFound(id)
	}
	return n, nil
}

// DeleteMany removes every message matching filter and returns how many were
// removed.
func (s *SQLiteStore) DeleteMany(ctx context.Context, filter *query.Filter) (int64, error) {
	where, args, err := buildWhere(filter)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete many: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*message.Message, error) {
	var (
		m                       message.Message
		title                   sql.NullString
		createdAt, lastModified int64
	)
	if err := row.Scan(&m.ID, &m.Text, &title, &m.Size, &createdAt, &lastModified); err != nil {
		return nil, err
	}
	if title.Valid {
		m.Title = &title.String
	}
	m.CreatedAt = decodeTime(createdAt)
	m.LastModified = decodeTime(lastModified)
	return &m, nil
}

// updateColumns fixes the order of assignments in an UPDATE.
var updateColumns = []string{
	message.FieldText,
	message.FieldSize,
	message.FieldTitle,
	message.FieldLastModified,
}

// buildSet renders the assignments of an update document. created_at is
// never part of it.
func buildSet(upd *message.Update) (string, []any) {
	doc := upd.Document()
	var cols []string
	var args []any
	for _, col := range updateColumns {
		v, ok := doc[col]
		if !ok {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = encodeTime(t)
		}
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	return strings.Join(cols, ", "), args
}

func canonicalID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", apierror.New(apierror.InvalidID, "%s is not a valid message id.", id).
			WithField(message.FieldID, id)
	}
	return u.String(), nil
}

func notFound(id string) error {
	return apierror.New(apierror.NotFound, "Message %s was not found.", id).
		WithField(message.FieldID, id)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Timestamps are stored as UTC Unix microseconds, which covers every date
// from year 0000 through 9999.
func encodeTime(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func decodeTime(n int64) time.Time {
	return time.UnixMicro(n).UTC()
}
