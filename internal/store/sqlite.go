package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"innomatch/api/internal/util"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore keeps one row per document with a JSON payload and a
// normalised creation time column used for server-side ordering.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	indexes Indexes
	now     func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, idx Indexes) (*SQLiteStore, error) {
	if path == "" {
		path = "portal.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises read-modify-write transactions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (collection, created_at_ms DESC)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents index: %w", err)
	}
	return &SQLiteStore{db: db, path: path, indexes: idx, now: time.Now}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	id := util.NewID("")
	prepared, err := prepare(merge(doc, Document{"id": id}), s.now())
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(prepared)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, payload, created_at_ms) VALUES (?, ?, ?, ?)`,
		collection, id, string(payload), SortKey(prepared[CreatedAtField]))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	return getRow(ctx, s.db, `SELECT payload FROM documents WHERE collection = ? AND id = ?`, collection, id)
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, patch Document) error {
	return s.update(ctx, collection, id, nil, patch)
}

func (s *SQLiteStore) UpdateIf(ctx context.Context, collection, id string, cond Filter, patch Document) error {
	return s.update(ctx, collection, id, &cond, patch)
}

func (s *SQLiteStore) update(ctx context.Context, collection, id string, cond *Filter, patch Document) (retErr error) {
	prepared, err := prepare(patch, s.now())
	if err != nil {
		return err
	}
	delete(prepared, "id")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := getRow(ctx, tx, `SELECT payload FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if cond != nil && !matches(current, cond) {
		return fmt.Errorf("update %s/%s where %s: %w", collection, id, cond.Field, ErrConflict)
	}
	next := merge(current, prepared)
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET payload = ?, created_at_ms = ? WHERE collection = ? AND id = ?`,
		string(payload), SortKey(next[CreatedAtField]), collection, id); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, filter *Filter, order *Order) ([]Document, error) {
	if err := checkQuery(s.indexes, collection, filter, order); err != nil {
		return nil, err
	}
	var (
		where = []string{"collection = ?"}
		args  = []any{collection}
	)
	if filter != nil {
		if !fieldPattern.MatchString(filter.Field) {
			return nil, fmt.Errorf("invalid filter field %q", filter.Field)
		}
		where = append(where, "json_extract(payload, ?) = ?")
		args = append(args, "$."+filter.Field, sqliteValue(filter.Value))
	}
	query := `SELECT payload FROM documents WHERE ` + strings.Join(where, " AND ")
	orderBy, err := sqlOrder(order, "rowid", func(field string) string {
		return "json_extract(payload, '$." + field + "')"
	})
	if err != nil {
		return nil, err
	}
	query += " ORDER BY " + orderBy
	return queryRows(ctx, s.db, query, args...)
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *SQLiteStore) Path() string { return s.path }

func sqliteValue(v any) any {
	switch value := v.(type) {
	case bool:
		if value {
			return 1
		}
		return 0
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		f, _ := value.Float64()
		return f
	default:
		return v
	}
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q rowQuerier, query string, args ...any) (Document, error) {
	var payload []byte
	err := q.QueryRowContext(ctx, query, args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return decodeDocument(payload)
}

func queryRows(ctx context.Context, q rowQuerier, query string, args ...any) ([]Document, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeDocument(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// sqlOrder builds an ORDER BY clause. createdAt uses the indexed column;
// other fields go through the payload accessor.
func sqlOrder(order *Order, insertion string, accessor func(string) string) (string, error) {
	if order == nil {
		return insertion, nil
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}
	if order.Field == CreatedAtField {
		return "created_at_ms " + direction + ", " + insertion, nil
	}
	if !fieldPattern.MatchString(order.Field) {
		return "", fmt.Errorf("invalid order field %q", order.Field)
	}
	return accessor(order.Field) + " " + direction + ", " + insertion, nil
}
