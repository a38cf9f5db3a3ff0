package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"innomatch/api/internal/util"
)

// PostgresStore keeps every collection in one JSONB documents table.
type PostgresStore struct {
	db      *sql.DB
	indexes Indexes
	now     func() time.Time
}

func NewPostgresStore(db *sql.DB, idx Indexes) *PostgresStore {
	return &PostgresStore{db: db, indexes: idx, now: time.Now}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, collection string, doc Document) (string, error) {
	id := util.NewID("")
	prepared, err := prepare(merge(doc, Document{"id": id}), s.now())
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(prepared)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, payload, created_at_ms)
		VALUES ($1, $2, $3::jsonb, $4)
	`, collection, id, string(payload), SortKey(prepared[CreatedAtField]))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	return getRow(ctx, s.db, `SELECT payload FROM documents WHERE collection=$1 AND id=$2`, collection, id)
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch Document) error {
	return s.update(ctx, collection, id, nil, patch)
}

func (s *PostgresStore) UpdateIf(ctx context.Context, collection, id string, cond Filter, patch Document) error {
	return s.update(ctx, collection, id, &cond, patch)
}

func (s *PostgresStore) update(ctx context.Context, collection, id string, cond *Filter, patch Document) error {
	prepared, err := prepare(patch, s.now())
	if err != nil {
		return err
	}
	delete(prepared, "id")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	current, err := getRow(ctx, tx, `SELECT payload FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`, collection, id)
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
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET payload=$3::jsonb, created_at_ms=$4
		WHERE collection=$1 AND id=$2
	`, collection, id, string(payload), SortKey(next[CreatedAtField])); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filter *Filter, order *Order) ([]Document, error) {
	if err := checkQuery(s.indexes, collection, filter, order); err != nil {
		return nil, err
	}
	where := []string{"collection = $1"}
	args := []any{collection}
	if filter != nil {
		where = append(where, "payload ->> $2::text = $3::text")
		args = append(args, filter.Field, filterText(filter.Value))
	}
	orderBy, err := sqlOrder(order, "seq", func(field string) string {
		return "payload ->> '" + field + "'"
	})
	if err != nil {
		return nil, err
	}
	query := `SELECT payload FROM documents WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + orderBy
	return queryRows(ctx, s.db, query, args...)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// filterText renders a filter value the way ->> renders the stored JSON value.
func filterText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
