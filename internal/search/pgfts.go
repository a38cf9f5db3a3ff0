package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ftsVector matches the expression of idx_documents_problem_statement_fts.
const ftsVector = `to_tsvector('english',
	coalesce(payload->>'title', '') || ' ' ||
	coalesce(payload->>'description', '') || ' ' ||
	coalesce(payload->>'organization', '') || ' ' ||
	coalesce(payload->>'sector', ''))`

// PgFTS implements Searcher using PostgreSQL full-text search over the
// documents table. It is only available with the postgres store driver.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.Scope.Empty {
		return nil, 0, nil
	}

	where, args := pgftsWhere(q)
	countSQL := `SELECT count(*) FROM documents WHERE ` + where

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id,
			coalesce(payload->>'title', ''),
			coalesce(payload->>'organization', ''),
			coalesce(payload->>'sector', ''),
			coalesce(payload->>'status', ''),
			ts_headline('english', coalesce(payload->>'description', ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30')
		FROM documents
		WHERE %s
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC, created_at_ms DESC
		LIMIT %d OFFSET %d`, where, ftsVector, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Organization, &r.Sector, &r.Status, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func pgftsWhere(q Query) (string, []any) {
	where := "collection = 'problem_statements' AND " + ftsVector + " @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if f := q.Scope.Filter; f != nil {
		where += " AND payload ->> $2::text = $3::text"
		args = append(args, f.Field, fmt.Sprint(f.Value))
	}
	return where, args
}

// LoadAllRecords returns every problem statement for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id,
			coalesce(payload->>'title', ''),
			coalesce(payload->>'organization', ''),
			coalesce(payload->>'description', ''),
			coalesce(payload->>'sector', ''),
			coalesce(payload->>'status', ''),
			coalesce(payload->>'owner_id', '')
		FROM documents
		WHERE collection = 'problem_statements'
	`)
	if err != nil {
		return nil, fmt.Errorf("load problem statements: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Organization, &r.Description, &r.Sector, &r.Status, &r.OwnerID); err != nil {
			return nil, fmt.Errorf("scan problem statement: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problem statements: %w", err)
	}
	return records, nil
}
