package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the sops table using plainto_tsquery and ts_rank, with
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	where := "s.fts @@ " + tsQuery
	if q.OwnerID != "" {
		where += " AND s.created_by = $2"
		args = append(args, q.OwnerID)
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM sops s WHERE %s", where)

	dataSQL := fmt.Sprintf(`
		SELECT s.id, s.title,
			ts_headline('english', coalesce(s.objective, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			s.department, s.created_by
		FROM sops s
		WHERE %s
		ORDER BY ts_rank(s.fts, %s) DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Department, &r.CreatedBy); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable SOP records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SOPRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, department, responsible_person, objective, procedure, created_by
		FROM sops
	`)
	if err != nil {
		return nil, fmt.Errorf("load sops: %w", err)
	}
	defer rows.Close()

	records := make([]SOPRecord, 0)
	for rows.Next() {
		var r SOPRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Department, &r.ResponsiblePerson, &r.Objective, &r.Procedure, &r.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan sop: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sops: %w", err)
	}

	return records, nil
}
