package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safetransit/safetransit/internal/report"
)

// Postgres is the PostgreSQL-backed append-only report store.
// Safe for concurrent use; all writes are single-row inserts.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a store on an existing connection pool.
// The pool stays owned by the caller; Close it there, not here.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Append inserts a finalized report. Implements report.Sink.
func (p *Postgres) Append(ctx context.Context, r *report.Report) error {
	concerns := make([]string, len(r.Concerns))
	for i, c := range r.Concerns {
		concerns[i] = string(c)
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO reports (id, location, crowd_level, safety_concerns, additional_info, safety_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Location, string(r.CrowdLevel), concerns, r.AdditionalInfo, r.SafetyScore, r.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	p.logger.Debug("report stored", "id", r.ID, "location", r.Location)
	return nil
}

// Recent returns up to limit reports, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]*report.Report, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, location, crowd_level, safety_concerns, additional_info, safety_score, created_at
		 FROM reports
		 ORDER BY created_at DESC
		 LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying recent reports: %w", err)
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		var r report.Report
		var crowd string
		var concerns []string
		if err := rows.Scan(&r.ID, &r.Location, &crowd, &concerns, &r.AdditionalInfo, &r.SafetyScore, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		r.CrowdLevel = report.CrowdLevel(crowd)
		r.Concerns = make([]report.Concern, len(concerns))
		for i, c := range concerns {
			r.Concerns[i] = report.Concern(c)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading report rows: %w", err)
	}
	return out, nil
}

// StopStatus returns the latest report summary per stop.
func (p *Postgres) StopStatus(ctx context.Context) ([]StopStatus, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT ON (location)
		        location, crowd_level, safety_score, created_at,
		        COUNT(*) OVER (PARTITION BY location) AS report_count
		 FROM reports
		 ORDER BY location, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying stop status: %w", err)
	}
	defer rows.Close()

	var out []StopStatus
	for rows.Next() {
		var st StopStatus
		var crowd string
		if err := rows.Scan(&st.Location, &crowd, &st.SafetyScore, &st.LastReport, &st.ReportCount); err != nil {
			return nil, fmt.Errorf("scanning stop status row: %w", err)
		}
		st.CrowdLevel = report.CrowdLevel(crowd)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading stop status rows: %w", err)
	}
	return out, nil
}
