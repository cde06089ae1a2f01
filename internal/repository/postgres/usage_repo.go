// internal/repository/postgres/usage_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"saas-billing/internal/domain/usage"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Append(ctx context.Context, rec *usage.Record) error {
	query := `
		INSERT INTO usage_records (id, user_id, metric, value, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, rec.ID, rec.UserID, rec.Metric, rec.Value, rec.RecordedAt)
	return mapError(err, "append usage record")
}

func (r *UsageRepository) Sum(ctx context.Context, userID string, metric usage.Metric, since time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(value), 0)::float8
		FROM usage_records
		WHERE user_id = $1 AND metric = $2 AND recorded_at >= $3`,
		userID, metric, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}
	return total, nil
}

func (r *UsageRepository) SumByMetric(ctx context.Context, userID string, since time.Time) (map[usage.Metric]float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT metric, COALESCE(SUM(value), 0)::float8
		FROM usage_records
		WHERE user_id = $1 AND recorded_at >= $2
		GROUP BY metric`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	totals := make(map[usage.Metric]float64)
	for rows.Next() {
		var m usage.Metric
		var total float64
		if err := rows.Scan(&m, &total); err != nil {
			return nil, fmt.Errorf("failed to scan usage total: %w", err)
		}
		totals[m] = total
	}
	return totals, rows.Err()
}

// List returns samples newest first. An empty metric lists all metrics.
func (r *UsageRepository) List(ctx context.Context, userID string, metric usage.Metric, since time.Time, limit int) ([]*usage.Record, error) {
	conditions := "user_id = $1 AND recorded_at >= $2"
	args := []any{userID, since}
	if metric != "" {
		conditions += " AND metric = $3"
		args = append(args, metric)
	}
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf(`
		SELECT id, user_id, metric, value::float8, recorded_at
		FROM usage_records
		WHERE %s
		ORDER BY recorded_at DESC
		LIMIT %d`, conditions, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	records := []*usage.Record{}
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Metric, &rec.Value, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
