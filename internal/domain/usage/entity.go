// internal/domain/usage/entity.go
package usage

import (
	"context"
	"time"
)

type Metric string

const (
	MetricAPICalls  Metric = "API_CALLS"
	MetricStorageGB Metric = "STORAGE_GB"
	MetricProjects  Metric = "PROJECTS"
	MetricUsers     Metric = "USERS"
)

// Metrics lists every tracked metric in display order.
var Metrics = []Metric{MetricAPICalls, MetricStorageGB, MetricProjects, MetricUsers}

func (m Metric) Valid() bool {
	for _, v := range Metrics {
		if v == m {
			return true
		}
	}
	return false
}

// Record is an append-only usage sample.
type Record struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"userId" db:"user_id"`
	Metric     Metric    `json:"metric" db:"metric"`
	Value      float64   `json:"value" db:"value"`
	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
}

// Repository is the persistence contract for usage samples.
type Repository interface {
	Append(ctx context.Context, r *Record) error
	Sum(ctx context.Context, userID string, metric Metric, since time.Time) (float64, error)
	SumByMetric(ctx context.Context, userID string, since time.Time) (map[Metric]float64, error)
	List(ctx context.Context, userID string, metric Metric, since time.Time, limit int) ([]*Record, error)
}
