// internal/domain/usage/dto.go
package usage

type TrackRequest struct {
	Metric string   `json:"metric" binding:"required,usage_metric"`
	Value  *float64 `json:"value" binding:"required,min=0"`
}

// Summary is the trailing-window total for one metric. Limit is nil when
// the plan does not cap the metric.
type Summary struct {
	Metric Metric   `json:"metric"`
	Total  float64  `json:"total"`
	Limit  *float64 `json:"limit"`
}
