package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus represents the outcome of a pipeline run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusDryRun    RunStatus = "dry_run"
)

// RunStats is the run-level summary persisted as pipeline metadata
type RunStats struct {
	RunID              string                  `json:"pipeline_run_id" bson:"pipeline_run_id"`
	PipelineVersion    string                  `json:"pipeline_version" bson:"pipeline_version"`
	Status             RunStatus               `json:"status" bson:"status"`
	StartedAt          time.Time               `json:"started_at" bson:"started_at"`
	FinishedAt         time.Time               `json:"finished_at" bson:"finished_at"`
	ProductFilter      string                  `json:"product_filter,omitempty" bson:"product_filter,omitempty"`
	TotalRecords       int                     `json:"total_records_processed" bson:"total_records_processed"`
	CleanRecords       int                     `json:"clean_records" bson:"clean_records"`
	RejectedRecords    int                     `json:"rejected_records" bson:"rejected_records"`
	RejectionsByReason map[RejectionReason]int `json:"rejections_by_reason" bson:"rejections_by_reason"`
	RelevantRecords    int                     `json:"relevant_records" bson:"relevant_records"`
	WarehouseInserts   int                     `json:"warehouse_inserts" bson:"warehouse_inserts"`
	RejectionInserts   int                     `json:"rejection_inserts" bson:"rejection_inserts"`
	Error              string                  `json:"error,omitempty" bson:"error,omitempty"`
	Summary            *Summary                `json:"summary,omitempty" bson:"-"`
}

// Duration returns how long the run took
func (s *RunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Summary is the dashboard breakdown of a set of scored reviews.
// Percentages and averages are rounded to two decimals.
type Summary struct {
	TotalReviews      int                 `json:"total_reviews" bson:"total_reviews"`
	RelevantReviews   int                 `json:"relevant_reviews" bson:"relevant_reviews"`
	PercentRelevant   decimal.Decimal     `json:"percent_relevant" bson:"percent_relevant"`
	AverageRating     decimal.Decimal     `json:"average_rating" bson:"average_rating"`
	AverageRelevance  decimal.Decimal     `json:"average_relevance_score" bson:"average_relevance_score"`
	ExtremeRatingRate decimal.Decimal     `json:"extreme_rating_rate" bson:"extreme_rating_rate"`
	ByCategory        []CategoryBreakdown `json:"by_category" bson:"by_category"`
	ByRating          []RatingBreakdown   `json:"by_rating" bson:"by_rating"`
}

// CategoryBreakdown aggregates reviews of one category
type CategoryBreakdown struct {
	Category         string          `json:"category" bson:"category"`
	Reviews          int             `json:"reviews" bson:"reviews"`
	Relevant         int             `json:"relevant" bson:"relevant"`
	PercentRelevant  decimal.Decimal `json:"percent_relevant" bson:"percent_relevant"`
	AverageRating    decimal.Decimal `json:"average_rating" bson:"average_rating"`
	AverageRelevance decimal.Decimal `json:"average_relevance_score" bson:"average_relevance_score"`
}

// RatingBreakdown aggregates reviews sharing one rating value
type RatingBreakdown struct {
	Rating     int `json:"rating" bson:"rating"`
	Relevant   int `json:"relevant" bson:"relevant"`
	Irrelevant int `json:"irrelevant" bson:"irrelevant"`
}
