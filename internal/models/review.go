package models

import (
	"time"
)

// RelevantStatus is the threshold-derived classification of a scored review
type RelevantStatus string

const (
	StatusRelevant   RelevantStatus = "RELEVANT"
	StatusIrrelevant RelevantStatus = "IRRELEVANT"
)

// Rating domain bounds
const (
	MinRating = 1
	MaxRating = 5
)

// DefaultCategory replaces a missing category during normalization
const DefaultCategory = "Unknown"

// ReviewRecord is one joined review row as produced by the extract step.
// Nullable columns are pointers so an absent value is distinguishable from a zero value.
type ReviewRecord struct {
	ReviewID        *int64   `json:"review_id" bson:"review_id" db:"review_id"`
	BuyerID         *string  `json:"buyer_id,omitempty" bson:"buyer_id,omitempty" db:"buyer_id"`
	ProductID       *string  `json:"p_id,omitempty" bson:"p_id,omitempty" db:"p_id"`
	ProductName     *string  `json:"product_name,omitempty" bson:"product_name,omitempty" db:"product_name"`
	Category        *string  `json:"category,omitempty" bson:"category,omitempty" db:"category"`
	Title           *string  `json:"title,omitempty" bson:"title,omitempty" db:"title"`
	Description     *string  `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	Rating          *int     `json:"rating" bson:"rating" db:"rating"`
	TextLength      *int     `json:"text_length,omitempty" bson:"text_length,omitempty" db:"text_length"`
	HasImage        *bool    `json:"has_image,omitempty" bson:"has_image,omitempty" db:"has_image"`
	HasOrders       *bool    `json:"has_orders,omitempty" bson:"has_orders,omitempty" db:"has_orders"`
	CategoryReview  *float64 `json:"category_review,omitempty" bson:"category_review,omitempty" db:"category_review"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty" bson:"confidence_score,omitempty" db:"confidence_score"`
}

// Clone returns a deep copy so callers never share pointer targets between batches
func (r ReviewRecord) Clone() ReviewRecord {
	return ReviewRecord{
		ReviewID:        clonePtr(r.ReviewID),
		BuyerID:         clonePtr(r.BuyerID),
		ProductID:       clonePtr(r.ProductID),
		ProductName:     clonePtr(r.ProductName),
		Category:        clonePtr(r.Category),
		Title:           clonePtr(r.Title),
		Description:     clonePtr(r.Description),
		Rating:          clonePtr(r.Rating),
		TextLength:      clonePtr(r.TextLength),
		HasImage:        clonePtr(r.HasImage),
		HasOrders:       clonePtr(r.HasOrders),
		CategoryReview:  clonePtr(r.CategoryReview),
		ConfidenceScore: clonePtr(r.ConfidenceScore),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy when building records in code and tests.
func Ptr[T any](v T) *T {
	return &v
}

// ScoredReview is an accepted record plus its derived relevance attributes.
// RelevantStatus is empty when the batch went through the validate-only path.
type ScoredReview struct {
	ReviewRecord
	TextLengthScore float64        `json:"text_length_score" bson:"text_length_score" db:"text_length_score"`
	IsExtremeRating bool           `json:"is_extreme_rating" bson:"is_extreme_rating" db:"is_extreme_rating"`
	KeywordScore    float64        `json:"keyword_score" bson:"keyword_score" db:"keyword_score"`
	RelevanceScore  float64        `json:"relevance_score" bson:"relevance_score" db:"relevance_score"`
	RelevantStatus  RelevantStatus `json:"relevant_status,omitempty" bson:"relevant_status,omitempty" db:"relevant_status"`
}

// IsScored reports whether relevance attributes were computed for this review
func (s ScoredReview) IsScored() bool {
	return s.RelevantStatus != ""
}

// StoredReview is a warehouse row: a scored review plus ingestion metadata
type StoredReview struct {
	ScoredReview
	IngestionTimestamp time.Time `json:"ingestion_timestamp" db:"ingestion_timestamp"`
	PipelineVersion    string    `json:"pipeline_version" db:"pipeline_version"`
	RunID              string    `json:"run_id" db:"run_id"`
}
