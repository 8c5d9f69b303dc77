package models

import (
	"time"
)

// RejectionReason identifies the validation rule a record failed
type RejectionReason string

const (
	ReasonDuplicateReviewID     RejectionReason = "duplicate_review_id"
	ReasonMissingRequiredFields RejectionReason = "missing_required_fields"
	ReasonInvalidRating         RejectionReason = "invalid_rating"
	ReasonEmptyDescription      RejectionReason = "empty_description"
)

// RejectionReasons lists every reason in rule order
var RejectionReasons = []RejectionReason{
	ReasonDuplicateReviewID,
	ReasonMissingRequiredFields,
	ReasonInvalidRating,
	ReasonEmptyDescription,
}

// Valid reports whether r is a known rejection reason
func (r RejectionReason) Valid() bool {
	for _, known := range RejectionReasons {
		if r == known {
			return true
		}
	}
	return false
}

// UnknownReviewID is stored when a rejected record has no review_id at all
const UnknownReviewID = "UNKNOWN"

// RejectedRecord is one entry of the rejection log
type RejectedRecord struct {
	ReviewID        string          `json:"review_id" bson:"review_id"`
	RejectionReason RejectionReason `json:"rejection_reason" bson:"rejection_reason"`
	RejectedAt      time.Time       `json:"rejected_at" bson:"rejected_at"`
	OriginalData    ReviewRecord    `json:"original_data" bson:"original_data"`
	ErrorDetails    string          `json:"error_details" bson:"error_details"`
	RunID           string          `json:"run_id,omitempty" bson:"run_id,omitempty"`
}
