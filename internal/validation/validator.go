// Package validation partitions a batch of joined review records into accepted
// and rejected records using an ordered list of record-level rules.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/reviewlens/reviewlens/internal/models"
)

// Result holds the two disjoint outputs of a validation pass
type Result struct {
	Accepted []models.ReviewRecord
	Rejected []models.RejectedRecord
}

// RejectionsByReason counts rejected records per reason
func (r *Result) RejectionsByReason() map[models.RejectionReason]int {
	counts := make(map[models.RejectionReason]int, len(models.RejectionReasons))
	for _, rej := range r.Rejected {
		counts[rej.RejectionReason]++
	}
	return counts
}

// Validator applies the rule pipeline. It keeps no state between calls.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator
type Option func(*Validator)

// WithClock overrides the time source used for rejected_at
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a new validator instance
func NewValidator(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// rule inspects one surviving record. It returns ok=false and a human-readable
// explanation when the record violates the rule.
type rule struct {
	reason models.RejectionReason
	check  func(rec *models.ReviewRecord) (ok bool, details string)
}

// Validate runs the rules in order over the whole batch. A record rejected by one rule is
// not seen by later rules, so every rejection carries exactly the first violated reason.
func (v *Validator) Validate(batch []models.ReviewRecord) *Result {
	rejectedAt := v.now().UTC()

	// Arena of candidate positions into the batch; each rule narrows it.
	survivors := make([]int, 0, len(batch))
	rejected := make([]models.RejectedRecord, 0)

	// Rule 1 needs the whole batch: the first occurrence of a review_id wins.
	seen := make(map[int64]int, len(batch))
	for i := range batch {
		rec := &batch[i]
		if rec.ReviewID != nil {
			if first, dup := seen[*rec.ReviewID]; dup {
				rejected = append(rejected, newRejection(rec, models.ReasonDuplicateReviewID,
					fmt.Sprintf("Duplicate review_id found (first seen at position %d)", first), rejectedAt))
				continue
			}
			seen[*rec.ReviewID] = i
		}
		survivors = append(survivors, i)
	}

	for _, r := range recordRules {
		kept := survivors[:0]
		for _, i := range survivors {
			rec := &batch[i]
			if ok, details := r.check(rec); !ok {
				rejected = append(rejected, newRejection(rec, r.reason, details, rejectedAt))
				continue
			}
			kept = append(kept, i)
		}
		survivors = kept
	}

	accepted := make([]models.ReviewRecord, 0, len(survivors))
	for _, i := range survivors {
		accepted = append(accepted, Normalize(batch[i]))
	}

	return &Result{Accepted: accepted, Rejected: rejected}
}

// recordRules are the per-record rules that run after duplicate detection, in order
var recordRules = []rule{
	{reason: models.ReasonMissingRequiredFields, check: checkRequiredFields},
	{reason: models.ReasonInvalidRating, check: checkRating},
	{reason: models.ReasonEmptyDescription, check: checkDescription},
}

func checkRequiredFields(rec *models.ReviewRecord) (bool, string) {
	var missing []string
	if rec.ReviewID == nil {
		missing = append(missing, "review_id")
	}
	if rec.Rating == nil {
		missing = append(missing, "rating")
	}
	if len(missing) > 0 {
		return false, "Missing required fields: " + strings.Join(missing, ", ")
	}
	return true, ""
}

func checkRating(rec *models.ReviewRecord) (bool, string) {
	if *rec.Rating < models.MinRating || *rec.Rating > models.MaxRating {
		return false, fmt.Sprintf("Invalid rating: %d", *rec.Rating)
	}
	return true, ""
}

func checkDescription(rec *models.ReviewRecord) (bool, string) {
	if rec.Description == nil || strings.TrimSpace(*rec.Description) == "" {
		return false, "Description is empty or null"
	}
	return true, ""
}

// Normalize fills the nullable columns of an accepted record with their defaults.
// The returned record shares no pointers with the input.
func Normalize(rec models.ReviewRecord) models.ReviewRecord {
	out := rec.Clone()
	if out.Title == nil {
		out.Title = models.Ptr("")
	}
	if out.Description == nil {
		out.Description = models.Ptr("")
	}
	if out.Category == nil {
		out.Category = models.Ptr(models.DefaultCategory)
	}
	if out.TextLength == nil {
		out.TextLength = models.Ptr(0)
	}
	if out.HasImage == nil {
		out.HasImage = models.Ptr(false)
	}
	if out.HasOrders == nil {
		out.HasOrders = models.Ptr(false)
	}
	return out
}

func newRejection(rec *models.ReviewRecord, reason models.RejectionReason, details string, at time.Time) models.RejectedRecord {
	id := models.UnknownReviewID
	if rec.ReviewID != nil {
		id = strconv.FormatInt(*rec.ReviewID, 10)
	}
	return models.RejectedRecord{
		ReviewID:        id,
		RejectionReason: reason,
		RejectedAt:      at,
		OriginalData:    rec.Clone(),
		ErrorDetails:    details,
	}
}
