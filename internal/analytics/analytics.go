// Package analytics aggregates scored reviews into dashboard summaries.
package analytics

import (
	"sort"

	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/shopspring/decimal"
)

// Places is the rounding applied to every ratio and average
const Places = 2

var hundred = decimal.NewFromInt(100)

type bucket struct {
	reviews      int
	relevant     int
	rated        int
	ratingSum    int64
	scored       int
	relevanceSum decimal.Decimal
	extreme      int
}

func (b *bucket) add(r *models.ScoredReview) {
	b.reviews++
	if r.Rating != nil {
		b.rated++
		b.ratingSum += int64(*r.Rating)
	}
	if !r.IsScored() {
		return
	}
	b.scored++
	b.relevanceSum = b.relevanceSum.Add(decimal.NewFromFloat(r.RelevanceScore))
	if r.RelevantStatus == models.StatusRelevant {
		b.relevant++
	}
	if r.IsExtremeRating {
		b.extreme++
	}
}

// Summarize builds the breakdown of a set of reviews. Reviews that went through the
// validate-only path count toward totals and ratings but not toward relevance figures.
func Summarize(reviews []models.ScoredReview) *models.Summary {
	var total bucket
	byCategory := make(map[string]*bucket)
	byRating := make(map[int]*models.RatingBreakdown)

	for i := range reviews {
		r := &reviews[i]
		total.add(r)

		category := models.DefaultCategory
		if r.Category != nil && *r.Category != "" {
			category = *r.Category
		}
		b, ok := byCategory[category]
		if !ok {
			b = &bucket{}
			byCategory[category] = b
		}
		b.add(r)

		if r.Rating != nil && r.IsScored() {
			rb, ok := byRating[*r.Rating]
			if !ok {
				rb = &models.RatingBreakdown{Rating: *r.Rating}
				byRating[*r.Rating] = rb
			}
			if r.RelevantStatus == models.StatusRelevant {
				rb.Relevant++
			} else {
				rb.Irrelevant++
			}
		}
	}

	summary := &models.Summary{
		TotalReviews:      total.reviews,
		RelevantReviews:   total.relevant,
		PercentRelevant:   Percent(total.relevant, total.scored),
		AverageRating:     average(decimal.NewFromInt(total.ratingSum), total.rated),
		AverageRelevance:  average(total.relevanceSum, total.scored),
		ExtremeRatingRate: Percent(total.extreme, total.scored),
		ByCategory:        make([]models.CategoryBreakdown, 0, len(byCategory)),
		ByRating:          make([]models.RatingBreakdown, 0, len(byRating)),
	}

	for name, b := range byCategory {
		summary.ByCategory = append(summary.ByCategory, models.CategoryBreakdown{
			Category:         name,
			Reviews:          b.reviews,
			Relevant:         b.relevant,
			PercentRelevant:  Percent(b.relevant, b.scored),
			AverageRating:    average(decimal.NewFromInt(b.ratingSum), b.rated),
			AverageRelevance: average(b.relevanceSum, b.scored),
		})
	}
	// Largest categories first, ties broken by name for a stable order
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		a, b := summary.ByCategory[i], summary.ByCategory[j]
		if a.Reviews != b.Reviews {
			return a.Reviews > b.Reviews
		}
		return a.Category < b.Category
	})

	for _, rb := range byRating {
		summary.ByRating = append(summary.ByRating, *rb)
	}
	sort.Slice(summary.ByRating, func(i, j int) bool {
		return summary.ByRating[i].Rating < summary.ByRating[j].Rating
	})

	return summary
}

// Percent returns part/whole*100 rounded to two places, or zero for an empty whole
func Percent(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(Places)
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(Places)
}
