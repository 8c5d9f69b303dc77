// Package extract loads joined review records from the operational store or from
// CSV table dumps.
package extract

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/reviewlens/reviewlens/internal/anonymize"
	"github.com/reviewlens/reviewlens/internal/models"
)

var (
	ErrMissingTable  = errors.New("required table is missing")
	ErrMissingColumn = errors.New("required column is missing")
)

// reviewColumns is the projection shared by every source. Order matters: scanRecord
// reads the columns positionally.
var reviewColumns = []string{
	"CAST(r.buyer_id AS TEXT) AS buyer_id",
	"r.review_id",
	"r.title",
	"r.r_desc AS description",
	"r.rating",
	"LENGTH(r.r_desc) AS text_length",
	"CASE WHEN ri.review_id IS NOT NULL THEN 1 ELSE 0 END AS has_image",
	"CASE WHEN o.order_id IS NOT NULL THEN 1 ELSE 0 END AS has_orders",
	"CAST(p.p_id AS TEXT) AS p_id",
	"p.p_name AS product_name",
	"c.name AS category",
}

// joinQuery builds the review join. One row per review survives DISTINCT even when
// the buyer has several orders, because no per-order column is projected.
func joinQuery(productID string, format sq.PlaceholderFormat) (string, []any, error) {
	q := sq.Select(reviewColumns...).
		Distinct().
		From("review r").
		LeftJoin("product_reviews pr ON r.review_id = pr.review_id").
		LeftJoin("product p ON pr.p_id = p.p_id").
		LeftJoin("category c ON p.category_id = c.category_id").
		LeftJoin("review_images ri ON r.review_id = ri.review_id").
		LeftJoin("orders o ON r.buyer_id = o.buyer_id").
		OrderBy("r.review_id").
		PlaceholderFormat(format)

	if productID != "" {
		q = q.Where(sq.Eq{"CAST(pr.p_id AS TEXT)": productID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build review query: %w", err)
	}
	return query, args, nil
}

// rowScanner is satisfied by both pgx.Rows and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.ReviewRecord, error) {
	var (
		rec       models.ReviewRecord
		hasImage  *int64
		hasOrders *int64
	)
	err := row.Scan(
		&rec.BuyerID,
		&rec.ReviewID,
		&rec.Title,
		&rec.Description,
		&rec.Rating,
		&rec.TextLength,
		&hasImage,
		&hasOrders,
		&rec.ProductID,
		&rec.ProductName,
		&rec.Category,
	)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("scan review row: %w", err)
	}
	rec.HasImage = flag(hasImage)
	rec.HasOrders = flag(hasOrders)
	return rec, nil
}

func flag(v *int64) *bool {
	if v == nil {
		return nil
	}
	b := *v != 0
	return &b
}

// anonymizeAll hashes buyer ids when a hasher is configured
func anonymizeAll(h *anonymize.Hasher, records []models.ReviewRecord) {
	if h != nil {
		h.Records(records)
	}
}
