// Package warehouse stores accepted reviews in the analytical SQL store and serves
// the read queries behind the API.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/reviewlens/reviewlens/internal/database"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	_ "modernc.org/sqlite"
)

const reviewsTable = "reviews"

var ErrReviewNotFound = errors.New("review not found")

// insertBatchSize bounds the rows per INSERT statement. Postgres caps bind
// parameters at 65535 and every row carries len(storedColumns) of them.
const insertBatchSize = 500

// storedColumns is the column order used for inserts and selects
var storedColumns = []string{
	"review_id", "buyer_id", "p_id", "product_name", "category",
	"title", "description", "rating", "text_length", "has_image", "has_orders",
	"category_review", "confidence_score",
	"text_length_score", "is_extreme_rating", "keyword_score", "relevance_score", "relevant_status",
	"ingestion_timestamp", "pipeline_version", "run_id",
}

// Store is a warehouse backed by database/sql
type Store struct {
	db      *sql.DB
	dialect database.Dialect
	builder sq.StatementBuilderType
}

// Open connects to the warehouse named by url (postgres://... or sqlite://path)
func Open(ctx context.Context, url string) (*Store, error) {
	dialect, dsn, err := database.ParseURL(url)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == database.DialectSQLite {
		driver = "sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if dialect == database.DialectSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	return New(db, dialect), nil
}

// New wraps an open handle
func New(db *sql.DB, dialect database.Dialect) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == database.DialectPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Dialect returns the SQL engine behind the store
func (s *Store) Dialect() database.Dialect {
	return s.dialect
}

// Close closes the underlying handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Health pings the warehouse
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ReplaceReviews swaps the whole table for reviews in one transaction.
// Unscored reviews are stored with NULL score columns.
func (s *Store) ReplaceReviews(ctx context.Context, runID, version string, at time.Time, reviews []models.ScoredReview) (int, error) {
	start := time.Now()
	defer func() { monitoring.RecordDBQuery("warehouse_replace", time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	del, args, err := s.builder.Delete(reviewsTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return 0, fmt.Errorf("clear reviews: %w", err)
	}

	at = at.UTC()
	inserted := 0
	for lo := 0; lo < len(reviews); lo += insertBatchSize {
		hi := min(lo+insertBatchSize, len(reviews))

		ins := s.builder.Insert(reviewsTable).Columns(storedColumns...)
		for i := lo; i < hi; i++ {
			ins = ins.Values(rowValues(&reviews[i], runID, version, at)...)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return inserted, fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return inserted, fmt.Errorf("insert reviews %d-%d: %w", lo, hi, err)
		}
		inserted += hi - lo
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return inserted, nil
}

func rowValues(r *models.ScoredReview, runID, version string, at time.Time) []any {
	values := []any{
		r.ReviewID, r.BuyerID, r.ProductID, r.ProductName, r.Category,
		r.Title, r.Description, r.Rating, r.TextLength, r.HasImage, r.HasOrders,
		r.CategoryReview, r.ConfidenceScore,
	}
	if r.IsScored() {
		values = append(values,
			r.TextLengthScore, r.IsExtremeRating, r.KeywordScore, r.RelevanceScore, string(r.RelevantStatus))
	} else {
		values = append(values, nil, nil, nil, nil, nil)
	}
	return append(values, at, version, runID)
}

// RelevantReviews returns the RELEVANT reviews of a product, best first
func (s *Store) RelevantReviews(ctx context.Context, productID string, limit int) ([]models.StoredReview, error) {
	q := s.selectReviews().
		Where(sq.Eq{"p_id": productID, "relevant_status": string(models.StatusRelevant)}).
		OrderBy("relevance_score DESC", "review_id").
		Limit(uint64(limit))
	return s.query(ctx, "relevant_reviews", q)
}

// ProductReviews returns every stored review of a product
func (s *Store) ProductReviews(ctx context.Context, productID string) ([]models.StoredReview, error) {
	q := s.selectReviews().Where(sq.Eq{"p_id": productID}).OrderBy("review_id")
	return s.query(ctx, "product_reviews", q)
}

// AllReviews returns the whole table
func (s *Store) AllReviews(ctx context.Context) ([]models.StoredReview, error) {
	return s.query(ctx, "all_reviews", s.selectReviews().OrderBy("review_id"))
}

// BuyerReviews returns the reviews a buyer left on a product
func (s *Store) BuyerReviews(ctx context.Context, buyerID, productID string) ([]models.StoredReview, error) {
	q := s.selectReviews().
		Where(sq.Eq{"buyer_id": buyerID, "p_id": productID}).
		OrderBy("review_id")
	return s.query(ctx, "buyer_reviews", q)
}

// GetReview returns one review by id
func (s *Store) GetReview(ctx context.Context, reviewID int64) (*models.StoredReview, error) {
	reviews, err := s.query(ctx, "get_review", s.selectReviews().Where(sq.Eq{"review_id": reviewID}))
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, ErrReviewNotFound
	}
	return &reviews[0], nil
}

// ProductSummary is one row of the product listing
type ProductSummary struct {
	ProductID   string `json:"p_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
	Reviews     int    `json:"reviews"`
}

// Products lists reviewed products ordered by name
func (s *Store) Products(ctx context.Context, limit int) ([]ProductSummary, error) {
	q := s.builder.
		Select("p_id", "COALESCE(MAX(product_name), '')", "COALESCE(MAX(category), '')", "COUNT(*)").
		From(reviewsTable).
		Where(sq.NotEq{"p_id": nil}).
		GroupBy("p_id").
		OrderBy("COALESCE(MAX(product_name), '')", "p_id").
		Limit(uint64(limit))

	rows, err := s.run(ctx, "products", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]ProductSummary, 0)
	for rows.Next() {
		var p ProductSummary
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Category, &p.Reviews); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// BuyerProducts lists the distinct products a buyer reviewed
func (s *Store) BuyerProducts(ctx context.Context, buyerID string) ([]string, error) {
	q := s.builder.
		Select("p_id").
		Distinct().
		From(reviewsTable).
		Where(sq.Eq{"buyer_id": buyerID}).
		Where(sq.NotEq{"p_id": nil}).
		OrderBy("p_id")

	rows, err := s.run(ctx, "buyer_products", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) selectReviews() sq.SelectBuilder {
	return s.builder.Select(storedColumns...).From(reviewsTable)
}

func (s *Store) run(ctx context.Context, name string, q sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", name, err)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	monitoring.RecordDBQuery(name, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	return rows, nil
}

func (s *Store) query(ctx context.Context, name string, q sq.SelectBuilder) ([]models.StoredReview, error) {
	rows, err := s.run(ctx, name, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]models.StoredReview, 0)
	for rows.Next() {
		r, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, err)
	}
	return reviews, nil
}

func scanStored(rows *sql.Rows) (models.StoredReview, error) {
	var (
		r         models.StoredReview
		tls       sql.NullFloat64
		extreme   sql.NullBool
		keyword   sql.NullFloat64
		relevance sql.NullFloat64
		status    sql.NullString
	)
	err := rows.Scan(
		&r.ReviewID, &r.BuyerID, &r.ProductID, &r.ProductName, &r.Category,
		&r.Title, &r.Description, &r.Rating, &r.TextLength, &r.HasImage, &r.HasOrders,
		&r.CategoryReview, &r.ConfidenceScore,
		&tls, &extreme, &keyword, &relevance, &status,
		&r.IngestionTimestamp, &r.PipelineVersion, &r.RunID,
	)
	if err != nil {
		return models.StoredReview{}, fmt.Errorf("scan review: %w", err)
	}
	r.TextLengthScore = tls.Float64
	r.IsExtremeRating = extreme.Bool
	r.KeywordScore = keyword.Float64
	r.RelevanceScore = relevance.Float64
	r.RelevantStatus = models.RelevantStatus(status.String)
	return r, nil
}
