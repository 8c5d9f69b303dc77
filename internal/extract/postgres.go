package extract

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewlens/reviewlens/internal/anonymize"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/reviewlens/reviewlens/internal/monitoring"
	"github.com/rs/zerolog"
)

// PostgresSource reads the review join from the operational database
type PostgresSource struct {
	pool   *pgxpool.Pool
	hasher *anonymize.Hasher
	logger zerolog.Logger
}

// NewPostgresSource creates a source over an existing pool. hasher may be nil.
func NewPostgresSource(pool *pgxpool.Pool, hasher *anonymize.Hasher, logger zerolog.Logger) *PostgresSource {
	return &PostgresSource{pool: pool, hasher: hasher, logger: logger}
}

// Load runs the join, optionally restricted to one product
func (s *PostgresSource) Load(ctx context.Context, productID string) ([]models.ReviewRecord, error) {
	query, args, err := joinQuery(productID, sq.Dollar)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var records []models.ReviewRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	monitoring.RecordDBQuery("extract_postgres", time.Since(start))

	anonymizeAll(s.hasher, records)

	s.logger.Info().
		Int("rows", len(records)).
		Str("product_filter", productID).
		Dur("elapsed", time.Since(start)).
		Msg("Extracted reviews from postgres")

	return records, nil
}
