package extract

import (
	"context"
	"fmt"

	"github.com/reviewlens/reviewlens/internal/anonymize"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/database"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/rs/zerolog"
)

// Loader is implemented by every extract source
type Loader interface {
	Load(ctx context.Context, productID string) ([]models.ReviewRecord, error)
}

// Open builds the source selected by cfg.Pipeline.Source. The returned close
// function releases the postgres pool and is never nil.
func Open(cfg *config.Config, logger zerolog.Logger) (Loader, func(), error) {
	hasher, err := anonymize.NewHasher(cfg.Pipeline.AnonymizationSalt)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Pipeline.AnonymizationSalt == anonymize.DefaultSalt {
		logger.Warn().Msg("Using the default anonymization salt")
	}

	switch cfg.Pipeline.Source {
	case config.SourceCSV:
		logger.Info().Str("dir", cfg.Pipeline.CSVDir).Msg("Extracting from CSV dumps")
		return NewCSVSource(cfg.Pipeline.CSVDir, hasher, logger), func() {}, nil
	case config.SourcePostgres:
		if cfg.Database.URL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the %s source", config.SourcePostgres)
		}
		db, err := database.New(cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect source database: %w", err)
		}
		db.RecordStats()
		return NewPostgresSource(db.Pool, hasher, logger), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Pipeline.Source)
	}
}
