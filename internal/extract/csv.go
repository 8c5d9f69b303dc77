package extract

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/reviewlens/reviewlens/internal/anonymize"
	"github.com/reviewlens/reviewlens/internal/models"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// tableSchema lists the columns the review join needs from each dump.
// Integer columns get INTEGER affinity so numeric text compares and sorts as numbers.
type tableSchema struct {
	name     string
	required bool
	columns  []string
	integers map[string]bool
}

var csvTables = []tableSchema{
	{name: "review", required: true, columns: []string{"review_id", "buyer_id", "title", "r_desc", "rating"},
		integers: map[string]bool{"review_id": true, "rating": true}},
	{name: "product", required: true, columns: []string{"p_id", "p_name", "category_id"},
		integers: map[string]bool{"category_id": true}},
	{name: "product_reviews", required: true, columns: []string{"review_id", "p_id"},
		integers: map[string]bool{"review_id": true}},
	{name: "category", columns: []string{"category_id", "name"},
		integers: map[string]bool{"category_id": true}},
	{name: "review_images", columns: []string{"review_id"},
		integers: map[string]bool{"review_id": true}},
	{name: "orders", columns: []string{"order_id", "buyer_id"}},
}

// CSVSource loads <table>.csv dumps from a directory into an in-memory SQLite
// database and runs the same join as the postgres source.
type CSVSource struct {
	fsys   fs.FS
	hasher *anonymize.Hasher
	logger zerolog.Logger
}

// NewCSVSource creates a source reading from dir. hasher may be nil.
func NewCSVSource(dir string, hasher *anonymize.Hasher, logger zerolog.Logger) *CSVSource {
	return NewCSVSourceFS(os.DirFS(dir), hasher, logger)
}

// NewCSVSourceFS creates a source reading from an arbitrary filesystem
func NewCSVSourceFS(fsys fs.FS, hasher *anonymize.Hasher, logger zerolog.Logger) *CSVSource {
	return &CSVSource{fsys: fsys, hasher: hasher, logger: logger}
}

// Load reads every dump, joins them and returns the records
func (s *CSVSource) Load(ctx context.Context, productID string) ([]models.ReviewRecord, error) {
	start := time.Now()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	defer db.Close()
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	for _, table := range csvTables {
		n, err := s.loadTable(ctx, db, table)
		if err != nil {
			return nil, err
		}
		s.logger.Debug().Str("table", table.name).Int("rows", n).Msg("Loaded CSV table")
	}

	query, args, err := joinQuery(productID, sq.Question)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
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

	anonymizeAll(s.hasher, records)

	s.logger.Info().
		Int("rows", len(records)).
		Str("product_filter", productID).
		Dur("elapsed", time.Since(start)).
		Msg("Extracted reviews from CSV dumps")

	return records, nil
}

func (s *CSVSource) loadTable(ctx context.Context, db *sql.DB, table tableSchema) (int, error) {
	f, err := s.fsys.Open(table.name + ".csv")
	if errors.Is(err, fs.ErrNotExist) {
		if table.required {
			return 0, fmt.Errorf("%w: %s.csv", ErrMissingTable, table.name)
		}
		// Optional tables still have to exist for the LEFT JOINs
		return 0, createTable(ctx, db, table, table.columns)
	}
	if err != nil {
		return 0, fmt.Errorf("open %s.csv: %w", table.name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return 0, createTable(ctx, db, table, table.columns)
	}
	if err != nil {
		return 0, fmt.Errorf("read %s.csv header: %w", table.name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if err := checkColumns(table, header); err != nil {
		return 0, err
	}
	if err := createTable(ctx, db, table, header); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s load: %w", table.name, err)
	}
	defer tx.Rollback()

	insert, _, err := sq.Insert(table.name).
		Columns(quoteAll(header)...).
		Values(make([]any, len(header))...).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s insert: %w", table.name, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("prepare %s insert: %w", table.name, err)
	}
	defer stmt.Close()

	n := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read %s.csv line %d: %w", table.name, n+2, err)
		}
		args := make([]any, len(header))
		for i := range header {
			// Short rows and empty cells are NULL
			if i < len(rec) && rec[i] != "" {
				args[i] = rec[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("insert %s row %d: %w", table.name, n+1, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit %s load: %w", table.name, err)
	}
	return n, nil
}

func checkColumns(table tableSchema, header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, c := range table.columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s.csv lacks %s", ErrMissingColumn, table.name, strings.Join(missing, ", "))
	}
	return nil
}

func createTable(ctx context.Context, db *sql.DB, table tableSchema, columns []string) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		affinity := "TEXT"
		if table.integers[c] {
			affinity = "INTEGER"
		}
		defs[i] = fmt.Sprintf("%q %s", c, affinity)
	}
	stmt := fmt.Sprintf("CREATE TABLE %q (%s)", table.name, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", table.name, err)
	}
	return nil
}

func quoteAll(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = fmt.Sprintf("%q", c)
	}
	return out
}
