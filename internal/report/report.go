// Package report renders pipeline run results as plain-text tables for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/reviewlens/reviewlens/internal/models"
)

// WriteRunSummary writes the run header, record counts, rejection breakdown and,
// when present, the category and rating breakdowns
func WriteRunSummary(w io.Writer, stats *models.RunStats) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Pipeline run %s (version %s)\n", stats.RunID, stats.PipelineVersion)
	fmt.Fprintf(&sb, "Status: %s", stats.Status)
	if stats.Error != "" {
		fmt.Fprintf(&sb, " (%s)", stats.Error)
	}
	sb.WriteString("\n")
	filter := stats.ProductFilter
	if filter == "" {
		filter = "all products"
	}
	fmt.Fprintf(&sb, "Scope: %s, took %s\n\n", filter, stats.Duration().Round(time.Millisecond))

	writeTable(&sb, [][]string{
		{"Metric", "Count"},
		{"Total records", strconv.Itoa(stats.TotalRecords)},
		{"Clean records", strconv.Itoa(stats.CleanRecords)},
		{"Rejected records", strconv.Itoa(stats.RejectedRecords)},
		{"Relevant records", strconv.Itoa(stats.RelevantRecords)},
		{"Warehouse inserts", strconv.Itoa(stats.WarehouseInserts)},
		{"Rejection inserts", strconv.Itoa(stats.RejectionInserts)},
	})

	if stats.RejectedRecords > 0 {
		rows := [][]string{{"Rejection reason", "Count"}}
		for _, reason := range models.RejectionReasons {
			if n := stats.RejectionsByReason[reason]; n > 0 {
				rows = append(rows, []string{string(reason), strconv.Itoa(n)})
			}
		}
		sb.WriteString("\n")
		writeTable(&sb, rows)
	}

	if s := stats.Summary; s != nil && s.TotalReviews > 0 {
		fmt.Fprintf(&sb, "\nRelevant: %d of %d (%s%%), average rating %s, average relevance %s\n\n",
			s.RelevantReviews, s.TotalReviews, s.PercentRelevant.StringFixed(2),
			s.AverageRating.StringFixed(2), s.AverageRelevance.StringFixed(2))

		rows := [][]string{{"Category", "Reviews", "Relevant", "% Relevant", "Avg rating", "Avg score"}}
		for _, c := range s.ByCategory {
			rows = append(rows, []string{
				c.Category,
				strconv.Itoa(c.Reviews),
				strconv.Itoa(c.Relevant),
				c.PercentRelevant.StringFixed(2),
				c.AverageRating.StringFixed(2),
				c.AverageRelevance.StringFixed(2),
			})
		}
		writeTable(&sb, rows)

		rows = [][]string{{"Rating", "Relevant", "Irrelevant"}}
		for _, r := range s.ByRating {
			rows = append(rows, []string{strconv.Itoa(r.Rating), strconv.Itoa(r.Relevant), strconv.Itoa(r.Irrelevant)})
		}
		sb.WriteString("\n")
		writeTable(&sb, rows)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// writeTable renders rows as a pipe table. The first row is the header.
// Columns are padded by display width so wide characters in category names line up.
func writeTable(sb *strings.Builder, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	colCount := 0
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	widths := make([]int, colCount)
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	writeRow := func(row []string) {
		sb.WriteString("|")
		for j := 0; j < colCount; j++ {
			content := ""
			if j < len(row) {
				content = row[j]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, widths[j]))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}

	writeRow(rows[0])
	sb.WriteString("|")
	for _, w := range widths {
		sb.WriteString(" " + strings.Repeat("-", w) + " |")
	}
	sb.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
}
