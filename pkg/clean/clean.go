// Package clean applies optional post-standardization transforms to
// canonical tables: duplicate removal, missing-value policy and
// empty-column pruning. Cleaning is idempotent; a second pass with the
// same configuration removes nothing further.
package clean

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// MissingValuePolicy selects how null cells are handled
type MissingValuePolicy string

const (
	// PolicyNone leaves null cells untouched
	PolicyNone MissingValuePolicy = "none"
	// PolicyDrop removes rows with a null canonical field
	PolicyDrop MissingValuePolicy = "drop"
	// PolicyForwardFill copies the previous value of the same ticker down
	PolicyForwardFill MissingValuePolicy = "forward_fill"
	// PolicyBackwardFill copies the next value of the same ticker up
	PolicyBackwardFill MissingValuePolicy = "backward_fill"
)

// Config controls the cleaning pass
type Config struct {
	DropDuplicates   bool               `yaml:"drop_duplicates" json:"drop_duplicates" mapstructure:"drop_duplicates"`
	MissingValues    MissingValuePolicy `yaml:"missing_values" json:"missing_values" mapstructure:"missing_values"`
	DropEmptyColumns bool               `yaml:"drop_empty_columns" json:"drop_empty_columns" mapstructure:"drop_empty_columns"`
}

// DefaultConfig matches the production ingestion route: first-occurrence
// dedup, no filling, empty columns pruned.
func DefaultConfig() Config {
	return Config{
		DropDuplicates:   true,
		MissingValues:    PolicyNone,
		DropEmptyColumns: true,
	}
}

// Report describes what a cleaning pass changed
type Report struct {
	RowsRemoved    int `json:"rows_removed"`
	ValuesFilled   int `json:"values_filled"`
	ColumnsRemoved int `json:"columns_removed"`
}

// Clean returns a cleaned copy of the table and a report. The input table
// is never mutated.
func Clean(t *table.Table, cfg Config) (*table.Table, *Report) {
	out := t.Clone()
	report := &Report{}

	if cfg.DropDuplicates {
		dedupe(out, report)
	}

	switch cfg.MissingValues {
	case PolicyForwardFill:
		fill(out, report, false)
	case PolicyBackwardFill:
		fill(out, report, true)
	case PolicyDrop:
		dropIncomplete(out, report)
	}

	if cfg.DropEmptyColumns {
		dropEmptyColumns(out, report)
	}

	if report.RowsRemoved > 0 || report.ValuesFilled > 0 || report.ColumnsRemoved > 0 {
		logger.Debug("cleaning pass complete",
			zap.Int("rows_removed", report.RowsRemoved),
			zap.Int("values_filled", report.ValuesFilled),
			zap.Int("columns_removed", report.ColumnsRemoved))
	}

	return out, report
}

// dedupe removes duplicate (ticker, timestamp) rows, keeping the first
// occurrence in original order. Rows without a complete key are kept.
func dedupe(t *table.Table, report *Report) {
	type key struct {
		ticker string
		ts     int64
	}
	seen := make(map[key]bool, len(t.Rows))
	kept := t.Rows[:0]

	for _, row := range t.Rows {
		ticker, tok := table.AsString(row[table.FieldTicker])
		ts, sok := table.AsTime(row[table.FieldTimestamp])
		if !tok || !sok {
			kept = append(kept, row)
			continue
		}
		k := key{ticker, ts.UnixNano()}
		if seen[k] {
			report.RowsRemoved++
			continue
		}
		seen[k] = true
		kept = append(kept, row)
	}
	t.Rows = kept
}

// fill applies forward or backward fill per column in row order. Fills
// never cross a ticker boundary: the carried value resets whenever the
// ticker changes, so one symbol's prices can never bleed into another's.
func fill(t *table.Table, report *Report, backward bool) {
	cols := fillableColumns(t)

	idx := make([]int, len(t.Rows))
	for i := range idx {
		if backward {
			idx[i] = len(t.Rows) - 1 - i
		} else {
			idx[i] = i
		}
	}

	for _, col := range cols {
		carried := make(map[string]interface{})
		for _, i := range idx {
			row := t.Rows[i]
			ticker, _ := table.AsString(row[table.FieldTicker])
			if row[col] != nil {
				carried[ticker] = row[col]
				continue
			}
			if v, ok := carried[ticker]; ok {
				row[col] = v
				report.ValuesFilled++
			}
		}
	}
}

// fillableColumns returns every column except the dedup key
func fillableColumns(t *table.Table) []string {
	var cols []string
	for _, c := range t.Columns {
		if c == table.FieldTicker || c == table.FieldTimestamp {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// dropIncomplete removes rows carrying a null in any canonical column the
// table declares
func dropIncomplete(t *table.Table, report *Report) {
	var canonical []string
	for _, c := range t.Columns {
		if table.IsCanonical(c) {
			canonical = append(canonical, c)
		}
	}

	kept := t.Rows[:0]
	for _, row := range t.Rows {
		missing := false
		for _, c := range canonical {
			if row[c] == nil {
				missing = true
				break
			}
		}
		if missing {
			report.RowsRemoved++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
}

// dropEmptyColumns removes columns that are entirely null or have an
// empty/placeholder header. Canonical columns are never dropped, even when
// entirely null: the schema stays explicit about price/volume absence.
func dropEmptyColumns(t *table.Table, report *Report) {
	kept := t.Columns[:0]
	for _, col := range t.Columns {
		if table.IsCanonical(col) {
			kept = append(kept, col)
			continue
		}
		if placeholderHeader(col) || allNull(t, col) {
			for _, row := range t.Rows {
				delete(row, col)
			}
			delete(t.Types, col)
			report.ColumnsRemoved++
			continue
		}
		kept = append(kept, col)
	}
	t.Columns = kept
}

func placeholderHeader(name string) bool {
	s := strings.ToLower(strings.TrimSpace(name))
	return s == "" || s == "unnamed" || strings.HasPrefix(s, "unnamed:")
}

func allNull(t *table.Table, col string) bool {
	for _, row := range t.Rows {
		if v, ok := row[col]; ok && v != nil {
			if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
				return false
			}
		}
	}
	return true
}
