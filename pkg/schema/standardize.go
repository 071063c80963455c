package schema

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// Report summarizes per-row degradation during standardization. Incomplete
// rows (missing ticker or timestamp) are flagged here rather than aborting
// the batch.
type Report struct {
	TotalRows      int `json:"total_rows"`
	IncompleteRows int `json:"incomplete_rows"`
	NullCoercions  int `json:"null_coercions"`
}

// PartialFieldLoss reports whether any row degraded to null canonical fields
func (r *Report) PartialFieldLoss() bool {
	return r.IncompleteRows > 0 || r.NullCoercions > 0
}

// Standardize applies a Mapping to a raw table and produces a canonical
// table: mapped columns renamed to canonical names, timestamp coerced via
// ordered parse attempts, numeric fields coerced with unparsable values
// degrading to null. Passthrough columns are carried unchanged.
//
// The operation fails only when no row at all yields both ticker and
// timestamp; per-row failures degrade to nulls and are counted in the
// Report.
func Standardize(raw *table.Table, m *Mapping) (*table.Table, *Report, error) {
	columns := make([]string, 0, raw.NumColumns())
	for _, field := range table.CanonicalFields() {
		if _, ok := m.Sources[field]; ok {
			columns = append(columns, field)
		}
	}
	columns = append(columns, m.Passthrough...)
	out := table.New(columns)

	// Passthrough columns keep the source table's types, so typed cells
	// from binary encodings survive re-encoding instead of degrading to
	// string (and from there to null).
	for _, col := range m.Passthrough {
		if ft, ok := raw.Types[col]; ok {
			out.Types[col] = ft
		}
	}

	timeSrc := m.Sources[timeOfDay]
	report := &Report{TotalRows: raw.NumRows()}

	for _, src := range raw.Rows {
		row := make(table.Row, len(columns))
		for _, field := range table.CanonicalFields() {
			srcCol, ok := m.Sources[field]
			if !ok {
				continue
			}
			v, changed := coerce(field, src[srcCol])
			if changed {
				report.NullCoercions++
			}
			row[field] = v
		}

		// Fold a split time-of-day column into the timestamp.
		if timeSrc != "" {
			if ts, ok := table.AsTime(row[table.FieldTimestamp]); ok {
				if d, ok := parseTimeOfDay(cellString(src[timeSrc])); ok {
					row[table.FieldTimestamp] = ts.Add(d)
				}
			}
		}

		for _, col := range m.Passthrough {
			row[col] = src[col]
		}

		if !row.Complete() {
			report.IncompleteRows++
		}
		out.AppendRow(row)
	}

	if report.TotalRows > 0 && report.IncompleteRows == report.TotalRows {
		return nil, report, errors.New(errors.ErrorTypeData,
			"no row produced both ticker and timestamp; source is not tabular financial data")
	}

	if report.PartialFieldLoss() {
		logger.Warn("standardization degraded some values to null",
			zap.Int("incomplete_rows", report.IncompleteRows),
			zap.Int("null_coercions", report.NullCoercions))
	}

	return out, report, nil
}

// coerce converts one raw cell to its canonical type. The second return
// reports a lossy degradation (non-empty input that failed to parse).
func coerce(field string, v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	switch table.CanonicalType(field) {
	case table.FieldTypeTimestamp:
		if t, ok := table.AsTime(v); ok {
			return t, false
		}
		s := cellString(v)
		if s == "" {
			return nil, false
		}
		if t, ok := parseTimestamp(s); ok {
			return t, false
		}
		return nil, true

	case table.FieldTypeFloat:
		if f, ok := table.AsFloat(v); ok {
			return f, false
		}
		s := numericString(v)
		if s == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, false
		}
		return nil, true

	case table.FieldTypeInt:
		if n, ok := table.AsInt(v); ok {
			if field == table.FieldVolume && n < 0 {
				return nil, true
			}
			return n, false
		}
		s := numericString(v)
		if s == "" {
			return nil, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			if field == table.FieldVolume && n < 0 {
				return nil, true
			}
			return n, false
		}
		// Some vendors emit volume as a float literal.
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			n := int64(f)
			if field == table.FieldVolume && n < 0 {
				return nil, true
			}
			return n, false
		}
		return nil, true

	default:
		s := cellString(v)
		if s == "" {
			return nil, false
		}
		return s, false
	}
}

// timestampLayouts are the ordered parse attempts for the canonical
// timestamp: ISO variants first, then slash-delimited US dates. Integer
// forms (YYYYMMDD, unix epoch) are handled separately.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		switch len(s) {
		case 8: // YYYYMMDD
			if t, err := time.Parse("20060102", s); err == nil {
				return t, true
			}
		case 10: // unix seconds
			return time.Unix(n, 0).UTC(), true
		case 13: // unix milliseconds
			return time.UnixMilli(n).UTC(), true
		}
	}

	return time.Time{}, false
}

// parseTimeOfDay parses a split time column into an offset from midnight
func parseTimeOfDay(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}

	// Compact HHMMSS, as written by bracket-annotated vendor exports.
	if len(s) == 6 {
		if t, err := time.Parse("150405", s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}

	return 0, false
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// numericString trims a raw cell and strips thousands separators
func numericString(v interface{}) string {
	return strings.ReplaceAll(cellString(v), ",", "")
}
