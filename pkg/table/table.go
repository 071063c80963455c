// Package table provides the canonical in-memory representation of
// financial time-series data. Every vendor format is mapped into this
// model before being cleaned, converted or persisted.
package table

import (
	"time"

	"github.com/ajitpratap0/tickstore/pkg/errors"
)

// FieldType represents the data type of a column
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeFloat     FieldType = "float"
	FieldTypeInt       FieldType = "int"
	FieldTypeTimestamp FieldType = "timestamp"
)

// Canonical field names. All vendor formats are mapped into this set;
// source columns matching none of them are preserved as passthrough.
const (
	FieldTicker       = "ticker"
	FieldTimestamp    = "timestamp"
	FieldOpen         = "open"
	FieldHigh         = "high"
	FieldLow          = "low"
	FieldClose        = "close"
	FieldVolume       = "volume"
	FieldOpenInterest = "open_interest"
)

var canonicalOrder = []string{
	FieldTicker, FieldTimestamp,
	FieldOpen, FieldHigh, FieldLow, FieldClose,
	FieldVolume, FieldOpenInterest,
}

var canonicalTypes = map[string]FieldType{
	FieldTicker:       FieldTypeString,
	FieldTimestamp:    FieldTypeTimestamp,
	FieldOpen:         FieldTypeFloat,
	FieldHigh:         FieldTypeFloat,
	FieldLow:          FieldTypeFloat,
	FieldClose:        FieldTypeFloat,
	FieldVolume:       FieldTypeInt,
	FieldOpenInterest: FieldTypeInt,
}

// CanonicalFields returns the canonical column names in schema order
func CanonicalFields() []string {
	out := make([]string, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// IsCanonical reports whether name is a canonical field
func IsCanonical(name string) bool {
	_, ok := canonicalTypes[name]
	return ok
}

// CanonicalType returns the type of a canonical field, or FieldTypeString
// for passthrough columns
func CanonicalType(name string) FieldType {
	if t, ok := canonicalTypes[name]; ok {
		return t
	}
	return FieldTypeString
}

// Row is a single observation. Values are nil when the source had no value
// or the value failed coercion. Canonical fields hold string, float64,
// int64 or time.Time; passthrough columns keep whatever cell type the
// source decoder produced.
type Row map[string]interface{}

// Complete reports whether the row carries both ticker and timestamp.
// Price and volume fields may be nil pending cleaning policy.
func (r Row) Complete() bool {
	return r[FieldTicker] != nil && r[FieldTimestamp] != nil
}

// Table is an ordered sequence of rows sharing one column set.
// Insertion order is the original source row order unless a cleaning or
// conversion step removes rows.
type Table struct {
	Columns []string
	Types   map[string]FieldType
	Rows    []Row
}

// New creates an empty table with the given column order. Canonical
// columns get their canonical types; everything else defaults to string.
func New(columns []string) *Table {
	t := &Table{
		Columns: make([]string, 0, len(columns)),
		Types:   make(map[string]FieldType, len(columns)),
	}
	for _, c := range columns {
		t.AddColumn(c, CanonicalType(c))
	}
	return t
}

// NumRows returns the row count
func (t *Table) NumRows() int { return len(t.Rows) }

// NumColumns returns the column count
func (t *Table) NumColumns() int { return len(t.Columns) }

// HasColumn reports whether the table carries the named column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Types[name]
	return ok
}

// AddColumn registers a column if not already present. Existing rows keep
// a nil cell for it.
func (t *Table) AddColumn(name string, ft FieldType) {
	if t.HasColumn(name) {
		return
	}
	t.Columns = append(t.Columns, name)
	if t.Types == nil {
		t.Types = make(map[string]FieldType)
	}
	t.Types[name] = ft
}

// AppendRow appends a row. Columns absent from the row read back as nil.
func (t *Table) AppendRow(row Row) {
	t.Rows = append(t.Rows, row)
}

// Passthrough returns the non-canonical columns in table order
func (t *Table) Passthrough() []string {
	var out []string
	for _, c := range t.Columns {
		if !IsCanonical(c) {
			out = append(out, c)
		}
	}
	return out
}

// Reorder rearranges the column order. Every requested column must exist;
// columns omitted from the request keep their relative order after the
// requested ones.
func (t *Table) Reorder(order []string) error {
	seen := make(map[string]bool, len(order))
	next := make([]string, 0, len(t.Columns))
	for _, c := range order {
		if !t.HasColumn(c) {
			return errors.Newf(errors.ErrorTypeInvalidFilter, "unknown column %q in requested order", c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		next = append(next, c)
	}
	for _, c := range t.Columns {
		if !seen[c] {
			next = append(next, c)
		}
	}
	t.Columns = next
	return nil
}

// Clone returns a deep copy. Pipeline stages operate on their own copy so
// no shared mutable state leaks between stages.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: make([]string, len(t.Columns)),
		Types:   make(map[string]FieldType, len(t.Types)),
		Rows:    make([]Row, len(t.Rows)),
	}
	copy(out.Columns, t.Columns)
	for k, v := range t.Types {
		out.Types[k] = v
	}
	for i, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows[i] = nr
	}
	return out
}

// Value coercion helpers. Codecs and the storage layer read cells through
// these so that int64/float64/time.Time round-trip regardless of which
// concrete type a decoder produced.

// AsString converts a cell to string
func AsString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsFloat converts a cell to float64
func AsFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

// AsInt converts a cell to int64
func AsInt(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

// AsTime converts a cell to time.Time
func AsTime(v interface{}) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
