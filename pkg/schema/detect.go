// Package schema detects vendor column conventions and standardizes raw
// tables into the canonical OHLCV schema.
package schema

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// Mapping is a finite mapping from detected source columns to canonical
// fields. At most one source column maps to each canonical field; unmapped
// source columns are preserved as passthrough, never silently dropped.
type Mapping struct {
	// Sources maps canonical field name to the winning source column.
	Sources map[string]string
	// Passthrough lists source columns mapped to no canonical field,
	// in original header order.
	Passthrough []string
}

// Canonical returns the canonical field a source column maps to, if any
func (m *Mapping) Canonical(sourceCol string) (string, bool) {
	for field, src := range m.Sources {
		if src == sourceCol {
			return field, true
		}
	}
	return "", false
}

// Detect inspects raw column headers, plus an optional small sample of row
// values, and produces a Mapping. Detection never mutates its inputs.
//
// For each canonical field the source headers are tested against that
// field's VendorAliasSet in priority order. When several source columns
// match aliases of the same field, the column matching the
// earliest-priority alias wins; the rejected alternates stay passthrough
// and are logged. Sample values, when provided, veto a numeric-field match
// whose values are plainly non-numeric.
func Detect(columns []string, sampleRows []map[string]string) (*Mapping, error) {
	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = normalizeHeader(c)
	}

	m := &Mapping{Sources: make(map[string]string)}
	claimed := make(map[string]bool, len(columns))
	winningAlias := make(map[string]string)

	for _, set := range vendorAliases {
		src, alias, alternates := matchField(set, columns, normalized, claimed, sampleRows)
		if src == "" {
			continue
		}
		m.Sources[set.Field] = src
		claimed[src] = true
		winningAlias[set.Field] = alias
		if len(alternates) > 0 {
			logger.Warn("rejected alternate columns for canonical field",
				zap.String("field", set.Field),
				zap.String("selected", src),
				zap.String("alias", alias),
				zap.Strings("alternates", alternates))
		}
	}

	// Single-letter codes are only trusted in company: without a ticker or
	// timestamp candidate the match is coincidental (headers like a,b,c
	// would otherwise claim close).
	if _, ok := m.Sources[table.FieldTicker]; !ok {
		if _, ok := m.Sources[table.FieldTimestamp]; !ok {
			for field, alias := range winningAlias {
				if len(alias) == 1 {
					delete(claimed, m.Sources[field])
					delete(m.Sources, field)
				}
			}
		}
	}

	for _, c := range columns {
		if !claimed[c] {
			m.Passthrough = append(m.Passthrough, c)
		}
	}

	// The time-of-day slot alone does not count as a detected field.
	detected := len(m.Sources)
	if _, ok := m.Sources[timeOfDay]; ok {
		detected--
	}
	if detected == 0 {
		return nil, errors.New(errors.ErrorTypeNoFieldsDetected,
			"no canonical field recognizable in source columns").
			WithDetail("columns", columns)
	}

	return m, nil
}

// matchField finds the winning source column for one alias set. Returns the
// winner, the alias it matched, and any rejected alternates.
func matchField(set VendorAliasSet, columns, normalized []string, claimed map[string]bool, sampleRows []map[string]string) (string, string, []string) {
	var winner, winnerAlias string
	var alternates []string

	for _, alias := range set.Aliases {
		for i, norm := range normalized {
			if norm != alias || claimed[columns[i]] {
				continue
			}
			if !sampleSupports(set.Field, columns[i], sampleRows) {
				continue
			}
			if winner == "" {
				winner, winnerAlias = columns[i], alias
			} else if columns[i] != winner {
				alternates = append(alternates, columns[i])
			}
		}
	}

	return winner, winnerAlias, alternates
}

// sampleSupports vetoes a numeric canonical field whose sampled values are
// plainly non-numeric. An empty sample always supports the match.
func sampleSupports(field, column string, sampleRows []map[string]string) bool {
	switch table.CanonicalType(field) {
	case table.FieldTypeFloat, table.FieldTypeInt:
	default:
		return true
	}

	seen := false
	for _, row := range sampleRows {
		v, ok := row[column]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
			return true
		}
	}
	return !seen
}
