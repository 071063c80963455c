// Package query builds parameterized statements from structured filter
// specifications. Caller values only ever travel as bound parameters;
// identifiers are validated against an allow-list derived from the known
// schema before being embedded, since parameter binding does not cover
// identifiers.
package query

import (
	"sort"
	"strings"

	"github.com/ajitpratap0/tickstore/pkg/errors"
)

// Eq is an equality condition
type Eq struct {
	Column string
	Value  interface{}
}

// Range is a half-open or closed range condition, typically over the
// timestamp column. Either bound may be nil.
type Range struct {
	Column string
	From   interface{}
	To     interface{}
}

// Membership is a set-membership condition, typically over ticker lists
type Membership struct {
	Column string
	Values []interface{}
}

// Filter is a structured query specification. The zero value selects
// everything.
type Filter struct {
	Columns []string // projection; empty means all columns
	Eq      []Eq
	Ranges  []Range
	In      []Membership
}

// WhereEq adds an equality condition
func (f *Filter) WhereEq(column string, value interface{}) *Filter {
	f.Eq = append(f.Eq, Eq{Column: column, Value: value})
	return f
}

// WhereRange adds a range condition
func (f *Filter) WhereRange(column string, from, to interface{}) *Filter {
	f.Ranges = append(f.Ranges, Range{Column: column, From: from, To: to})
	return f
}

// WhereIn adds a set-membership condition
func (f *Filter) WhereIn(column string, values ...interface{}) *Filter {
	f.In = append(f.In, Membership{Column: column, Values: values})
	return f
}

// Project restricts the selected columns
func (f *Filter) Project(columns ...string) *Filter {
	f.Columns = append(f.Columns, columns...)
	return f
}

// Build assembles a SELECT statement and its bound parameters for the
// named table. Every referenced column must be in allowed (the canonical
// plus passthrough column set); otherwise InvalidFilter is returned and no
// statement is produced.
func Build(tableName string, f *Filter, allowed []string) (string, []interface{}, error) {
	if err := ValidateIdent(tableName); err != nil {
		return "", nil, err
	}

	allowSet := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		allowSet[c] = true
	}

	if f == nil {
		f = &Filter{}
	}

	checkColumn := func(col string) error {
		if err := ValidateIdent(col); err != nil {
			return err
		}
		if !allowSet[col] {
			return errors.Newf(errors.ErrorTypeInvalidFilter,
				"column %q is not in the canonical or passthrough column set", col)
		}
		return nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(f.Columns) == 0 {
		cols := make([]string, len(allowed))
		for i, c := range allowed {
			cols[i] = QuoteIdent(c)
		}
		sb.WriteString(strings.Join(cols, ", "))
	} else {
		for i, col := range f.Columns {
			if err := checkColumn(col); err != nil {
				return "", nil, err
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(QuoteIdent(col))
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(tableName))

	var clauses []string
	var args []interface{}

	eqs := make([]Eq, len(f.Eq))
	copy(eqs, f.Eq)
	sort.SliceStable(eqs, func(i, j int) bool { return eqs[i].Column < eqs[j].Column })
	for _, e := range eqs {
		if err := checkColumn(e.Column); err != nil {
			return "", nil, err
		}
		clauses = append(clauses, QuoteIdent(e.Column)+" = ?")
		args = append(args, e.Value)
	}

	for _, r := range f.Ranges {
		if err := checkColumn(r.Column); err != nil {
			return "", nil, err
		}
		if r.From == nil && r.To == nil {
			return "", nil, errors.Newf(errors.ErrorTypeInvalidFilter,
				"range on %q has no bounds", r.Column)
		}
		if r.From != nil {
			clauses = append(clauses, QuoteIdent(r.Column)+" >= ?")
			args = append(args, r.From)
		}
		if r.To != nil {
			clauses = append(clauses, QuoteIdent(r.Column)+" <= ?")
			args = append(args, r.To)
		}
	}

	for _, m := range f.In {
		if err := checkColumn(m.Column); err != nil {
			return "", nil, err
		}
		if len(m.Values) == 0 {
			return "", nil, errors.Newf(errors.ErrorTypeInvalidFilter,
				"empty set membership on %q", m.Column)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(m.Values)), ", ")
		clauses = append(clauses, QuoteIdent(m.Column)+" IN ("+placeholders+")")
		args = append(args, m.Values...)
	}

	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}

	return sb.String(), args, nil
}

// ValidateIdent rejects identifiers that cannot be safely quoted
func ValidateIdent(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrorTypeInvalidFilter, "empty identifier")
	}
	if strings.ContainsAny(name, "\"\x00;") {
		return errors.Newf(errors.ErrorTypeInvalidFilter, "identifier %q contains forbidden characters", name)
	}
	return nil
}

// QuoteIdent double-quotes an already-validated identifier
func QuoteIdent(name string) string {
	return `"` + name + `"`
}
