package schema

import (
	"strings"

	"github.com/ajitpratap0/tickstore/pkg/table"
)

// timeOfDay is an internal detection slot for vendor formats that split the
// observation timestamp across a date column and a time column. The
// standardizer folds it into the canonical timestamp and drops the source
// column, so it never appears in output tables.
const timeOfDay = "_time_of_day"

// VendorAliasSet is the ordered list of known source-column aliases for one
// canonical field. Order is the tie-break priority: generic name first,
// then vendor-prefixed tokens, then single-letter compact codes.
// Bracket-wrapped vendor tokens (<CLOSE>) normalize to the generic alias
// once surrounding punctuation is stripped.
type VendorAliasSet struct {
	Field   string
	Aliases []string
}

var vendorAliases = []VendorAliasSet{
	{table.FieldTicker, []string{"ticker", "symbol", "sym", "security", "secid", "s"}},
	{table.FieldTimestamp, []string{"timestamp", "datetime", "date", "dt", "dtyyyymmdd", "px_date", "t"}},
	{timeOfDay, []string{"time", "timeofday", "px_time"}},
	{table.FieldOpen, []string{"open", "px_open", "o"}},
	{table.FieldHigh, []string{"high", "px_high", "h"}},
	{table.FieldLow, []string{"low", "px_low", "l"}},
	{table.FieldClose, []string{"close", "last", "px_last", "px_close", "c"}},
	{table.FieldVolume, []string{"volume", "vol", "px_volume", "v"}},
	{table.FieldOpenInterest, []string{"open_interest", "openinterest", "openint", "oi", "px_open_int"}},
}

// normalizeHeader case-normalizes a source column name: lowercase, trimmed,
// surrounding punctuation stripped (<TICKER> and [Close] both normalize to
// their bare token), internal spaces and dashes folded to underscores.
func normalizeHeader(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Trim(s, "<>[](){}#%$*\"'`")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
