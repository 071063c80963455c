package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

func rawTable(columns []string, rows ...[]interface{}) *table.Table {
	t := table.New(columns)
	for _, cells := range rows {
		row := make(table.Row, len(columns))
		for i, col := range columns {
			row[col] = cells[i]
		}
		t.AppendRow(row)
	}
	return t
}

func TestStandardizeBracketExport(t *testing.T) {
	columns := []string{"<TICKER>", "<DATE>", "<TIME>", "<OPEN>", "<HIGH>", "<LOW>", "<CLOSE>", "<VOL>"}
	raw := rawTable(columns,
		[]interface{}{"AAPL", "20241016", "000000", "230.53", "231.04", "228.78", "230.71", "34082200"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, report, err := Standardize(raw, m)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Zero(t, report.IncompleteRows)

	row := out.Rows[0]
	assert.Equal(t, "AAPL", row[table.FieldTicker])
	ts, ok := table.AsTime(row[table.FieldTimestamp])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC), ts.UTC())
	assert.Equal(t, 230.53, row[table.FieldOpen])
	assert.Equal(t, 231.04, row[table.FieldHigh])
	assert.Equal(t, 228.78, row[table.FieldLow])
	assert.Equal(t, 230.71, row[table.FieldClose])
	assert.Equal(t, int64(34082200), row[table.FieldVolume])

	// Canonical columns lead in schema order; the time column was folded
	// into the timestamp and does not survive.
	assert.Equal(t, []string{
		table.FieldTicker, table.FieldTimestamp,
		table.FieldOpen, table.FieldHigh, table.FieldLow, table.FieldClose,
		table.FieldVolume,
	}, out.Columns)
}

func TestStandardizeTimeOfDayFolding(t *testing.T) {
	columns := []string{"ticker", "date", "time", "close"}
	raw := rawTable(columns,
		[]interface{}{"MSFT", "2024-10-16", "15:30:00", "418.2"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, _, err := Standardize(raw, m)
	require.NoError(t, err)

	ts, ok := table.AsTime(out.Rows[0][table.FieldTimestamp])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC), ts.UTC())
}

func TestStandardizeNegativeVolumeDegrades(t *testing.T) {
	columns := []string{"ticker", "date", "volume"}
	raw := rawTable(columns,
		[]interface{}{"AAPL", "2024-10-16", "-5"},
		[]interface{}{"AAPL", "2024-10-17", "100"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, report, err := Standardize(raw, m)
	require.NoError(t, err)
	assert.Nil(t, out.Rows[0][table.FieldVolume])
	assert.Equal(t, int64(100), out.Rows[1][table.FieldVolume])
	assert.Equal(t, 1, report.NullCoercions)
	assert.True(t, report.PartialFieldLoss())
}

func TestStandardizeThousandsSeparators(t *testing.T) {
	columns := []string{"ticker", "date", "close", "volume"}
	raw := rawTable(columns,
		[]interface{}{"BRK.A", "2024-10-16", "1,234.5", "1,000,000"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, _, err := Standardize(raw, m)
	require.NoError(t, err)
	assert.Equal(t, 1234.5, out.Rows[0][table.FieldClose])
	assert.Equal(t, int64(1000000), out.Rows[0][table.FieldVolume])
}

func TestStandardizeUnparsableNumberDegradesToNull(t *testing.T) {
	columns := []string{"ticker", "date", "close"}
	raw := rawTable(columns,
		[]interface{}{"AAPL", "2024-10-16", "n/a"},
		[]interface{}{"AAPL", "2024-10-17", "230.71"},
	)

	m, err := Detect(raw.Columns, []map[string]string{
		{"ticker": "AAPL", "date": "2024-10-17", "close": "230.71"},
	})
	require.NoError(t, err)

	out, report, err := Standardize(raw, m)
	require.NoError(t, err)
	assert.Nil(t, out.Rows[0][table.FieldClose])
	assert.Equal(t, 230.71, out.Rows[1][table.FieldClose])
	assert.Equal(t, 1, report.NullCoercions)
}

func TestStandardizeAllRowsIncompleteFails(t *testing.T) {
	columns := []string{"ticker", "date"}
	raw := rawTable(columns,
		[]interface{}{"AAPL", "not a date"},
		[]interface{}{"MSFT", "also not"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	_, report, err := Standardize(raw, m)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, 2, report.IncompleteRows)
}

func TestStandardizePassthroughCarried(t *testing.T) {
	columns := []string{"ticker", "date", "close", "exchange"}
	raw := rawTable(columns,
		[]interface{}{"AAPL", "2024-10-16", "230.71", "NASDAQ"},
	)

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, _, err := Standardize(raw, m)
	require.NoError(t, err)
	assert.Equal(t, "NASDAQ", out.Rows[0]["exchange"])
	assert.Equal(t, []string{"exchange"}, out.Passthrough())
}

func TestStandardizePassthroughKeepsSourceTypes(t *testing.T) {
	// Typed binary sources (arrow, parquet, avro, database tables) decode
	// passthrough columns with concrete types; standardization must not
	// degrade them to string.
	raw := table.New([]string{"ticker", "date", "close"})
	raw.AddColumn("adj_close", table.FieldTypeFloat)
	raw.AddColumn("trades", table.FieldTypeInt)
	raw.AppendRow(table.Row{
		"ticker": "AAPL", "date": "2024-10-16", "close": "230.71",
		"adj_close": 229.99, "trades": int64(412000),
	})

	m, err := Detect(raw.Columns, nil)
	require.NoError(t, err)

	out, _, err := Standardize(raw, m)
	require.NoError(t, err)

	assert.Equal(t, table.FieldTypeFloat, out.Types["adj_close"])
	assert.Equal(t, table.FieldTypeInt, out.Types["trades"])
	assert.Equal(t, 229.99, out.Rows[0]["adj_close"])
	assert.Equal(t, int64(412000), out.Rows[0]["trades"])
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-10-16T15:30:00Z":  time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
		"2024-10-16T15:30:00":   time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
		"2024-10-16 15:30:00":   time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
		"2024-10-16":            time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC),
		"10/16/2024 15:30:00":   time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
		"10/16/2024":            time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC),
		"20241016":              time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC),
		"1729092600":            time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
		"1729092600000":         time.Date(2024, 10, 16, 15, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := parseTimestamp(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got.UTC(), in)
	}

	_, ok := parseTimestamp("yesterday")
	assert.False(t, ok)
}
