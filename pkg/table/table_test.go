package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalFieldsOrderAndTypes(t *testing.T) {
	fields := CanonicalFields()
	assert.Equal(t, []string{
		FieldTicker, FieldTimestamp,
		FieldOpen, FieldHigh, FieldLow, FieldClose,
		FieldVolume, FieldOpenInterest,
	}, fields)

	assert.Equal(t, FieldTypeString, CanonicalType(FieldTicker))
	assert.Equal(t, FieldTypeTimestamp, CanonicalType(FieldTimestamp))
	assert.Equal(t, FieldTypeFloat, CanonicalType(FieldClose))
	assert.Equal(t, FieldTypeInt, CanonicalType(FieldVolume))
	// Unknown columns default to string.
	assert.Equal(t, FieldTypeString, CanonicalType("exchange"))
}

func TestRowComplete(t *testing.T) {
	assert.True(t, Row{FieldTicker: "AAPL", FieldTimestamp: time.Now()}.Complete())
	assert.False(t, Row{FieldTicker: "AAPL"}.Complete())
	assert.False(t, Row{FieldTimestamp: time.Now()}.Complete())
	assert.False(t, Row{FieldTicker: nil, FieldTimestamp: time.Now()}.Complete())
}

func TestCloneIsIndependent(t *testing.T) {
	orig := New([]string{FieldTicker, FieldTimestamp, "note"})
	orig.AppendRow(Row{FieldTicker: "AAPL", "note": "x"})

	cl := orig.Clone()
	cl.Rows[0][FieldTicker] = "MSFT"
	cl.Columns[0] = "changed"

	assert.Equal(t, "AAPL", orig.Rows[0][FieldTicker])
	assert.Equal(t, FieldTicker, orig.Columns[0])
}

func TestReorder(t *testing.T) {
	tbl := New([]string{"b", "a"})
	require.NoError(t, tbl.Reorder([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)

	assert.Error(t, tbl.Reorder([]string{"a", "missing"}))
}

func TestPassthrough(t *testing.T) {
	tbl := New([]string{FieldTicker, FieldTimestamp, FieldClose, "exchange", "note"})
	assert.Equal(t, []string{"exchange", "note"}, tbl.Passthrough())
}

func TestCoercionHelpers(t *testing.T) {
	if f, ok := AsFloat(float64(1.5)); assert.True(t, ok) {
		assert.Equal(t, 1.5, f)
	}
	if n, ok := AsInt(int64(7)); assert.True(t, ok) {
		assert.Equal(t, int64(7), n)
	}
	ts := time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC)
	if got, ok := AsTime(ts); assert.True(t, ok) {
		assert.True(t, got.Equal(ts))
	}
	_, ok := AsTime("2024-10-16")
	assert.False(t, ok, "AsTime is a type assertion, not a parser")
}
