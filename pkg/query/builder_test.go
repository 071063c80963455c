package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

var allowed = []string{
	table.FieldTicker, table.FieldTimestamp,
	table.FieldOpen, table.FieldHigh, table.FieldLow, table.FieldClose,
	table.FieldVolume, "exchange",
}

func TestBuildSelectAll(t *testing.T) {
	sql, args, err := Build("prices", nil, allowed)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "ticker", "timestamp", "open", "high", "low", "close", "volume", "exchange" FROM "prices"`,
		sql)
	assert.Empty(t, args)
}

func TestBuildProjectionAndConditions(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	f := (&Filter{}).
		Project(table.FieldTicker, table.FieldClose).
		WhereEq("exchange", "NASDAQ").
		WhereRange(table.FieldTimestamp, from, to).
		WhereIn(table.FieldTicker, "AAPL", "MSFT")

	sql, args, err := Build("prices", f, allowed)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "ticker", "close" FROM "prices" WHERE `+
			`"exchange" = ? AND "timestamp" >= ? AND "timestamp" <= ? AND "ticker" IN (?, ?)`,
		sql)
	assert.Equal(t, []interface{}{"NASDAQ", from, to, "AAPL", "MSFT"}, args)
}

func TestBuildOpenEndedRange(t *testing.T) {
	f := (&Filter{}).WhereRange(table.FieldTimestamp, "2024-01-01", nil)
	sql, args, err := Build("prices", f, allowed)
	require.NoError(t, err)
	assert.Contains(t, sql, `"timestamp" >= ?`)
	assert.NotContains(t, sql, "<=")
	assert.Len(t, args, 1)
}

func TestBuildRejectsUnknownColumn(t *testing.T) {
	f := (&Filter{}).WhereEq("dividend", 1.0)
	_, _, err := Build("prices", f, allowed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}

func TestBuildRejectsUnknownProjection(t *testing.T) {
	f := (&Filter{}).Project("password")
	_, _, err := Build("prices", f, allowed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}

func TestBuildRejectsEmptyMembership(t *testing.T) {
	f := (&Filter{}).WhereIn(table.FieldTicker)
	_, _, err := Build("prices", f, allowed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}

func TestBuildRejectsUnboundedRange(t *testing.T) {
	f := (&Filter{}).WhereRange(table.FieldTimestamp, nil, nil)
	_, _, err := Build("prices", f, allowed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}

func TestValidateIdent(t *testing.T) {
	assert.NoError(t, ValidateIdent("prices"))
	assert.NoError(t, ValidateIdent("adj close")) // quoted identifiers may hold spaces

	for _, bad := range []string{"", "  ", `pri"ces`, "a;b", "x\x00y"} {
		err := ValidateIdent(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter), bad)
	}
}

func TestBuildRejectsMaliciousTableName(t *testing.T) {
	_, _, err := Build(`prices"; DROP TABLE prices; --`, nil, allowed)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}
