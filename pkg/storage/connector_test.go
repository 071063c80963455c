package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/query"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

func testConnector(t *testing.T) *Connector {
	t.Helper()
	conn, err := New(Config{
		Path: "", // in-memory
		Pool: PoolConfig{MaxConnections: 2, AcquireTimeout: 200 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func pricesTable(rows ...table.Row) *table.Table {
	t := table.New([]string{
		table.FieldTicker, table.FieldTimestamp, table.FieldClose, table.FieldVolume,
	})
	for _, row := range rows {
		t.AppendRow(row)
	}
	return t
}

func day(d int) time.Time {
	return time.Date(2024, 10, d, 0, 0, 0, 0, time.UTC)
}

func TestWriteAndReadTable(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	in := pricesTable(
		table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16), table.FieldClose: 230.71, table.FieldVolume: int64(34082200)},
		table.Row{table.FieldTicker: "MSFT", table.FieldTimestamp: day(16), table.FieldClose: 418.2, table.FieldVolume: nil},
	)
	require.NoError(t, conn.WriteTable(ctx, "prices", in, WriteReplace))

	out, err := conn.ReadTable(ctx, "prices", nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, in.Columns, out.Columns)

	assert.Equal(t, "AAPL", out.Rows[0][table.FieldTicker])
	assert.Equal(t, 230.71, out.Rows[0][table.FieldClose])
	assert.Equal(t, int64(34082200), out.Rows[0][table.FieldVolume])
	assert.Nil(t, out.Rows[1][table.FieldVolume])

	ts, ok := table.AsTime(out.Rows[0][table.FieldTimestamp])
	require.True(t, ok)
	assert.True(t, ts.Equal(day(16)))
}

func TestWriteAppendAccumulates(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	first := pricesTable(table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16), table.FieldClose: 230.71})
	second := pricesTable(table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(17), table.FieldClose: 231.30})

	require.NoError(t, conn.WriteTable(ctx, "prices", first, WriteAppend))
	require.NoError(t, conn.WriteTable(ctx, "prices", second, WriteAppend))

	out, err := conn.ReadTable(ctx, "prices", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
}

func TestWriteReplaceSwapsContents(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	old := pricesTable(
		table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16), table.FieldClose: 1.0},
		table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(17), table.FieldClose: 2.0},
	)
	require.NoError(t, conn.WriteTable(ctx, "prices", old, WriteReplace))

	fresh := pricesTable(table.Row{table.FieldTicker: "MSFT", table.FieldTimestamp: day(18), table.FieldClose: 3.0})
	require.NoError(t, conn.WriteTable(ctx, "prices", fresh, WriteReplace))

	out, err := conn.ReadTable(ctx, "prices", nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "MSFT", out.Rows[0][table.FieldTicker])

	// No staging leftovers are visible.
	names, err := conn.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"prices"}, names)
}

func TestReadTableWithFilter(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	in := pricesTable(
		table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16), table.FieldClose: 230.71},
		table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(17), table.FieldClose: 231.30},
		table.Row{table.FieldTicker: "MSFT", table.FieldTimestamp: day(16), table.FieldClose: 418.2},
	)
	require.NoError(t, conn.WriteTable(ctx, "prices", in, WriteReplace))

	f := (&query.Filter{}).
		WhereIn(table.FieldTicker, "AAPL").
		WhereRange(table.FieldTimestamp, day(17), nil)

	out, err := conn.ReadTable(ctx, "prices", f)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, 231.30, out.Rows[0][table.FieldClose])
}

func TestReadTableFilterRejectsUnknownColumn(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	in := pricesTable(table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16)})
	require.NoError(t, conn.WriteTable(ctx, "prices", in, WriteReplace))

	f := (&query.Filter{}).WhereEq("nonexistent", 1)
	_, err := conn.ReadTable(ctx, "prices", f)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidFilter))
}

func TestReadMissingTable(t *testing.T) {
	conn := testConnector(t)
	_, err := conn.ReadTable(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTableNotFound))
}

func TestDropTable(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	in := pricesTable(table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16)})
	require.NoError(t, conn.WriteTable(ctx, "prices", in, WriteReplace))
	require.NoError(t, conn.DropTable(ctx, "prices"))

	_, err := conn.ReadTable(ctx, "prices", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTableNotFound))

	// Dropping again is a no-op.
	assert.NoError(t, conn.DropTable(ctx, "prices"))
}

func TestCloseReleasesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.duckdb")
	cfg := Config{
		Path: path,
		Pool: PoolConfig{MaxConnections: 2, AcquireTimeout: 200 * time.Millisecond},
	}
	ctx := context.Background()

	first, err := New(cfg)
	require.NoError(t, err)
	in := pricesTable(table.Row{table.FieldTicker: "AAPL", table.FieldTimestamp: day(16), table.FieldClose: 230.71})
	require.NoError(t, first.WriteTable(ctx, "prices", in, WriteReplace))
	first.Close()

	// Close must release the file handle so a fresh connector can open
	// the same database and see the committed rows.
	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Close()

	out, err := second.ReadTable(ctx, "prices", nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "AAPL", out.Rows[0][table.FieldTicker])
}

func TestPoolExhaustion(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()
	pool := conn.Pool()

	first, err := pool.Acquire(ctx)
	require.NoError(t, err)
	second, err := pool.Acquire(ctx)
	require.NoError(t, err)

	// Both slots held: the third acquisition must time out, not block forever.
	start := time.Now()
	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePoolExhausted))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// Releasing frees a slot for the next caller.
	pool.Release(first)
	third, err := pool.Acquire(ctx)
	require.NoError(t, err)

	pool.Release(second)
	pool.Release(third)

	stats := pool.Stats()
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.GreaterOrEqual(t, stats.TotalReused, int64(1))
}

func TestAcquireCanceledContext(t *testing.T) {
	conn := testConnector(t)
	pool := conn.Pool()
	ctx := context.Background()

	first, err := pool.Acquire(ctx)
	require.NoError(t, err)
	second, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(first)
	defer pool.Release(second)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = pool.Acquire(canceled)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCanceled))
}

func TestExecuteAndQuery(t *testing.T) {
	conn := testConnector(t)
	ctx := context.Background()

	_, err := conn.Execute(ctx, `CREATE TABLE t (x BIGINT)`)
	require.NoError(t, err)
	affected, err := conn.Execute(ctx, `INSERT INTO t VALUES (?)`, int64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	out, err := conn.Query(ctx, `SELECT x FROM t WHERE x = ?`, int64(42))
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, int64(42), out.Rows[0]["x"])
}
