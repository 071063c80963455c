package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tickstore/pkg/clean"
	"github.com/ajitpratap0/tickstore/pkg/compression"
	"github.com/ajitpratap0/tickstore/pkg/encoding"
	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/query"
	"github.com/ajitpratap0/tickstore/pkg/storage"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

const bracketCSV = `<TICKER>,<PER>,<DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOL>
AAPL,D,20241016,000000,230.53,231.04,228.78,230.71,34082200
AAPL,D,20241016,000000,230.53,231.04,228.78,230.71,34082200
AAPL,D,20241017,000000,231.30,233.20,230.10,232.15,28900100
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readTable(t *testing.T, path string) *table.Table {
	t.Helper()
	enc, _, err := encoding.DetectPath(path)
	require.NoError(t, err)
	codec, err := encoding.Lookup(enc)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	out, err := codec.Read(f)
	require.NoError(t, err)
	return out
}

func TestConvertCSVToParquet(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "aapl.csv", bracketCSV)
	dst := filepath.Join(dir, "aapl.parquet")

	result, err := Convert(context.Background(), src, dst, Options{Clean: clean.DefaultConfig()})
	require.NoError(t, err)

	assert.Equal(t, 3, result.RowsRead)
	assert.Equal(t, 2, result.RowsWritten, "duplicate row removed")
	assert.Equal(t, 1, result.RowsRemoved)
	assert.Contains(t, result.Fields, table.FieldTicker)
	assert.Contains(t, result.Fields, table.FieldClose)
	assert.Contains(t, result.Passthrough, "<PER>")
	assert.NotEmpty(t, result.JobID)

	out := readTable(t, dst)
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, "AAPL", out.Rows[0][table.FieldTicker])
	assert.Equal(t, 230.71, out.Rows[0][table.FieldClose])
	assert.Equal(t, int64(34082200), out.Rows[0][table.FieldVolume])
	ts, ok := table.AsTime(out.Rows[0][table.FieldTimestamp])
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC), ts.UTC())
}

func TestConvertTransparentCompression(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "aapl.csv", bracketCSV)
	gz := filepath.Join(dir, "aapl.csv.gz")

	_, err := Convert(context.Background(), src, gz, Options{Clean: clean.DefaultConfig()})
	require.NoError(t, err)

	// The compressed output must feed back through the pipeline unchanged.
	dst := filepath.Join(dir, "again.jsonl")
	result, err := Convert(context.Background(), gz, dst, Options{Clean: clean.DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsWritten)
}

func TestConvertThroughDatabase(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "aapl.csv", bracketCSV)
	db := filepath.Join(dir, "ticks.duckdb")

	opts := Options{Clean: clean.DefaultConfig(), Pool: storage.PoolConfig{MaxConnections: 2}}

	_, err := Convert(context.Background(), src, db+"#aapl", opts)
	require.NoError(t, err)

	out := filepath.Join(dir, "back.csv")
	result, err := Convert(context.Background(), db+"#aapl", out, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsWritten)
}

func TestConvertDatabaseEndpointNeedsTable(t *testing.T) {
	_, err := ParseEndpoint("ticks.duckdb", "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = ParseEndpoint("prices.csv#tbl", "")
	require.Error(t, err)
}

func TestConvertUndetectableSchema(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "junk.csv", "a,b,c\n1,2,3\n")
	dst := filepath.Join(dir, "out.parquet")

	_, err := Convert(context.Background(), src, dst, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNoFieldsDetected))
}

func TestConvertPreservesTypedPassthrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "aapl.arrow")

	// A typed binary source with a float passthrough column.
	in := table.New([]string{table.FieldTicker, table.FieldTimestamp, table.FieldClose})
	in.AddColumn("adj_close", table.FieldTypeFloat)
	in.AppendRow(table.Row{
		table.FieldTicker:    "AAPL",
		table.FieldTimestamp: time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC),
		table.FieldClose:     230.71,
		"adj_close":          229.99,
	})

	codec, err := encoding.Lookup(encoding.ColumnarBinary)
	require.NoError(t, err)
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, codec.Write(f, in))
	require.NoError(t, f.Close())

	dst := filepath.Join(dir, "aapl.parquet")
	result, err := Convert(context.Background(), src, dst, Options{Clean: clean.DefaultConfig()})
	require.NoError(t, err)
	assert.Contains(t, result.Passthrough, "adj_close")

	out := readTable(t, dst)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, table.FieldTypeFloat, out.Types["adj_close"])
	assert.Equal(t, 229.99, out.Rows[0]["adj_close"])
}

func TestParseEndpointOverrideCompression(t *testing.T) {
	// An encoding override must not leave the compression slot unset.
	ep, err := ParseEndpoint("out.arrow", encoding.ColumnarBinary)
	require.NoError(t, err)
	assert.Equal(t, compression.None, ep.Compression)

	// Text overrides still honor a compression extension on the path.
	ep, err = ParseEndpoint("out.csv.gz", encoding.DelimitedText)
	require.NoError(t, err)
	assert.Equal(t, compression.Gzip, ep.Compression)
}

func TestWriteEndpointRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")

	// A channel cell cannot be marshaled, so encoding fails mid-write.
	bad := table.New([]string{"note"})
	bad.AppendRow(table.Row{"note": make(chan int)})

	ep, err := ParseEndpoint(path, "")
	require.NoError(t, err)
	require.Error(t, writeEndpoint(context.Background(), ep, bad, Options{}))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "failed write must not leave a partial file")
}

func TestConvertBatchColumnUnion(t *testing.T) {
	dir := t.TempDir()
	// Two vendors: one carries an exchange column, the other open interest.
	a := writeFile(t, dir, "a.csv", "ticker,date,close,exchange\nAAPL,2024-10-16,230.71,NASDAQ\n")
	b := writeFile(t, dir, "b.csv", "symbol,date,close,open_interest\nESZ4,2024-10-16,5842.25,2100300\n")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))

	batch, err := ConvertBatch(context.Background(), []string{a, b}, out, Options{
		DestEncoding: encoding.ColumnarBinary,
		Clean:        clean.DefaultConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Zero(t, batch.Failed)

	// Union: canonical fields in schema order, then passthrough.
	assert.Equal(t, []string{
		table.FieldTicker, table.FieldTimestamp, table.FieldClose,
		table.FieldOpenInterest, "exchange",
	}, batch.Columns)

	// Every output carries the full union; absent columns are null.
	ta := readTable(t, filepath.Join(out, "a.arrow"))
	tb := readTable(t, filepath.Join(out, "b.arrow"))
	assert.Equal(t, batch.Columns, ta.Columns)
	assert.Equal(t, batch.Columns, tb.Columns)
	assert.Nil(t, ta.Rows[0][table.FieldOpenInterest])
	assert.Nil(t, tb.Rows[0]["exchange"])
	assert.Equal(t, int64(2100300), tb.Rows[0][table.FieldOpenInterest])
}

func TestConvertBatchIsolatesBadFile(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.csv", "ticker,date,close\nAAPL,2024-10-16,230.71\n")
	bad := writeFile(t, dir, "bad.csv", "a,b\n1,2\n")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))

	batch, err := ConvertBatch(context.Background(), []string{good, bad}, out, Options{
		DestEncoding: encoding.SemiStructuredText,
		Clean:        clean.DefaultConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Empty(t, batch.Files[0].Error)
	assert.NotEmpty(t, batch.Files[1].Error)
}

func TestConvertBatchCancellation(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "ticker,date,close\nAAPL,2024-10-16,230.71\n")
	b := writeFile(t, dir, "b.csv", "ticker,date,close\nMSFT,2024-10-16,418.2\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := ConvertBatch(ctx, []string{a, b}, dir, Options{
		DestEncoding: encoding.DelimitedText,
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCanceled))
	require.NotNil(t, batch)
	assert.True(t, batch.Canceled)
	assert.Equal(t, 2, batch.Skipped)
	assert.Zero(t, batch.Succeeded)
}

func TestLoadFiltered(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "prices.csv",
		"ticker,date,close\nAAPL,2024-10-16,230.71\nAAPL,2024-10-17,231.30\nMSFT,2024-10-16,418.2\n")
	db := filepath.Join(dir, "ticks.duckdb")

	_, err := Convert(context.Background(), src, db+"#prices", Options{Clean: clean.DefaultConfig()})
	require.NoError(t, err)

	out := filepath.Join(dir, "aapl.csv")
	result, err := Load(context.Background(), LoadRequest{
		DatabasePath: db,
		Table:        "prices",
		Filter:       (&query.Filter{}).WhereIn(table.FieldTicker, "AAPL"),
		Destination:  out,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsWritten)

	exported := readTable(t, out)
	assert.Equal(t, 2, exported.NumRows())
}
