package encoding

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// parquetCodec implements the columnar-compressed encoding as Parquet with
// zstd column compression
type parquetCodec struct{}

func (c *parquetCodec) Encoding() Encoding { return ColumnarCompressed }
func (c *parquetCodec) Extension() string  { return ".parquet" }

const parquetBatchSize = 8192

// writerNoClose shields the caller's writer: pqarrow's file writer closes
// its sink on Close, but codecs never own the destination.
type writerNoClose struct{ io.Writer }

func (c *parquetCodec) Write(w io.Writer, t *table.Table) error {
	alloc := memory.NewGoAllocator()
	schema := toArrowSchema(t)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(alloc))

	fw, err := pqarrow.NewFileWriter(schema, writerNoClose{w}, props, arrowProps)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create parquet writer")
	}

	rb := array.NewRecordBuilder(alloc, schema)
	defer rb.Release()

	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		rec := rb.NewRecord()
		defer rec.Release()
		pending = 0
		return fw.WriteBuffered(rec)
	}

	for _, row := range t.Rows {
		if err := appendArrowRow(rb, schema, row); err != nil {
			return err
		}
		pending++
		if pending >= parquetBatchSize {
			if err := flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to write parquet row group")
			}
		}
	}
	if err := flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write parquet row group")
	}

	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to close parquet writer")
	}
	return nil
}

func (c *parquetCodec) Read(r io.Reader) (*table.Table, error) {
	// Parquet needs a seekable reader; buffer the input.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet data")
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open parquet file")
	}
	defer fr.Close()

	ar, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to create parquet arrow reader")
	}

	schema, err := ar.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet schema")
	}

	t := table.New(nil)
	for _, f := range schema.Fields() {
		t.AddColumn(f.Name, fromArrowType(f.Type))
	}

	rr, err := ar.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet records")
	}
	defer rr.Release()

	for rr.Next() {
		appendArrowRecord(t, rr.Record())
	}
	if err := rr.Err(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "parquet record iteration failed")
	}

	return t, nil
}
