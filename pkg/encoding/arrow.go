package encoding

import (
	"bytes"
	"io"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// arrowCodec implements the columnar-binary encoding as Arrow IPC files
type arrowCodec struct{}

func (c *arrowCodec) Encoding() Encoding { return ColumnarBinary }
func (c *arrowCodec) Extension() string  { return ".arrow" }

const arrowBatchSize = 8192

func (c *arrowCodec) Write(w io.Writer, t *table.Table) error {
	alloc := memory.NewGoAllocator()
	schema := toArrowSchema(t)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(alloc))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create arrow writer")
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
		return fw.Write(rec)
	}

	for _, row := range t.Rows {
		if err := appendArrowRow(rb, schema, row); err != nil {
			return err
		}
		pending++
		if pending >= arrowBatchSize {
			if err := flush(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to write arrow batch")
			}
		}
	}
	if err := flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write arrow batch")
	}

	if err := fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to close arrow writer")
	}
	return nil
}

func (c *arrowCodec) Read(r io.Reader) (*table.Table, error) {
	// The IPC file format needs a seekable reader; buffer the input.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read arrow data")
	}

	fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open arrow file")
	}
	defer fr.Close()

	schema := fr.Schema()
	t := table.New(nil)
	for _, f := range schema.Fields() {
		t.AddColumn(f.Name, fromArrowType(f.Type))
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read arrow batch")
		}
		appendArrowRecord(t, rec)
	}

	return t, nil
}
