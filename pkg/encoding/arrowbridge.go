package encoding

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// Schema and value bridging shared by the Arrow IPC and Parquet codecs.

func toArrowType(ft table.FieldType) arrow.DataType {
	switch ft {
	case table.FieldTypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_ns
	case table.FieldTypeFloat:
		return arrow.PrimitiveTypes.Float64
	case table.FieldTypeInt:
		return arrow.PrimitiveTypes.Int64
	default:
		return arrow.BinaryTypes.String
	}
}

func fromArrowType(dt arrow.DataType) table.FieldType {
	switch dt.ID() {
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return table.FieldTypeTimestamp
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return table.FieldTypeFloat
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return table.FieldTypeInt
	default:
		return table.FieldTypeString
	}
}

func toArrowSchema(t *table.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns))
	for _, col := range t.Columns {
		fields = append(fields, arrow.Field{
			Name:     col,
			Type:     toArrowType(t.Types[col]),
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// appendArrowRow appends one canonical row to a record builder
func appendArrowRow(rb *array.RecordBuilder, schema *arrow.Schema, row table.Row) error {
	for i, field := range schema.Fields() {
		builder := rb.Field(i)
		value := row[field.Name]
		if value == nil {
			builder.AppendNull()
			continue
		}

		switch b := builder.(type) {
		case *array.StringBuilder:
			if s, ok := table.AsString(value); ok {
				b.Append(s)
			} else {
				b.AppendNull()
			}
		case *array.Float64Builder:
			if f, ok := table.AsFloat(value); ok {
				b.Append(f)
			} else {
				b.AppendNull()
			}
		case *array.Int64Builder:
			if n, ok := table.AsInt(value); ok {
				b.Append(n)
			} else {
				b.AppendNull()
			}
		case *array.TimestampBuilder:
			if ts, ok := table.AsTime(value); ok {
				b.Append(arrow.Timestamp(ts.UnixNano()))
			} else {
				b.AppendNull()
			}
		default:
			return errors.Newf(errors.ErrorTypeData, "unsupported arrow builder for column %s", field.Name)
		}
	}
	return nil
}

// appendArrowRecord copies an Arrow record batch into the table
func appendArrowRecord(t *table.Table, rec arrow.Record) {
	schema := rec.Schema()
	for rowIdx := 0; rowIdx < int(rec.NumRows()); rowIdx++ {
		row := make(table.Row, int(rec.NumCols()))
		for colIdx := 0; colIdx < int(rec.NumCols()); colIdx++ {
			row[schema.Field(colIdx).Name] = arrowCell(rec.Column(colIdx), rowIdx)
		}
		t.AppendRow(row)
	}
}

func arrowCell(col arrow.Array, rowIdx int) interface{} {
	if col.IsNull(rowIdx) {
		return nil
	}

	switch c := col.(type) {
	case *array.String:
		return c.Value(rowIdx)
	case *array.Float64:
		return c.Value(rowIdx)
	case *array.Int64:
		return c.Value(rowIdx)
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		switch unit {
		case arrow.Second:
			return time.Unix(int64(c.Value(rowIdx)), 0).UTC()
		case arrow.Millisecond:
			return time.UnixMilli(int64(c.Value(rowIdx))).UTC()
		case arrow.Microsecond:
			return time.UnixMicro(int64(c.Value(rowIdx))).UTC()
		default:
			return time.Unix(0, int64(c.Value(rowIdx))).UTC()
		}
	default:
		return nil
	}
}
