package encoding

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// csvCodec implements the delimited-text encoding on encoding/csv.
// Cells decode as raw strings; empty cells decode as nil so the row/column
// contract survives a round trip.
type csvCodec struct{}

func (c *csvCodec) Encoding() Encoding { return DelimitedText }
func (c *csvCodec) Extension() string  { return ".csv" }

func (c *csvCodec) Read(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.ErrorTypeData, "delimited file has no header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read header row")
	}

	t := table.New(header)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read delimited row")
		}

		row := make(table.Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		t.AppendRow(row)
	}

	return t, nil
}

func (c *csvCodec) Write(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write header row")
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = formatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to write delimited row")
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatCell renders a canonical cell as text. Floats keep their shortest
// exact representation; naive timestamps omit the zone so the standardizer
// parses them back without inventing one.
func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Location() == time.UTC {
			return x.Format("2006-01-02 15:04:05")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
