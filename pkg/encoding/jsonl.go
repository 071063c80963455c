package encoding

import (
	"bufio"
	"io"
	"sort"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// jsonlCodec implements the semi-structured-text encoding: one JSON object
// per line. The column set is the union of keys across all objects, in
// first-seen order, so ragged vendor exports decode into one aligned table.
type jsonlCodec struct{}

func (c *jsonlCodec) Encoding() Encoding { return SemiStructuredText }
func (c *jsonlCodec) Extension() string  { return ".jsonl" }

func (c *jsonlCodec) Read(r io.Reader) (*table.Table, error) {
	dec := gojson.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()

	var rows []table.Row
	keys := make(map[string]bool)
	for {
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode json line")
		}

		row := make(table.Row, len(obj))
		for k, v := range obj {
			keys[k] = true
			row[k] = jsonCell(v)
		}
		rows = append(rows, row)
	}

	// JSON objects are unordered; rebuild a deterministic column order:
	// canonical fields in schema order, then the rest alphabetically.
	var columns []string
	for _, f := range table.CanonicalFields() {
		if keys[f] {
			columns = append(columns, f)
			delete(keys, f)
		}
	}
	extra := make([]string, 0, len(keys))
	for k := range keys {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	columns = append(columns, extra...)

	t := table.New(columns)
	t.Rows = rows
	return t, nil
}

func (c *jsonlCodec) Write(w io.Writer, t *table.Table) error {
	bw := bufio.NewWriter(w)
	enc := gojson.NewEncoder(bw)

	obj := make(map[string]interface{}, len(t.Columns))
	for _, row := range t.Rows {
		for k := range obj {
			delete(obj, k)
		}
		for _, col := range t.Columns {
			v := row[col]
			if v == nil {
				obj[col] = nil
				continue
			}
			// Timestamps serialize as text; everything else is JSON-native.
			if t.Types[col] == table.FieldTypeTimestamp {
				obj[col] = formatCell(v)
			} else {
				obj[col] = v
			}
		}
		if err := enc.Encode(obj); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode json line")
		}
	}

	return bw.Flush()
}

// jsonCell converts a decoded JSON value into a raw cell for the
// standardizer. Numbers keep their literal text so integer volume never
// detours through float64.
func jsonCell(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case gojson.Number:
		return x.String()
	case string:
		if x == "" {
			return nil
		}
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return nil
	}
}
