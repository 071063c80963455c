package encoding

import (
	"io"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// avroCodec implements the row-binary encoding as Avro object container
// files. Every field is a nullable union so pre-cleaning tables with null
// prices and volumes encode without loss. Passthrough column names are
// sanitized to valid Avro identifiers; canonical names are already valid.
type avroCodec struct{}

func (c *avroCodec) Encoding() Encoding { return RowBinary }
func (c *avroCodec) Extension() string  { return ".avro" }

// avroFieldType returns the Avro type JSON for one column
func avroFieldType(ft table.FieldType) interface{} {
	switch ft {
	case table.FieldTypeTimestamp:
		return map[string]interface{}{"type": "long", "logicalType": "timestamp-micros"}
	case table.FieldTypeFloat:
		return "double"
	case table.FieldTypeInt:
		return "long"
	default:
		return "string"
	}
}

// avroUnionKey is the union branch key goavro uses for each column type
func avroUnionKey(ft table.FieldType) string {
	switch ft {
	case table.FieldTypeTimestamp:
		return "long.timestamp-micros"
	case table.FieldTypeFloat:
		return "double"
	case table.FieldTypeInt:
		return "long"
	default:
		return "string"
	}
}

func avroSchema(t *table.Table) (string, error) {
	fields := make([]map[string]interface{}, 0, len(t.Columns))
	for _, col := range t.Columns {
		fields = append(fields, map[string]interface{}{
			"name": avroName(col),
			"type": []interface{}{"null", avroFieldType(t.Types[col])},
		})
	}

	schema := map[string]interface{}{
		"type":      "record",
		"name":      "observation",
		"namespace": "tickstore",
		"fields":    fields,
	}

	raw, err := gojson.Marshal(schema)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// avroName sanitizes a column name into a valid Avro identifier
func avroName(col string) string {
	var b strings.Builder
	for i, r := range col {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func (c *avroCodec) Write(w io.Writer, t *table.Table) error {
	schema, err := avroSchema(t)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to build avro schema")
	}

	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create avro codec")
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: goavro.CompressionSnappyLabel,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create avro writer")
	}

	batch := make([]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		native := make(map[string]interface{}, len(t.Columns))
		for _, col := range t.Columns {
			v := row[col]
			if v == nil {
				native[avroName(col)] = nil
				continue
			}
			native[avroName(col)] = goavro.Union(avroUnionKey(t.Types[col]), v)
		}
		batch = append(batch, native)
	}

	if err := ocf.Append(batch); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to append avro records")
	}
	return nil
}

func (c *avroCodec) Read(r io.Reader) (*table.Table, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to open avro container")
	}

	columns, types, err := avroColumns(ocf.Codec().Schema())
	if err != nil {
		return nil, err
	}

	t := table.New(nil)
	for i, col := range columns {
		t.AddColumn(col, types[i])
	}

	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read avro record")
		}
		native, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, "avro record is not a map")
		}

		row := make(table.Row, len(columns))
		for _, col := range columns {
			row[col] = unwrapUnion(native[col])
		}
		t.AppendRow(row)
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "avro scan failed")
	}

	return t, nil
}

// avroColumns recovers column order and types from the container schema.
// Decoding to native maps loses field order, so it is taken from the
// schema JSON instead.
func avroColumns(schema string) ([]string, []table.FieldType, error) {
	var parsed struct {
		Fields []struct {
			Name string        `json:"name"`
			Type []interface{} `json:"type"`
		} `json:"fields"`
	}
	if err := gojson.Unmarshal([]byte(schema), &parsed); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse avro schema")
	}

	columns := make([]string, 0, len(parsed.Fields))
	types := make([]table.FieldType, 0, len(parsed.Fields))
	for _, f := range parsed.Fields {
		columns = append(columns, f.Name)
		types = append(types, avroBranchType(f.Type))
	}
	return columns, types, nil
}

// avroBranchType maps the non-null union branch back to a field type
func avroBranchType(union []interface{}) table.FieldType {
	for _, branch := range union {
		switch b := branch.(type) {
		case string:
			switch b {
			case "double", "float":
				return table.FieldTypeFloat
			case "long", "int":
				return table.FieldTypeInt
			case "string":
				return table.FieldTypeString
			}
		case map[string]interface{}:
			if b["logicalType"] == "timestamp-micros" {
				return table.FieldTypeTimestamp
			}
		}
	}
	return table.FieldTypeString
}

// unwrapUnion strips goavro's single-entry union wrapper from a value
func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return nil
}
