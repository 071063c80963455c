// Package encoding provides codecs for the file-backed table encodings:
// delimited-text (CSV), semi-structured-text (JSON lines), row-binary
// (Avro OCF), columnar-binary (Arrow IPC) and columnar-compressed
// (Parquet). The sixth encoding, embedded-database-table, is backed by the
// storage connector rather than a file codec.
//
// Every codec reads into and writes from the canonical table
// representation, so any encoding converts to any other by routing through
// memory.
package encoding

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/tickstore/pkg/compression"
	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// Encoding identifies an on-disk table representation
type Encoding string

const (
	// DelimitedText is plain CSV
	DelimitedText Encoding = "delimited-text"
	// RowBinary is Avro object container files
	RowBinary Encoding = "row-binary"
	// ColumnarBinary is the Arrow IPC file format
	ColumnarBinary Encoding = "columnar-binary"
	// ColumnarCompressed is Parquet with zstd column compression
	ColumnarCompressed Encoding = "columnar-compressed"
	// SemiStructuredText is newline-delimited JSON
	SemiStructuredText Encoding = "semi-structured-text"
	// EmbeddedTable is a table inside the embedded DuckDB database
	EmbeddedTable Encoding = "embedded-database-table"
)

// Codec reads and writes one encoding
type Codec interface {
	// Encoding returns the encoding identifier
	Encoding() Encoding
	// Extension returns the default file extension, dot included
	Extension() string
	// Read decodes a table. Text codecs produce raw string cells for the
	// standardizer; binary codecs produce typed cells.
	Read(r io.Reader) (*table.Table, error)
	// Write encodes a table
	Write(w io.Writer, t *table.Table) error
}

var codecs = map[Encoding]Codec{
	DelimitedText:      &csvCodec{},
	SemiStructuredText: &jsonlCodec{},
	RowBinary:          &avroCodec{},
	ColumnarBinary:     &arrowCodec{},
	ColumnarCompressed: &parquetCodec{},
}

// Lookup returns the codec for an encoding identifier
func Lookup(enc Encoding) (Codec, error) {
	c, ok := codecs[enc]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedEncoding,
			"unsupported encoding %q", enc)
	}
	return c, nil
}

// Encodings lists the file-backed encodings in a stable order
func Encodings() []Encoding {
	return []Encoding{
		DelimitedText, RowBinary, ColumnarBinary,
		ColumnarCompressed, SemiStructuredText,
	}
}

// DetectPath infers the encoding and any transparent compression from a
// file path. Compression extensions stack on the text encodings only
// (data.csv.gz, ticks.jsonl.zst); the binary encodings compress internally.
func DetectPath(path string) (Encoding, compression.Algorithm, error) {
	ext := strings.ToLower(filepath.Ext(path))
	algo := compression.None

	if a, ok := compression.ForExtension(ext); ok {
		algo = a
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ext)))
	}

	var enc Encoding
	switch ext {
	case ".csv", ".txt", ".tsv":
		enc = DelimitedText
	case ".jsonl", ".ndjson", ".json":
		enc = SemiStructuredText
	case ".avro":
		enc = RowBinary
	case ".arrow", ".ipc", ".feather":
		enc = ColumnarBinary
	case ".parquet", ".pq":
		enc = ColumnarCompressed
	case ".duckdb", ".ddb":
		enc = EmbeddedTable
	default:
		return "", compression.None, errors.Newf(errors.ErrorTypeUnsupportedEncoding,
			"cannot infer encoding from path %q", path)
	}

	if algo != compression.None && enc != DelimitedText && enc != SemiStructuredText {
		return "", compression.None, errors.Newf(errors.ErrorTypeUnsupportedEncoding,
			"compression extension is only supported on text encodings: %q", path)
	}

	return enc, algo, nil
}
