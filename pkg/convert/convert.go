// Package convert runs the conversion pipeline: decode a source endpoint,
// detect its vendor schema, standardize it into the canonical form, clean
// it, and encode it to a destination endpoint. Endpoints are file paths or
// database references of the form path.duckdb#table.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/clean"
	"github.com/ajitpratap0/tickstore/pkg/compression"
	"github.com/ajitpratap0/tickstore/pkg/encoding"
	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/metrics"
	"github.com/ajitpratap0/tickstore/pkg/observability"
	"github.com/ajitpratap0/tickstore/pkg/schema"
	"github.com/ajitpratap0/tickstore/pkg/storage"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// detectSampleSize is how many rows the schema detector gets to veto
// column matches on content
const detectSampleSize = 32

// Options controls one conversion
type Options struct {
	// SourceEncoding and DestEncoding override path-based detection
	SourceEncoding encoding.Encoding
	DestEncoding   encoding.Encoding
	// Clean configures the cleaning stage
	Clean clean.Config
	// ColumnOrder, when set, fixes the output column order. Every named
	// column must exist in the cleaned table.
	ColumnOrder []string
	// WriteMode applies to database destinations; defaults to replace
	WriteMode storage.WriteMode
	// Pool bounds connections for database endpoints
	Pool storage.PoolConfig
}

// Result reports what one conversion did
type Result struct {
	JobID          string   `json:"job_id"`
	Source         string   `json:"source"`
	Destination    string   `json:"destination"`
	RowsRead       int      `json:"rows_read"`
	RowsWritten    int      `json:"rows_written"`
	Fields         []string `json:"fields"`
	Passthrough    []string `json:"passthrough,omitempty"`
	IncompleteRows int      `json:"incomplete_rows"`
	RowsRemoved    int      `json:"rows_removed"`
	ValuesFilled   int      `json:"values_filled"`
	ColumnsRemoved int      `json:"columns_removed"`
}

// Endpoint is a resolved conversion source or destination
type Endpoint struct {
	Path        string
	Table       string // non-empty for database endpoints
	Encoding    encoding.Encoding
	Compression compression.Algorithm
}

// ParseEndpoint resolves a path or path#table reference. The override
// encoding, when non-empty, wins over path-based detection.
func ParseEndpoint(ref string, override encoding.Encoding) (Endpoint, error) {
	ep := Endpoint{Path: ref}
	if idx := strings.LastIndex(ref, "#"); idx >= 0 {
		ep.Path = ref[:idx]
		ep.Table = ref[idx+1:]
	}

	if override != "" {
		ep.Encoding = override
		if ep.Encoding != encoding.EmbeddedTable {
			if _, err := encoding.Lookup(ep.Encoding); err != nil {
				return Endpoint{}, err
			}
		}
		// An override still honors a compression extension on text paths.
		ep.Compression = compression.None
		if ep.Encoding == encoding.DelimitedText || ep.Encoding == encoding.SemiStructuredText {
			if algo, ok := compression.ForExtension(strings.ToLower(filepath.Ext(ep.Path))); ok {
				ep.Compression = algo
			}
		}
	} else {
		enc, algo, err := encoding.DetectPath(ep.Path)
		if err != nil {
			return Endpoint{}, err
		}
		ep.Encoding = enc
		ep.Compression = algo
	}

	if ep.Encoding == encoding.EmbeddedTable && ep.Table == "" {
		return Endpoint{}, errors.Newf(errors.ErrorTypeConfig,
			"database endpoint %q needs a table reference, e.g. %s#prices", ref, ep.Path)
	}
	if ep.Encoding != encoding.EmbeddedTable && ep.Table != "" {
		return Endpoint{}, errors.Newf(errors.ErrorTypeConfig,
			"table reference %q only applies to database endpoints", ref)
	}

	return ep, nil
}

// Convert runs the full pipeline from source to dest
func Convert(ctx context.Context, source, dest string, opts Options) (*Result, error) {
	src, err := ParseEndpoint(source, opts.SourceEncoding)
	if err != nil {
		return nil, err
	}
	dst, err := ParseEndpoint(dest, opts.DestEncoding)
	if err != nil {
		return nil, err
	}

	result := &Result{
		JobID:       uuid.NewString(),
		Source:      source,
		Destination: dest,
	}

	ctx, span := observability.Tracer().Start(ctx, "convert",
		trace.WithAttributes(
			attribute.String("job_id", result.JobID),
			attribute.String("source_encoding", string(src.Encoding)),
			attribute.String("dest_encoding", string(dst.Encoding)),
		))
	defer span.End()

	log := logger.Get().With(
		zap.String("job_id", result.JobID),
		zap.String("source", source),
		zap.String("destination", dest),
	)

	cleaned, err := runPipeline(ctx, src, opts, result, log)
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := writeEndpoint(ctx, dst, cleaned, opts); err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result.RowsWritten = cleaned.NumRows()
	metrics.ConversionsTotal.WithLabelValues("success").Inc()
	metrics.RowsProcessed.Add(float64(result.RowsRead))
	metrics.RowsRemoved.Add(float64(result.RowsRemoved))

	log.Info("conversion finished",
		zap.Int("rows_read", result.RowsRead),
		zap.Int("rows_written", result.RowsWritten),
		zap.Int("rows_removed", result.RowsRemoved))
	return result, nil
}

// runPipeline decodes, detects, standardizes and cleans a source table
func runPipeline(ctx context.Context, src Endpoint, opts Options, result *Result, log *zap.Logger) (*table.Table, error) {
	raw, err := readEndpoint(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	result.RowsRead = raw.NumRows()

	mapping, err := schema.Detect(raw.Columns, sampleStrings(raw, detectSampleSize))
	if err != nil {
		return nil, err
	}

	canonical, report, err := schema.Standardize(raw, mapping)
	if err != nil {
		return nil, err
	}
	result.IncompleteRows = report.IncompleteRows
	if report.PartialFieldLoss() {
		log.Warn("some rows lost canonical fields during standardization",
			zap.Int("incomplete_rows", report.IncompleteRows),
			zap.Int("total_rows", report.TotalRows))
	}

	cleaned, cleanReport := clean.Clean(canonical, opts.Clean)
	result.RowsRemoved = cleanReport.RowsRemoved
	result.ValuesFilled = cleanReport.ValuesFilled
	result.ColumnsRemoved = cleanReport.ColumnsRemoved

	for _, col := range cleaned.Columns {
		if table.IsCanonical(col) {
			result.Fields = append(result.Fields, col)
		}
	}
	result.Passthrough = cleaned.Passthrough()

	if len(opts.ColumnOrder) > 0 {
		if err := cleaned.Reorder(opts.ColumnOrder); err != nil {
			return nil, err
		}
	}

	return cleaned, nil
}

// readEndpoint decodes a source endpoint into a table
func readEndpoint(ctx context.Context, ep Endpoint, opts Options) (*table.Table, error) {
	if ep.Encoding == encoding.EmbeddedTable {
		conn, err := storage.New(storage.Config{Path: ep.Path, Pool: opts.Pool})
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return conn.ReadTable(ctx, ep.Table, nil)
	}

	codec, err := encoding.Lookup(ep.Encoding)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(ep.Path)
	if err != nil {
		return nil, errors.WrapIO(err, ep.Path)
	}
	defer f.Close()

	if ep.Compression == compression.None {
		return codec.Read(f)
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: ep.Compression})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := comp.DecompressStream(&buf, f); err != nil {
		return nil, errors.WrapIO(err, ep.Path)
	}
	return codec.Read(&buf)
}

// writeEndpoint encodes a table to a destination endpoint
func writeEndpoint(ctx context.Context, ep Endpoint, t *table.Table, opts Options) error {
	if ep.Encoding == encoding.EmbeddedTable {
		conn, err := storage.New(storage.Config{Path: ep.Path, Pool: opts.Pool})
		if err != nil {
			return err
		}
		defer conn.Close()

		mode := opts.WriteMode
		if mode == "" {
			mode = storage.WriteReplace
		}
		return conn.WriteTable(ctx, ep.Table, t, mode)
	}

	codec, err := encoding.Lookup(ep.Encoding)
	if err != nil {
		return err
	}

	f, err := os.Create(ep.Path)
	if err != nil {
		return errors.WrapIO(err, ep.Path)
	}
	// A failed write must not leave a partial output behind.
	fail := func(err error) error {
		f.Close()
		os.Remove(ep.Path)
		return err
	}

	if ep.Compression == compression.None {
		if err := codec.Write(f, t); err != nil {
			return fail(err)
		}
		if err := f.Close(); err != nil {
			return errors.WrapIO(err, ep.Path)
		}
		return nil
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: ep.Compression})
	if err != nil {
		return fail(err)
	}
	var buf bytes.Buffer
	if err := codec.Write(&buf, t); err != nil {
		return fail(err)
	}
	if err := comp.CompressStream(f, &buf); err != nil {
		return fail(errors.WrapIO(err, ep.Path))
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO(err, ep.Path)
	}
	return nil
}

// sampleStrings renders the first n rows as strings for content-based
// schema detection
func sampleStrings(t *table.Table, n int) []map[string]string {
	if n > t.NumRows() {
		n = t.NumRows()
	}
	samples := make([]map[string]string, 0, n)
	for _, row := range t.Rows[:n] {
		sample := make(map[string]string, len(t.Columns))
		for _, col := range t.Columns {
			v := row[col]
			if v == nil {
				sample[col] = ""
				continue
			}
			if s, ok := table.AsString(v); ok {
				sample[col] = s
			} else {
				sample[col] = fmt.Sprintf("%v", v)
			}
		}
		samples = append(samples, sample)
	}
	return samples
}
