package convert

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/encoding"
	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/metrics"
	"github.com/ajitpratap0/tickstore/pkg/observability"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// FileResult reports the outcome for one file in a batch
type FileResult struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination,omitempty"`
	Error       string  `json:"error,omitempty"`
	Skipped     bool    `json:"skipped,omitempty"`
	Result      *Result `json:"result,omitempty"`
}

// BatchResult aggregates a batch run. Columns is the union of output
// columns across all successfully converted files; every output carries
// exactly this column set.
type BatchResult struct {
	JobID     string       `json:"job_id"`
	Columns   []string     `json:"columns"`
	Files     []FileResult `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Canceled  bool         `json:"canceled,omitempty"`
}

// ConvertBatch converts a set of source files into destDir with a shared
// destination encoding. Outputs are aligned to the union of the inputs'
// columns so they can be concatenated or loaded together. One bad file
// fails alone; the rest of the batch proceeds. Cancellation is observed
// between files: already-written outputs stay, the remainder is reported
// as skipped.
func ConvertBatch(ctx context.Context, sources []string, destDir string, opts Options) (*BatchResult, error) {
	if opts.DestEncoding == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "batch conversion needs an explicit destination encoding")
	}
	if opts.DestEncoding != encoding.EmbeddedTable {
		if _, err := encoding.Lookup(opts.DestEncoding); err != nil {
			return nil, err
		}
	}

	batch := &BatchResult{
		JobID: uuid.NewString(),
		Files: make([]FileResult, len(sources)),
	}

	ctx, span := observability.Tracer().Start(ctx, "convert_batch",
		trace.WithAttributes(
			attribute.String("job_id", batch.JobID),
			attribute.Int("files", len(sources)),
			attribute.String("dest_encoding", string(opts.DestEncoding)),
		))
	defer span.End()

	log := logger.Get().With(zap.String("job_id", batch.JobID), zap.Int("files", len(sources)))
	log.Info("batch conversion started")

	// First pass: run every file through the pipeline, collecting the
	// cleaned tables so the column union is known before anything is
	// written.
	tables := make([]*table.Table, len(sources))
	canceledAt := -1
	for i, source := range sources {
		if err := ctx.Err(); err != nil {
			canceledAt = i
			break
		}

		batch.Files[i].Source = source
		src, err := ParseEndpoint(source, opts.SourceEncoding)
		if err != nil {
			batch.Files[i].Error = err.Error()
			continue
		}

		fileResult := &Result{JobID: batch.JobID, Source: source}
		cleaned, err := runPipeline(ctx, src, opts, fileResult, log.With(zap.String("source", source)))
		if err != nil {
			log.Warn("file failed, continuing batch", zap.String("source", source), zap.Error(err))
			batch.Files[i].Error = err.Error()
			continue
		}
		tables[i] = cleaned
		batch.Files[i].Result = fileResult
	}

	if canceledAt < 0 {
		batch.Columns = columnUnion(tables)
	}

	// Second pass: pad each table to the union and write it out.
	for i := range sources {
		if canceledAt >= 0 && i >= canceledAt {
			batch.Files[i].Source = sources[i]
			batch.Files[i].Skipped = true
			batch.Skipped++
			continue
		}
		if tables[i] == nil {
			batch.Failed++
			continue
		}
		if err := ctx.Err(); err != nil {
			batch.Files[i].Skipped = true
			batch.Files[i].Result = nil
			batch.Skipped++
			batch.Canceled = true
			continue
		}

		padToColumns(tables[i], batch.Columns)

		dest, err := destinationRef(sources[i], destDir, opts.DestEncoding)
		if err == nil {
			dst, epErr := ParseEndpoint(dest, opts.DestEncoding)
			if epErr != nil {
				err = epErr
			} else {
				err = writeEndpoint(ctx, dst, tables[i], opts)
			}
		}
		if err != nil {
			batch.Files[i].Error = err.Error()
			batch.Files[i].Result = nil
			batch.Failed++
			metrics.ConversionsTotal.WithLabelValues("error").Inc()
			continue
		}

		batch.Files[i].Destination = dest
		batch.Files[i].Result.Destination = dest
		batch.Files[i].Result.RowsWritten = tables[i].NumRows()
		batch.Succeeded++
		metrics.ConversionsTotal.WithLabelValues("success").Inc()
		metrics.RowsProcessed.Add(float64(batch.Files[i].Result.RowsRead))
	}

	if canceledAt >= 0 {
		batch.Canceled = true
		log.Warn("batch conversion canceled",
			zap.Int("succeeded", batch.Succeeded),
			zap.Int("skipped", batch.Skipped))
		return batch, errors.Wrap(ctx.Err(), errors.ErrorTypeCanceled, "batch conversion canceled")
	}

	log.Info("batch conversion finished",
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Strings("columns", batch.Columns))
	return batch, nil
}

// destinationRef derives the output reference for one source file.
// Database destinations get one table per file, named after the file stem.
func destinationRef(source, destDir string, enc encoding.Encoding) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	if enc == encoding.EmbeddedTable {
		return destDir + "#" + tableName(stem), nil
	}

	codec, err := encoding.Lookup(enc)
	if err != nil {
		return "", err
	}
	return filepath.Join(destDir, stem+codec.Extension()), nil
}

// tableName sanitizes a file stem into a table identifier
func tableName(stem string) string {
	var b strings.Builder
	for i, r := range stem {
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
	return strings.ToLower(b.String())
}

// columnUnion computes the shared output column set: canonical fields in
// schema order first, then passthrough columns in first-seen order
func columnUnion(tables []*table.Table) []string {
	present := make(map[string]bool)
	var passthrough []string

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, col := range t.Columns {
			if present[col] {
				continue
			}
			present[col] = true
			if !table.IsCanonical(col) {
				passthrough = append(passthrough, col)
			}
		}
	}

	var union []string
	for _, field := range table.CanonicalFields() {
		if present[field] {
			union = append(union, field)
		}
	}
	return append(union, passthrough...)
}

// padToColumns adds missing union columns as all-null and reorders
func padToColumns(t *table.Table, columns []string) {
	for _, col := range columns {
		if !t.HasColumn(col) {
			t.AddColumn(col, table.CanonicalType(col))
		}
	}
	_ = t.Reorder(columns) // columns is a superset by construction
}
