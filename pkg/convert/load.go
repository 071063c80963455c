package convert

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/encoding"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/query"
	"github.com/ajitpratap0/tickstore/pkg/schema"
	"github.com/ajitpratap0/tickstore/pkg/storage"
)

// DetectFile decodes a source endpoint and reports its detected vendor
// schema mapping without converting anything.
func DetectFile(ctx context.Context, source string, override encoding.Encoding) (*schema.Mapping, error) {
	src, err := ParseEndpoint(source, override)
	if err != nil {
		return nil, err
	}

	raw, err := readEndpoint(ctx, src, Options{})
	if err != nil {
		return nil, err
	}

	return schema.Detect(raw.Columns, sampleStrings(raw, detectSampleSize))
}

// LoadRequest describes a filtered export from a stored table
type LoadRequest struct {
	DatabasePath string
	Table        string
	Filter       *query.Filter
	Destination  string
	DestEncoding encoding.Encoding
	Pool         storage.PoolConfig
}

// Load reads a stored table, optionally filtered, and writes it to a file
// endpoint. Stored tables are already canonical so the pipeline's detect
// and clean stages are skipped.
func Load(ctx context.Context, req LoadRequest) (*Result, error) {
	conn, err := storage.New(storage.Config{Path: req.DatabasePath, Pool: req.Pool})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	t, err := conn.ReadTable(ctx, req.Table, req.Filter)
	if err != nil {
		return nil, err
	}

	dst, err := ParseEndpoint(req.Destination, req.DestEncoding)
	if err != nil {
		return nil, err
	}
	if err := writeEndpoint(ctx, dst, t, Options{Pool: req.Pool}); err != nil {
		return nil, err
	}

	result := &Result{
		JobID:       uuid.NewString(),
		Source:      req.DatabasePath + "#" + req.Table,
		Destination: req.Destination,
		RowsRead:    t.NumRows(),
		RowsWritten: t.NumRows(),
	}
	logger.Get().Info("table exported",
		zap.String("table", req.Table),
		zap.String("destination", req.Destination),
		zap.Int("rows", t.NumRows()))
	return result, nil
}
