// Package tickstore provides a single-process ingestion, normalization and
// conversion layer for tabular financial time-series data.
//
// tickstore takes OHLCV data produced by mutually-incompatible vendor formats
// (generic CSV, bracket-annotated exports, vendor-prefixed column names,
// single-letter compact feeds), maps it into one canonical schema, and moves
// it between six on-disk representations:
//
//   - delimited-text (CSV)
//   - row-binary (Avro OCF)
//   - columnar-binary (Arrow IPC)
//   - columnar-compressed (Parquet)
//   - semi-structured-text (JSON lines)
//   - embedded-database-table (DuckDB)
//
// The pipeline is: raw file -> schema detection -> standardization ->
// optional cleaning -> canonical table -> re-encode or persist.
//
// # Architecture
//
// The codebase is organized into focused packages:
//
//   - pkg/table: canonical row/table model and field typing
//   - pkg/schema: vendor schema detection and standardization
//   - pkg/clean: deduplication, fill policies, column pruning
//   - pkg/encoding: codecs for the file-backed encodings
//   - pkg/convert: the N-way conversion matrix and batch mode
//   - pkg/storage: pooled DuckDB connector
//   - pkg/query: parameterized query builder
//   - pkg/compression: transparent output compression
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability:
//     cross-cutting infrastructure
//
// All transformation stages are pure per call; the connection pool is the
// only shared mutable state.
package tickstore
