// Package storage persists canonical tables in an embedded DuckDB database
// behind a bounded connection pool.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/query"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

// WriteMode selects how WriteTable treats an existing table
type WriteMode string

const (
	// WriteAppend adds rows to the existing table, creating it if missing
	WriteAppend WriteMode = "append"
	// WriteReplace atomically swaps the table for the new contents
	WriteReplace WriteMode = "replace"
)

// Config configures the embedded database connector
type Config struct {
	// Path is the database file; empty means an in-memory database.
	Path string     `yaml:"path" json:"path"`
	Pool PoolConfig `yaml:"pool" json:"pool"`
}

// Connector reads and writes canonical tables in a DuckDB database. All
// statement execution goes through pooled connections; callers never touch
// raw connections directly.
type Connector struct {
	path   string
	db     *sql.DB
	pool   *Pool
	logger *zap.Logger
}

// New opens the database file (creating it if needed) and wraps it in a
// connection pool.
func New(cfg Config) (*Connector, error) {
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open database").
			WithDetail("path", cfg.Path)
	}

	return &Connector{
		path:   cfg.Path,
		db:     db,
		pool:   NewPool(db, cfg.Pool),
		logger: logger.Get().With(zap.String("component", "storage"), zap.String("path", cfg.Path)),
	}, nil
}

// Pool exposes the underlying connection pool
func (c *Connector) Pool() *Pool { return c.pool }

// Close releases all pooled connections and the database handle
func (c *Connector) Close() {
	c.pool.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Warn("failed to close database", zap.Error(err))
	}
}

// Execute runs a parameterized statement and returns the affected row count
func (c *Connector) Execute(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	entry, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(entry)

	res, err := entry.Conn().ExecContext(ctx, stmt, args...)
	if err != nil {
		entry.MarkUnhealthy()
		return 0, errors.Wrap(err, errors.ErrorTypeData, "statement execution failed")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil // not every statement kind reports a count
	}
	return affected, nil
}

// Query runs a parameterized query and materializes the result set as a
// canonical table.
func (c *Connector) Query(ctx context.Context, stmt string, args ...interface{}) (*table.Table, error) {
	entry, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(entry)

	rows, err := entry.Conn().QueryContext(ctx, stmt, args...)
	if err != nil {
		entry.MarkUnhealthy()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query execution failed")
	}
	defer rows.Close()

	return scanRows(rows)
}

// WriteTable stores a canonical table. Append mode creates the table on
// first use and adds rows; replace mode loads into a staging table and swaps
// it in transactionally so readers never observe a partial load.
func (c *Connector) WriteTable(ctx context.Context, name string, t *table.Table, mode WriteMode) error {
	if err := query.ValidateIdent(name); err != nil {
		return err
	}

	entry, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Release(entry)

	switch mode {
	case WriteReplace:
		return c.writeReplace(ctx, entry, name, t)
	case WriteAppend, "":
		return c.writeAppend(ctx, entry, name, t)
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown write mode %q", mode)
	}
}

func (c *Connector) writeAppend(ctx context.Context, entry *Entry, name string, t *table.Table) error {
	if err := c.createTable(ctx, entry, name, t, true); err != nil {
		return err
	}
	return c.insertRows(ctx, entry, name, t)
}

func (c *Connector) writeReplace(ctx context.Context, entry *Entry, name string, t *table.Table) error {
	staging := fmt.Sprintf("%s__staging_%s", name, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	if err := c.createTable(ctx, entry, staging, t, false); err != nil {
		return err
	}
	if err := c.insertRows(ctx, entry, staging, t); err != nil {
		entry.Conn().ExecContext(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(staging))
		return err
	}

	tx, err := entry.Conn().BeginTx(ctx, nil)
	if err != nil {
		entry.MarkUnhealthy()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to begin swap transaction")
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(name)); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to drop previous table")
	}
	if _, err := tx.ExecContext(ctx,
		"ALTER TABLE "+query.QuoteIdent(staging)+" RENAME TO "+query.QuoteIdent(name)); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to swap staging table")
	}
	if err := tx.Commit(); err != nil {
		entry.MarkUnhealthy()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to commit swap transaction")
	}

	c.logger.Info("replaced table",
		zap.String("table", name),
		zap.Int("rows", t.NumRows()))
	return nil
}

func (c *Connector) createTable(ctx context.Context, entry *Entry, name string, t *table.Table, ifNotExists bool) error {
	cols := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if err := query.ValidateIdent(col); err != nil {
			return err
		}
		cols = append(cols, query.QuoteIdent(col)+" "+sqlType(t.Types[col]))
	}

	stmt := "CREATE TABLE "
	if ifNotExists {
		stmt = "CREATE TABLE IF NOT EXISTS "
	}
	stmt += query.QuoteIdent(name) + " (" + strings.Join(cols, ", ") + ")"

	if _, err := entry.Conn().ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to create table").
			WithDetail("table", name)
	}
	return nil
}

func (c *Connector) insertRows(ctx context.Context, entry *Entry, name string, t *table.Table) error {
	if t.NumRows() == 0 {
		return nil
	}

	quoted := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		quoted[i] = query.QuoteIdent(col)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	stmt := "INSERT INTO " + query.QuoteIdent(name) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + placeholders + ")"

	tx, err := entry.Conn().BeginTx(ctx, nil)
	if err != nil {
		entry.MarkUnhealthy()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to begin insert transaction")
	}

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to prepare insert")
	}
	defer prepared.Close()

	args := make([]interface{}, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			args[i] = bindValue(row[col])
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.ErrorTypeData, "failed to insert row").
				WithDetail("table", name)
		}
	}

	if err := tx.Commit(); err != nil {
		entry.MarkUnhealthy()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to commit insert transaction")
	}
	return nil
}

// ReadTable loads a stored table, optionally narrowed by a filter. Filter
// columns are validated against the table's actual column set.
func (c *Connector) ReadTable(ctx context.Context, name string, f *query.Filter) (*table.Table, error) {
	if err := query.ValidateIdent(name); err != nil {
		return nil, err
	}

	exists, err := c.tableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Newf(errors.ErrorTypeTableNotFound, "table %q does not exist", name)
	}

	columns, err := c.tableColumns(ctx, name)
	if err != nil {
		return nil, err
	}

	stmt, args, err := query.Build(name, f, columns)
	if err != nil {
		return nil, err
	}

	return c.Query(ctx, stmt, args...)
}

// DropTable removes a stored table; dropping a missing table is not an error
func (c *Connector) DropTable(ctx context.Context, name string) error {
	if err := query.ValidateIdent(name); err != nil {
		return err
	}
	_, err := c.Execute(ctx, "DROP TABLE IF EXISTS "+query.QuoteIdent(name))
	return err
}

// Tables lists the stored table names, staging leftovers excluded
func (c *Connector) Tables(ctx context.Context) ([]string, error) {
	t, err := c.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, t.NumRows())
	for _, row := range t.Rows {
		name, _ := table.AsString(row["table_name"])
		if strings.Contains(name, "__staging_") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (c *Connector) tableExists(ctx context.Context, name string) (bool, error) {
	t, err := c.Query(ctx,
		"SELECT count(*) AS n FROM information_schema.tables WHERE table_schema = 'main' AND table_name = ?", name)
	if err != nil {
		return false, err
	}
	if t.NumRows() == 0 {
		return false, nil
	}
	n, _ := table.AsInt(t.Rows[0]["n"])
	return n > 0, nil
}

// tableColumns returns the column names in table order
func (c *Connector) tableColumns(ctx context.Context, name string) ([]string, error) {
	t, err := c.Query(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position", name)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, t.NumRows())
	for _, row := range t.Rows {
		col, _ := table.AsString(row["column_name"])
		columns = append(columns, col)
	}
	return columns, nil
}

// sqlType maps a canonical field type to its DuckDB column type
func sqlType(ft table.FieldType) string {
	switch ft {
	case table.FieldTypeTimestamp:
		return "TIMESTAMP"
	case table.FieldTypeFloat:
		return "DOUBLE"
	case table.FieldTypeInt:
		return "BIGINT"
	default:
		return "VARCHAR"
	}
}

// bindValue normalizes a cell for parameter binding
func bindValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC()
	default:
		return val
	}
}

// scanRows materializes a result set into a canonical table
func scanRows(rows *sql.Rows) (*table.Table, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read result columns")
	}

	t := table.New(nil)
	for _, ct := range colTypes {
		t.AddColumn(ct.Name(), fieldTypeFor(ct.DatabaseTypeName()))
	}

	values := make([]interface{}, len(colTypes))
	ptrs := make([]interface{}, len(colTypes))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan result row")
		}
		row := make(table.Row, len(colTypes))
		for i, ct := range colTypes {
			row[ct.Name()] = scannedValue(values[i])
		}
		t.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "result iteration failed")
	}

	return t, nil
}

// fieldTypeFor maps a DuckDB column type name to a canonical field type
func fieldTypeFor(dbType string) table.FieldType {
	switch strings.ToUpper(dbType) {
	case "TIMESTAMP", "TIMESTAMPTZ", "DATE", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return table.FieldTypeTimestamp
	case "DOUBLE", "FLOAT", "REAL", "DECIMAL":
		return table.FieldTypeFloat
	case "BIGINT", "INTEGER", "SMALLINT", "TINYINT", "HUGEINT",
		"UBIGINT", "UINTEGER", "USMALLINT", "UTINYINT":
		return table.FieldTypeInt
	default:
		return table.FieldTypeString
	}
}

// scannedValue normalizes driver values into canonical cell types
func scannedValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
