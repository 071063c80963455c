package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/clean"
	"github.com/ajitpratap0/tickstore/pkg/config"
	"github.com/ajitpratap0/tickstore/pkg/convert"
	"github.com/ajitpratap0/tickstore/pkg/encoding"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/metrics"
	"github.com/ajitpratap0/tickstore/pkg/observability"
	"github.com/ajitpratap0/tickstore/pkg/query"
	"github.com/ajitpratap0/tickstore/pkg/storage"
	"github.com/ajitpratap0/tickstore/pkg/table"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string
	var cfg *config.Config
	var shutdownTracing func(context.Context) error

	root := &cobra.Command{
		Use:   "tickstore",
		Short: "Tickstore - OHLCV time-series conversion and storage",
		Long: `Tickstore standardizes vendor OHLCV exports into a canonical schema,
cleans them, converts between table encodings, and stores them in an
embedded analytical database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.Config{
				Level:    cfg.Logging.Level,
				Encoding: cfg.Logging.Format,
			}); err != nil {
				return err
			}
			shutdownTracing, err = observability.InitTracing(cfg.Observability.EnableTracing)
			if err != nil {
				return err
			}
			if addr := cfg.Observability.MetricsAddress; addr != "" {
				go func() {
					if serveErr := http.ListenAndServe(addr, metrics.Handler()); serveErr != nil {
						logger.Warn("metrics endpoint stopped", zap.Error(serveErr))
					}
				}()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if shutdownTracing != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(ctx)
			}
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file (YAML)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Tickstore v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "encodings",
		Short: "List supported encodings",
		Run: func(cmd *cobra.Command, args []string) {
			for _, enc := range encoding.Encodings() {
				codec, _ := encoding.Lookup(enc)
				fmt.Printf("  %-24s %s\n", enc, codec.Extension())
			}
			fmt.Printf("  %-24s %s\n", encoding.EmbeddedTable, ".duckdb#table")
		},
	})

	root.AddCommand(newDetectCmd())
	root.AddCommand(newConvertCmd(&cfg))
	root.AddCommand(newBatchCmd(&cfg))
	root.AddCommand(newStoreCmd(&cfg))
	root.AddCommand(newLoadCmd(&cfg))
	root.AddCommand(newTablesCmd(&cfg))

	if err := root.ExecuteContext(signalContext()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext cancels on SIGINT/SIGTERM so batch runs stop between files
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func newDetectCmd() *cobra.Command {
	var srcEncoding string
	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Detect the vendor schema of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := convert.DetectFile(cmd.Context(), args[0], encoding.Encoding(srcEncoding))
			if err != nil {
				return err
			}
			return printJSON(mapping)
		},
	}
	cmd.Flags().StringVar(&srcEncoding, "source-encoding", "", "override source encoding detection")
	return cmd
}

// cleanFlags binds the shared cleaning flags and produces a clean.Config
func cleanFlags(cmd *cobra.Command, defaults func() clean.Config) func() clean.Config {
	var fill string
	var noDedup, keepEmptyColumns bool
	cmd.Flags().StringVar(&fill, "fill", "", "missing value policy: none, drop, forward_fill, backward_fill")
	cmd.Flags().BoolVar(&noDedup, "no-dedup", false, "keep duplicate (ticker, timestamp) rows")
	cmd.Flags().BoolVar(&keepEmptyColumns, "keep-empty-columns", false, "keep all-null passthrough columns")

	return func() clean.Config {
		c := defaults()
		if fill != "" {
			c.MissingValues = clean.MissingValuePolicy(fill)
		}
		if noDedup {
			c.DropDuplicates = false
		}
		if keepEmptyColumns {
			c.DropEmptyColumns = false
		}
		return c
	}
}

func newConvertCmd(cfg **config.Config) *cobra.Command {
	var srcEncoding, dstEncoding, mode string
	cmd := &cobra.Command{
		Use:   "convert <source> <destination>",
		Short: "Convert one file or table between encodings",
		Long: `Convert a source endpoint to a destination endpoint. Endpoints are file
paths or database table references of the form prices.duckdb#prices.

Example:
  tickstore convert vendor_export.csv prices.parquet
  tickstore convert prices.parquet prices.duckdb#aapl --mode replace`,
		Args: cobra.ExactArgs(2),
		RunE: nil,
	}
	cleanCfg := cleanFlags(cmd, func() clean.Config { return (*cfg).Clean })
	cmd.Flags().StringVar(&srcEncoding, "source-encoding", "", "override source encoding detection")
	cmd.Flags().StringVar(&dstEncoding, "dest-encoding", "", "override destination encoding detection")
	cmd.Flags().StringVar(&mode, "mode", "replace", "database write mode: append or replace")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		result, err := convert.Convert(cmd.Context(), args[0], args[1], convert.Options{
			SourceEncoding: encoding.Encoding(srcEncoding),
			DestEncoding:   encoding.Encoding(dstEncoding),
			Clean:          cleanCfg(),
			WriteMode:      storage.WriteMode(mode),
			Pool:           (*cfg).Database.Pool,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	return cmd
}

func newBatchCmd(cfg **config.Config) *cobra.Command {
	var srcEncoding, dstEncoding, outDir string
	cmd := &cobra.Command{
		Use:   "convert-batch <sources...>",
		Short: "Convert many files with a shared output column set",
		Long: `Convert several source files to one destination encoding. Outputs share
the union of all input columns so they can be loaded together. A failing
file is reported and skipped; the rest of the batch proceeds.`,
		Args: cobra.MinimumNArgs(1),
	}
	cleanCfg := cleanFlags(cmd, func() clean.Config { return (*cfg).Clean })
	cmd.Flags().StringVar(&srcEncoding, "source-encoding", "", "override source encoding detection")
	cmd.Flags().StringVar(&dstEncoding, "dest-encoding", "", "destination encoding (required)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory, or database path for embedded-database-table")
	_ = cmd.MarkFlagRequired("dest-encoding")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		batch, err := convert.ConvertBatch(cmd.Context(), args, outDir, convert.Options{
			SourceEncoding: encoding.Encoding(srcEncoding),
			DestEncoding:   encoding.Encoding(dstEncoding),
			Clean:          cleanCfg(),
			Pool:           (*cfg).Database.Pool,
		})
		if batch != nil {
			if printErr := printJSON(batch); printErr != nil {
				return printErr
			}
		}
		return err
	}
	return cmd
}

func newStoreCmd(cfg **config.Config) *cobra.Command {
	var tableName, mode, dbPath string
	cmd := &cobra.Command{
		Use:   "store <source>",
		Short: "Store a file into the configured database",
		Args:  cobra.ExactArgs(1),
	}
	cleanCfg := cleanFlags(cmd, func() clean.Config { return (*cfg).Clean })
	cmd.Flags().StringVarP(&tableName, "table", "t", "", "destination table name (required)")
	cmd.Flags().StringVar(&mode, "mode", "replace", "write mode: append or replace")
	cmd.Flags().StringVar(&dbPath, "db", "", "database file, defaults to the configured path")
	_ = cmd.MarkFlagRequired("table")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			dbPath = (*cfg).Database.Path
		}
		dest := dbPath + "#" + tableName
		result, err := convert.Convert(cmd.Context(), args[0], dest, convert.Options{
			DestEncoding: encoding.EmbeddedTable,
			Clean:        cleanCfg(),
			WriteMode:    storage.WriteMode(mode),
			Pool:         (*cfg).Database.Pool,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	return cmd
}

func newLoadCmd(cfg **config.Config) *cobra.Command {
	var tableName, out, from, to, dbPath string
	var tickers, columns []string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a stored table, optionally filtered, into a file",
		Long: `Read a table from the configured database and write it to a file in any
encoding, optionally narrowed to a ticker set and timestamp range.

Example:
  tickstore load --table prices --tickers AAPL,MSFT --from 2024-01-01 --out prices.csv`,
	}
	cmd.Flags().StringVarP(&tableName, "table", "t", "", "source table name (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (required)")
	cmd.Flags().StringSliceVar(&tickers, "tickers", nil, "restrict to these tickers")
	cmd.Flags().StringVar(&from, "from", "", "inclusive timestamp lower bound")
	cmd.Flags().StringVar(&to, "to", "", "inclusive timestamp upper bound")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "project these columns only")
	cmd.Flags().StringVar(&dbPath, "db", "", "database file, defaults to the configured path")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("out")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filter := &query.Filter{}
		if len(columns) > 0 {
			filter.Project(columns...)
		}
		if len(tickers) > 0 {
			values := make([]interface{}, len(tickers))
			for i, t := range tickers {
				values[i] = t
			}
			filter.WhereIn(table.FieldTicker, values...)
		}
		var fromBound, toBound interface{}
		if from != "" {
			fromBound = from
		}
		if to != "" {
			toBound = to
		}
		if fromBound != nil || toBound != nil {
			filter.WhereRange(table.FieldTimestamp, fromBound, toBound)
		}

		if dbPath == "" {
			dbPath = (*cfg).Database.Path
		}
		result, err := convert.Load(cmd.Context(), convert.LoadRequest{
			DatabasePath: dbPath,
			Table:        tableName,
			Filter:       filter,
			Destination:  out,
			Pool:         (*cfg).Database.Pool,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	return cmd
}

func newTablesCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := storage.New(storage.Config{
				Path: (*cfg).Database.Path,
				Pool: (*cfg).Database.Pool,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			names, err := conn.Tables(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	raw, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("failed to render output", zap.Error(err))
		return err
	}
	fmt.Println(string(raw))
	return nil
}
