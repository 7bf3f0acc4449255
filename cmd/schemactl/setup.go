package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/GoCodeAlone/sqlschema/config"
	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/migration"
	"github.com/GoCodeAlone/sqlschema/schema"
	"github.com/GoCodeAlone/sqlschema/tracing"
)

// Swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	openDB           = sql.Open
)

// connFlags are the flags shared by commands that talk to a database.
type connFlags struct {
	config  *string
	dialect *string
	dsn     *string
	schema  *string
}

func addConnFlags(fs *flag.FlagSet) *connFlags {
	return &connFlags{
		config:  fs.String("config", "", "Path to schemactl YAML config"),
		dialect: fs.String("dialect", "", "Database dialect: mysql or postgres (overrides config)"),
		dsn:     fs.String("dsn", "", "Database DSN (overrides config and "+config.EnvDSN+")"),
		schema:  fs.String("schema", "", "Path to declaration YAML (overrides config)"),
	}
}

// load resolves the effective config: file, then environment, then flags.
func (f *connFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if *f.config != "" {
		loaded, err := config.LoadFromFile(*f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}
	if *f.dialect != "" {
		cfg.Dialect = *f.dialect
	}
	if *f.dsn != "" {
		cfg.DSN = *f.dsn
	}
	if *f.schema != "" {
		cfg.Schema = *f.schema
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// driverName maps a dialect to the database/sql driver registered for it.
func driverName(d dialect.Dialect) string {
	if d.Name() == "postgres" {
		return "pgx"
	}
	return "mysql"
}

// session bundles what a command needs to run against a database.
type session struct {
	cfg     *config.Config
	db      *sql.DB
	runner  *migration.Runner
	logger  *slog.Logger
	metrics *migration.Metrics
}

func (s *session) Close() error { return s.db.Close() }

func openSession(cfg *config.Config) (*session, error) {
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return nil, err
	}
	d, err := dialect.Lookup(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := openDB(driverName(d), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	metrics := migration.NewMetrics()
	opts := []migration.Option{
		migration.WithLogger(logger),
		migration.WithMetrics(metrics),
	}
	if cfg.Lock.Enabled {
		lock, err := migration.NewLock(d, db, cfg.Lock.Timeout)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		opts = append(opts, migration.WithLock(lock, cfg.Lock.Key))
	}

	return &session{
		cfg:     cfg,
		db:      db,
		runner:  migration.NewRunnerWithDialect(db, d, opts...),
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (s *session) declaration() (*schema.Declaration, error) {
	return config.LoadDeclaration(s.cfg.Schema)
}

// startTracing installs the OTLP exporter when an endpoint is configured and
// returns its shutdown function.
func startTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	if !cfg.Tracing.Enabled() {
		return func() {}, nil
	}
	p, err := tracing.NewProvider(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	}, nil
}
