package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/schema"
	"github.com/GoCodeAlone/sqlschema/tracing"
)

// VersionKey is the bookkeeping row that holds the applied schema version.
const VersionKey = "schema_version"

var bookkeeping = func() schema.Table {
	t, err := schema.ParseTable(schema.BookkeepingTable, schema.BookkeepingSchema)
	if err != nil {
		panic(err)
	}
	return *t
}()

// Hook runs inside the update transaction, before or after the structural
// changes. Returning ErrMigrationVetoed aborts the run without an error.
type Hook func(ctx context.Context, storedVersion float64, tx *sql.Tx) error

// State classifies the stored version against a declaration.
type State int

const (
	StateUninitialized State = iota
	StateStale
	StateCurrent
)

func (s State) String() string {
	switch s {
	case StateStale:
		return "stale"
	case StateCurrent:
		return "current"
	}
	return "uninitialized"
}

// Status is the stored version of a database compared with a declaration.
type Status struct {
	State    State
	Stored   float64
	Declared float64
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records runs and statements on m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLock serializes updates under key. Without it UpdateSchema takes no
// lock and concurrent callers must coordinate themselves.
func WithLock(l DistributedLock, key string) Option {
	return func(r *Runner) {
		r.lock = l
		r.lockKey = key
		if key == "" {
			r.lockKey = DefaultLockKey
		}
	}
}

// WithTracerProvider sets the provider used for update spans. The default is
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tracing.NewSchemaTracer(tp) }
}

// RunOption configures one UpdateSchema call.
type RunOption func(*runConfig)

type runConfig struct {
	pre  Hook
	post Hook
}

// WithPreMigrate runs h after the transaction opens and before any DDL.
func WithPreMigrate(h Hook) RunOption {
	return func(c *runConfig) { c.pre = h }
}

// WithPostMigrate runs h after all DDL and before the version is recorded.
func WithPostMigrate(h Hook) RunOption {
	return func(c *runConfig) { c.post = h }
}

// Runner converges a database to a schema declaration.
type Runner struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  *slog.Logger
	metrics *Metrics
	lock    DistributedLock
	lockKey string
	tracer  *tracing.SchemaTracer
}

// NewRunner creates a Runner for the named dialect. An unknown dialect yields
// a *schema.ConfigError.
func NewRunner(db *sql.DB, dialectName string, opts ...Option) (*Runner, error) {
	d, err := dialect.Lookup(dialectName)
	if err != nil {
		return nil, err
	}
	return NewRunnerWithDialect(db, d, opts...), nil
}

// NewRunnerWithDialect creates a Runner for a caller-supplied dialect.
func NewRunnerWithDialect(db *sql.DB, d dialect.Dialect, opts ...Option) *Runner {
	r := &Runner{
		db:      db,
		dialect: d,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.tracer == nil {
		r.tracer = tracing.NewSchemaTracer(nil)
	}
	return r
}

// Dialect returns the runner's dialect.
func (r *Runner) Dialect() dialect.Dialect { return r.dialect }

// UpdateSchema converges the database to decl if the stored version is older
// than decl.Version. It reports true when the database is current afterwards,
// and false with a nil error when a hook vetoed the run.
//
// All DDL, both hooks and the version write share one transaction on one
// connection. MySQL commits DDL implicitly, so there a failed run may leave
// earlier statements applied; the version row is only written on success and
// the next run resumes from the live state.
func (r *Runner) UpdateSchema(ctx context.Context, decl *schema.Declaration, opts ...RunOption) (ok bool, err error) {
	if decl == nil {
		return true, nil
	}
	if err := decl.Validate(); err != nil {
		return false, err
	}
	var rc runConfig
	for _, o := range opts {
		o(&rc)
	}

	start := time.Now()
	logger := r.logger.With("run_id", uuid.NewString(), "dialect", r.dialect.Name())
	ctx, span := r.tracer.StartUpdate(ctx, r.dialect.Name(), decl.Version)
	result := ResultFailed
	defer func() {
		r.metrics.observeRun(r.dialect.Name(), result, time.Since(start))
		span.SetAttributes(attribute.String("sqlschema.result", result))
		if err != nil {
			tracing.RecordError(span, err)
		} else {
			tracing.SetSuccess(span)
		}
		span.End()
	}()

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, r.lockKey)
		if err != nil {
			return false, fmt.Errorf("acquire schema lock: %w", err)
		}
		defer release()
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// Read outside the transaction: on PostgreSQL a failed query, such as one
	// against a missing bookkeeping table, would abort the transaction.
	stored, _ := r.readVersion(ctx, conn, logger)
	span.SetAttributes(attribute.Float64("sqlschema.version.stored", stored))
	if stored >= decl.Version {
		logger.Info("schema up to date", "version", stored)
		result = ResultCurrent
		return true, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := callHook(ctx, "pre-migrate", rc.pre, stored, tx); err != nil {
		if errors.Is(err, ErrMigrationVetoed) {
			logger.Warn("schema update vetoed", "hook", "pre-migrate", "stored", stored)
			result = ResultVetoed
			return false, nil
		}
		return false, err
	}

	logger.Info("updating schema", "from", stored, "to", decl.Version)
	total := 0
	for _, t := range r.tables(decl) {
		n, err := r.applyTable(ctx, tx, t, logger)
		total += n
		if err != nil {
			return false, err
		}
	}

	if err := callHook(ctx, "post-migrate", rc.post, stored, tx); err != nil {
		if errors.Is(err, ErrMigrationVetoed) {
			logger.Warn("schema update vetoed", "hook", "post-migrate", "stored", stored)
			result = ResultVetoed
			return false, nil
		}
		return false, err
	}

	if _, err := tx.ExecContext(ctx, r.dialect.UpsertVersionSQL(), VersionKey, FormatVersion(decl.Version)); err != nil {
		return false, fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit schema update: %w", err)
	}
	committed = true

	logger.Info("schema updated", "from", stored, "to", decl.Version, "statements", total,
		"elapsed", time.Since(start))
	result = ResultApplied
	return true, nil
}

// Plan returns the statements that would converge the live schema to decl,
// regardless of the stored version. Nothing is executed.
func (r *Runner) Plan(ctx context.Context, decl *schema.Declaration) ([]Statement, error) {
	if decl == nil {
		return nil, nil
	}
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	var out []Statement
	for _, t := range r.tables(decl) {
		stmts, err := r.planTable(ctx, r.db, t)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// Status compares the stored version with decl.Version.
func (r *Runner) Status(ctx context.Context, decl *schema.Declaration) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	st := Status{Declared: decl.Version}
	stored, found := r.readVersion(ctx, r.db, r.logger)
	st.Stored = stored
	switch {
	case !found:
		st.State = StateUninitialized
	case stored >= decl.Version:
		st.State = StateCurrent
	default:
		st.State = StateStale
	}
	return st, nil
}

func (r *Runner) tables(decl *schema.Declaration) []schema.Table {
	return append(slices.Clone(decl.Tables), bookkeeping)
}

func (r *Runner) planTable(ctx context.Context, q dialect.Querier, t schema.Table) ([]Statement, error) {
	cols, err := r.dialect.ReadColumns(ctx, q, t.Name)
	if err != nil {
		return nil, err
	}
	idx, err := r.dialect.ReadIndexes(ctx, q, t.Name)
	if err != nil {
		return nil, err
	}
	return Generate(r.dialect, DiffTable(r.dialect, t, cols, idx)), nil
}

func (r *Runner) applyTable(ctx context.Context, tx *sql.Tx, t schema.Table, logger *slog.Logger) (int, error) {
	ctx, span := r.tracer.StartTable(ctx, t.Name)
	defer span.End()

	stmts, err := r.planTable(ctx, tx, t)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("sqlschema.statements", len(stmts)))

	for i, s := range stmts {
		logger.Debug("executing DDL", "table", s.Table, "kind", s.Kind, "sql", s.SQL)
		if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
			ddlErr := &DDLError{Table: s.Table, SQL: s.SQL, Code: r.dialect.ErrorCode(err), Err: err}
			tracing.RecordError(span, ddlErr)
			return i, ddlErr
		}
		r.metrics.observeStatement(r.dialect.Name(), s)
	}
	return len(stmts), nil
}

func callHook(ctx context.Context, name string, h Hook, stored float64, tx *sql.Tx) error {
	if h == nil {
		return nil
	}
	if err := h(ctx, stored, tx); err != nil {
		if errors.Is(err, ErrMigrationVetoed) {
			return err
		}
		return fmt.Errorf("%s hook: %w", name, err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readVersion returns the stored version and whether one was found. A
// missing table, a missing row or an unparsable value all read as 0.
func (r *Runner) readVersion(ctx context.Context, q rowQuerier, logger *slog.Logger) (float64, bool) {
	var raw sql.NullString
	if err := q.QueryRowContext(ctx, r.dialect.ReadVersionSQL(), VersionKey).Scan(&raw); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Debug("schema version unreadable", "error", err)
		}
		return 0, false
	}
	v, err := ParseVersion(raw.String)
	if !raw.Valid || err != nil {
		logger.Warn("schema version malformed", "value", raw.String)
		return 0, false
	}
	return v, true
}

// FormatVersion renders a version the way it is stored.
func FormatVersion(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseVersion parses a stored version.
func ParseVersion(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
