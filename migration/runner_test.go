package migration

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/schema"
)

var (
	columnHeader = []string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_KEY", "COLUMN_DEFAULT", "EXTRA"}
	indexHeader  = []string{"INDEX_NAME", "NON_UNIQUE", "COLUMN_NAME"}
)

func newMockRunner(t *testing.T, opts ...Option) (*Runner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	r, err := NewRunner(db, "mysql", opts...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r, mock
}

func teamsDeclaration(t *testing.T, version float64) *schema.Declaration {
	t.Helper()
	decl := schema.NewDeclaration(version)
	err := decl.AddTable("teams", `
		id_team I NOTNULL DEFAULT 0,
		name C(32),
		points I,
		INDEX PRIMARY (id_team)
	`)
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	return decl
}

func expectVersion(mock sqlmock.Sqlmock, value any) {
	q := mock.ExpectQuery(regexp.QuoteMeta(dialect.MySQL{}.ReadVersionSQL())).WithArgs(VersionKey)
	switch v := value.(type) {
	case error:
		q.WillReturnError(v)
	case nil:
		q.WillReturnRows(sqlmock.NewRows([]string{"value"}))
	default:
		q.WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(v))
	}
}

func expectAbsentTable(mock sqlmock.Sqlmock, table string) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).WithArgs(table).
		WillReturnRows(sqlmock.NewRows(columnHeader))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.STATISTICS")).WithArgs(table).
		WillReturnRows(sqlmock.NewRows(indexHeader))
}

func expectLiveBookkeeping(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).WithArgs(schema.BookkeepingTable).
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("name", "varchar(64)", "NO", "PRI", nil, "").
			AddRow("value", "varchar(64)", "YES", "", nil, ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.STATISTICS")).WithArgs(schema.BookkeepingTable).
		WillReturnRows(sqlmock.NewRows(indexHeader).AddRow("PRIMARY", 0, "name"))
}

func expectExec(mock sqlmock.Sqlmock, sql string) {
	mock.ExpectExec(regexp.QuoteMeta(sql)).WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectFreshTeams(mock sqlmock.Sqlmock) {
	expectAbsentTable(mock, "teams")
	expectExec(mock, "CREATE TABLE `teams` (`id_team` INT NOT NULL DEFAULT '0', `name` VARCHAR(32), `points` INT)")
	expectExec(mock, "ALTER TABLE `teams` ADD PRIMARY KEY (`id_team`)")
	expectAbsentTable(mock, schema.BookkeepingTable)
	expectExec(mock, "CREATE TABLE `cfg_dbase` (`name` VARCHAR(64), `value` VARCHAR(64))")
	expectExec(mock, "ALTER TABLE `cfg_dbase` ADD PRIMARY KEY (`name`)")
}

func TestNewRunner_UnsupportedDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	_, err = NewRunner(db, "oracle")
	if !errors.Is(err, dialect.ErrUnsupportedDialect) {
		t.Fatalf("expected ErrUnsupportedDialect, got %v", err)
	}
	var ce *schema.ConfigError
	if !errors.As(err, &ce) || ce.Value != "oracle" {
		t.Errorf("expected *schema.ConfigError for oracle, got %v", err)
	}
}

func TestUpdateSchema_FirstRunCreatesTables(t *testing.T) {
	metrics := NewMetrics()
	r, mock := newMockRunner(t, WithMetrics(metrics), WithLogger(slog.Default()))
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, errors.New("Table 'app.cfg_dbase' doesn't exist"))
	mock.ExpectBegin()
	expectFreshTeams(mock)
	mock.ExpectExec(regexp.QuoteMeta("REPLACE INTO `cfg_dbase` (`name`, `value`) VALUES (?, ?)")).
		WithArgs(VersionKey, "1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ok, err := r.UpdateSchema(context.Background(), decl)
	if err != nil || !ok {
		t.Fatalf("UpdateSchema = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("mysql", ResultApplied)); got != 1 {
		t.Errorf("applied runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.statements.WithLabelValues("mysql", "teams", string(KindCreateTable))); got != 1 {
		t.Errorf("teams create_table statements = %v, want 1", got)
	}
}

func TestUpdateSchema_SecondRunIsNoop(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, "1")

	ok, err := r.UpdateSchema(context.Background(), decl)
	if err != nil || !ok {
		t.Fatalf("UpdateSchema = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_NewerStoredVersionIsNoop(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, "1.5")

	ok, err := r.UpdateSchema(context.Background(), decl)
	if err != nil || !ok {
		t.Fatalf("UpdateSchema = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_ConvergedTableEmitsNothing(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 2)

	expectVersion(mock, "1")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).WithArgs("teams").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("id_team", "int(11)", "NO", "PRI", "0", "").
			AddRow("name", "varchar(32)", "YES", "", nil, "").
			AddRow("points", "int(11)", "YES", "", nil, ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.STATISTICS")).WithArgs("teams").
		WillReturnRows(sqlmock.NewRows(indexHeader).AddRow("PRIMARY", 0, "id_team"))
	expectLiveBookkeeping(mock)
	mock.ExpectExec(regexp.QuoteMeta("REPLACE INTO `cfg_dbase`")).
		WithArgs(VersionKey, "2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ok, err := r.UpdateSchema(context.Background(), decl)
	if err != nil || !ok {
		t.Fatalf("UpdateSchema = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_PreHookVeto(t *testing.T) {
	metrics := NewMetrics()
	r, mock := newMockRunner(t, WithMetrics(metrics))
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	var sawTx bool
	veto := func(_ context.Context, stored float64, tx *sql.Tx) error {
		sawTx = tx != nil
		if stored != 0 {
			t.Errorf("stored version = %v, want 0", stored)
		}
		return ErrMigrationVetoed
	}

	ok, err := r.UpdateSchema(context.Background(), decl, WithPreMigrate(veto))
	if err != nil {
		t.Fatalf("veto should not be an error, got %v", err)
	}
	if ok {
		t.Error("expected false after veto")
	}
	if !sawTx {
		t.Error("hook did not receive the transaction")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("mysql", ResultVetoed)); got != 1 {
		t.Errorf("vetoed runs = %v, want 1", got)
	}
}

func TestUpdateSchema_PostHookVetoRollsBack(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, nil)
	mock.ExpectBegin()
	expectFreshTeams(mock)
	mock.ExpectRollback()

	post := func(context.Context, float64, *sql.Tx) error { return ErrMigrationVetoed }
	ok, err := r.UpdateSchema(context.Background(), decl, WithPostMigrate(post))
	if err != nil || ok {
		t.Fatalf("UpdateSchema = %v, %v; want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_HookErrorPropagates(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("backfill failed")
	pre := func(context.Context, float64, *sql.Tx) error { return boom }
	ok, err := r.UpdateSchema(context.Background(), decl, WithPreMigrate(pre))
	if ok || !errors.Is(err, boom) {
		t.Fatalf("UpdateSchema = %v, %v; want false, %v", ok, err, boom)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_HooksShareTransaction(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 2)

	expectVersion(mock, "1")
	mock.ExpectBegin()
	expectExec(mock, "UPDATE legacy SET migrated = 1")
	expectFreshTeams(mock)
	expectExec(mock, "INSERT INTO teams (id_team, name) VALUES (1, 'core')")
	mock.ExpectExec(regexp.QuoteMeta("REPLACE INTO `cfg_dbase`")).
		WithArgs(VersionKey, "2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var calls []string
	pre := func(ctx context.Context, stored float64, tx *sql.Tx) error {
		calls = append(calls, "pre")
		if stored != 1 {
			t.Errorf("pre hook stored = %v, want 1", stored)
		}
		_, err := tx.ExecContext(ctx, "UPDATE legacy SET migrated = 1")
		return err
	}
	post := func(ctx context.Context, stored float64, tx *sql.Tx) error {
		calls = append(calls, "post")
		_, err := tx.ExecContext(ctx, "INSERT INTO teams (id_team, name) VALUES (1, 'core')")
		return err
	}

	ok, err := r.UpdateSchema(context.Background(), decl, WithPreMigrate(pre), WithPostMigrate(post))
	if err != nil || !ok {
		t.Fatalf("UpdateSchema = %v, %v", ok, err)
	}
	if diff := cmp.Diff([]string{"pre", "post"}, calls); diff != "" {
		t.Errorf("hook calls mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_DDLErrorCarriesCode(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, nil)
	mock.ExpectBegin()
	expectAbsentTable(mock, "teams")
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE `teams`")).
		WillReturnError(&mysql.MySQLError{Number: 1050, Message: "Table 'teams' already exists"})
	mock.ExpectRollback()

	ok, err := r.UpdateSchema(context.Background(), decl)
	if ok {
		t.Error("expected failure")
	}
	var ddlErr *DDLError
	if !errors.As(err, &ddlErr) {
		t.Fatalf("expected *DDLError, got %T: %v", err, err)
	}
	if ddlErr.Table != "teams" || ddlErr.Code != "1050" {
		t.Errorf("unexpected DDLError: %+v", ddlErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateSchema_IntrospectionErrorPropagates(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, nil)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := r.UpdateSchema(context.Background(), decl)
	var ie *dialect.IntrospectionError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *dialect.IntrospectionError, got %T: %v", err, err)
	}
}

func TestUpdateSchema_MalformedVersionReadsAsZero(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, "not-a-number")
	mock.ExpectBegin()
	mock.ExpectRollback()

	stored := -1.0
	pre := func(_ context.Context, s float64, _ *sql.Tx) error {
		stored = s
		return ErrMigrationVetoed
	}
	if _, err := r.UpdateSchema(context.Background(), decl, WithPreMigrate(pre)); err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}
	if stored != 0 {
		t.Errorf("stored = %v, want 0", stored)
	}
}

func TestUpdateSchema_RejectsReservedTable(t *testing.T) {
	r, _ := newMockRunner(t)
	decl := &schema.Declaration{Version: 1, Tables: []schema.Table{{Name: schema.BookkeepingTable}}}

	_, err := r.UpdateSchema(context.Background(), decl)
	if !errors.Is(err, schema.ErrReservedTable) {
		t.Fatalf("expected ErrReservedTable, got %v", err)
	}
}

func TestUpdateSchema_NilDeclaration(t *testing.T) {
	r, _ := newMockRunner(t)
	ok, err := r.UpdateSchema(context.Background(), nil)
	if err != nil || !ok {
		t.Fatalf("UpdateSchema(nil) = %v, %v; want true, nil", ok, err)
	}
}

func TestUpdateSchema_WithLock(t *testing.T) {
	lock := NewLocalLock()
	r, mock := newMockRunner(t, WithLock(lock, ""))
	decl := teamsDeclaration(t, 1)

	expectVersion(mock, "1")
	if _, err := r.UpdateSchema(context.Background(), decl); err != nil {
		t.Fatalf("UpdateSchema: %v", err)
	}

	// The lock must have been released.
	release, err := lock.Acquire(context.Background(), DefaultLockKey)
	if err != nil {
		t.Fatalf("acquire after run: %v", err)
	}
	release()
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		stored any
		want   Status
	}{
		{"no row", nil, Status{State: StateUninitialized, Declared: 2}},
		{"missing table", errors.New("no such table"), Status{State: StateUninitialized, Declared: 2}},
		{"older", "1.5", Status{State: StateStale, Stored: 1.5, Declared: 2}},
		{"equal", "2", Status{State: StateCurrent, Stored: 2, Declared: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRunner(t)
			expectVersion(mock, tt.stored)

			got, err := r.Status(context.Background(), teamsDeclaration(t, 2))
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlan_ReportsPendingStatements(t *testing.T) {
	r, mock := newMockRunner(t)
	decl := teamsDeclaration(t, 1)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.COLUMNS")).WithArgs("teams").
		WillReturnRows(sqlmock.NewRows(columnHeader).
			AddRow("id_team", "int(11)", "NO", "PRI", "0", "").
			AddRow("points", "int(11)", "YES", "", nil, ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.STATISTICS")).WithArgs("teams").
		WillReturnRows(sqlmock.NewRows(indexHeader).AddRow("PRIMARY", 0, "id_team"))
	expectLiveBookkeeping(mock)

	stmts, err := r.Plan(context.Background(), decl)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []Statement{{
		Table: "teams",
		Kind:  KindAddColumn,
		SQL:   "ALTER TABLE `teams` ADD COLUMN `name` VARCHAR(32) AFTER `id_team`",
	}}
	if diff := cmp.Diff(want, stmts); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestVersionFormatting(t *testing.T) {
	for _, v := range []float64{0, 1, 1.5, 20240101.2} {
		s := FormatVersion(v)
		got, err := ParseVersion(s)
		if err != nil || got != v {
			t.Errorf("ParseVersion(FormatVersion(%v)) = %v, %v", v, got, err)
		}
	}
	if FormatVersion(3) != "3" {
		t.Errorf("FormatVersion(3) = %q, want \"3\"", FormatVersion(3))
	}
}
