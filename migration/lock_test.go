package migration

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/GoCodeAlone/sqlschema/dialect"
)

func TestLocalLock_AcquireRelease(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		release, err := lock.Acquire(ctx, "test_lock")
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		release()
	}
}

func TestLocalLock_CancelledContext(t *testing.T) {
	lock := NewLocalLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lock.Acquire(ctx, "test_lock")
	if err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

func TestHashLockKey(t *testing.T) {
	tests := []struct {
		key1 string
		key2 string
		same bool
	}{
		{DefaultLockKey, DefaultLockKey, true},
		{"key_a", "key_b", false},
		{"", "", true},
	}

	for _, tt := range tests {
		h1 := hashLockKey(tt.key1)
		h2 := hashLockKey(tt.key2)
		if (h1 == h2) != tt.same {
			t.Errorf("hashLockKey(%q) == hashLockKey(%q): got %v, want %v", tt.key1, tt.key2, h1 == h2, tt.same)
		}
	}
}

func TestPostgresLock_AcquireRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	id := hashLockKey(DefaultLockKey)
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := NewPostgresLock(db).Acquire(context.Background(), DefaultLockKey)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLLock_AcquireRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).WithArgs(DefaultLockKey, 5).
		WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).WithArgs(DefaultLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	release, err := NewMySQLLock(db, 5*time.Second).Acquire(context.Background(), DefaultLockKey)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLLock_WaitSeconds(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		seconds int
	}{
		{0, -1},
		{200 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{3 * time.Second, 3},
	}
	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).WithArgs(DefaultLockKey, tt.seconds).
				WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
			mock.ExpectExec(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).WithArgs(DefaultLockKey).
				WillReturnResult(sqlmock.NewResult(0, 0))

			release, err := NewMySQLLock(db, tt.timeout).Acquire(context.Background(), DefaultLockKey)
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}
			release()
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestMySQLLock_Timeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(0))

	_, err = NewMySQLLock(db, time.Second).Acquire(context.Background(), DefaultLockKey)
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestNewLock(t *testing.T) {
	if l, err := NewLock(dialect.MySQL{}, nil, time.Second); err != nil {
		t.Errorf("mysql: %v", err)
	} else if _, ok := l.(*MySQLLock); !ok {
		t.Errorf("mysql: got %T", l)
	}
	if l, err := NewLock(dialect.Postgres{}, nil, 0); err != nil {
		t.Errorf("postgres: %v", err)
	} else if _, ok := l.(*PostgresLock); !ok {
		t.Errorf("postgres: got %T", l)
	}
}
