// Package pgtest connects integration tests to the database named by
// the TEST_DATABASE environment variable. Tests skip when it is unset.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// ConnString returns the test database connection string, skipping the
// test when none is configured.
func ConnString(t testing.TB) string {
	connString := os.Getenv("TEST_DATABASE")
	if connString == "" {
		t.Skip("TEST_DATABASE not set")
	}
	return connString
}

// Pool creates a connection pool for testing and closes it on cleanup.
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, ConnString(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Connect creates a single database connection for testing.
func Connect(ctx context.Context, t testing.TB) *pgx.Conn {
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	require.NoError(t, err)

	t.Cleanup(func() {
		Close(t, conn)
	})

	return conn
}

// Close safely closes a database connection.
func Close(t testing.TB, conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Close(ctx))
}
