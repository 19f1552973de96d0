package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchema(t *testing.T) {
	for _, driver := range []string{DriverSQLite3, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "forms.db")

			d, err := Open(context.Background(), Config{Driver: driver, Path: path})
			require.NoError(t, err)
			defer d.Close()

			assert.Equal(t, SQLite, d.Dialect)

			for _, table := range []string{"forms", "submissions"} {
				var count int
				err := d.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
				if err != nil {
					t.Fatalf("Failed to query for table %s: %v", table, err)
				}
				if count != 1 {
					t.Errorf("Expected table %s to exist", table)
				}
			}

			info, err := os.Stat(path)
			require.NoError(t, err)
			if perm := info.Mode().Perm(); perm != 0600 {
				t.Errorf("Expected permissions 0600, got %o", perm)
			}
		})
	}
}

func TestForeignKeysEnabledOnEveryConnection(t *testing.T) {
	for _, driver := range []string{DriverSQLite3, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			d, err := Open(context.Background(), Config{Driver: driver, Path: filepath.Join(t.TempDir(), "fk.db")})
			require.NoError(t, err)
			defer d.Close()

			ctx := context.Background()
			conns := make([]interface{ Close() error }, 0, 3)
			for i := 0; i < 3; i++ {
				conn, err := d.Conn(ctx)
				require.NoError(t, err)
				conns = append(conns, conn)

				var on int
				require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
				assert.Equal(t, 1, on, "connection %d", i)
			}
			for _, c := range conns {
				c.Close()
			}
		})
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	d, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "twice.db")})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Migrate(context.Background()))
}

func TestOpenInMemory(t *testing.T) {
	d, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Exec(`INSERT INTO forms (form_id, form_name, config, hook, created_at, updated_at) VALUES ('a', 'A', '{}', '', 1, 1)`)
	require.NoError(t, err)

	var count int
	require.NoError(t, d.QueryRow("SELECT COUNT(*) FROM forms").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM forms WHERE form_id = ? AND id > ?"

	assert.Equal(t, q, (&DB{Dialect: SQLite}).Rebind(q))
	assert.Equal(t, q, (&DB{Dialect: MySQL}).Rebind(q))
	assert.Equal(t, "SELECT * FROM forms WHERE form_id = $1 AND id > $2", (&DB{Dialect: Postgres}).Rebind(q))
}

func TestSchemaPerDialect(t *testing.T) {
	for _, d := range []Dialect{SQLite, MySQL, Postgres} {
		stmts := Schema(d)
		require.NotEmpty(t, stmts, d)
		assert.Contains(t, stmts[0], "forms", d)
		assert.Contains(t, stmts[1], "ON DELETE CASCADE", d)
	}
}
