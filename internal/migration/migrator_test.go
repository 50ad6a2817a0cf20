package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // 注册纯 Go SQLite 驱动
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"POSTGRES", DialectPostgres, false},
		{"mysql", DialectMySQL, false},
		{"mariadb", DialectMySQL, false},
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@db:5432/overseer?sslmode=disable",
		DSN(DialectPostgres, "db", 5432, "overseer", "u", "p", "disable"))

	// Postgres 未指定时默认 require。
	assert.Equal(t,
		"postgres://u:p@db:5432/overseer?sslmode=require",
		DSN(DialectPostgres, "db", 5432, "overseer", "u", "p", ""))

	assert.Equal(t,
		"u:p@tcp(db:3306)/overseer?parseTime=true&multiStatements=true",
		DSN(DialectMySQL, "db", 3306, "overseer", "u", "p", ""))

	assert.Equal(t,
		"file:/var/lib/overseer.db?mode=rwc&_foreign_keys=on",
		DSN(DialectSQLite, "", 0, "/var/lib/overseer.db", "", "", ""))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Dialect: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported dialect")

	_, err = New(Config{Dialect: DialectSQLite})
	assert.ErrorContains(t, err, "DSN is empty")
}

func newSQLiteMigrator(t *testing.T) (*Migrator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overseer.db")
	m, err := New(Config{
		Dialect: DialectSQLite,
		DSN:     DSN(DialectSQLite, "", 0, path, "", "", ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, path
}

func TestApplyCreatesCheckpointSchema(t *testing.T) {
	m, path := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Apply(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	// 迁移后的表结构必须能容纳 checkpoint 存储层写入的行。
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(
		`INSERT INTO checkpoints (id, thread_id, sequence, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		"cp-1", "thread-a", int64(1), []byte(`{"machine_state":"done"}`), time.Now(),
	)
	require.NoError(t, err)

	// 同一 thread 的 sequence 唯一。
	_, err = db.Exec(
		`INSERT INTO checkpoints (id, thread_id, sequence, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		"cp-2", "thread-a", int64(1), []byte(`{}`), time.Now(),
	)
	assert.Error(t, err)
}

func TestPlanAndSummarize(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	plan, err := m.Plan(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, plan)
	for i := 1; i < len(plan); i++ {
		assert.Greater(t, plan[i].Version, plan[i-1].Version)
	}
	for _, s := range plan {
		assert.False(t, s.Applied)
	}

	require.NoError(t, m.Apply(ctx))

	sum, err := m.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum.Total, sum.Applied)
	assert.Zero(t, sum.Pending)
	assert.False(t, sum.Dirty)
}

func TestResetDropsSchema(t *testing.T) {
	m, path := newSQLiteMigrator(t)
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx))
	require.NoError(t, m.Reset(ctx))

	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO checkpoints (id, thread_id, sequence, state) VALUES ('x', 't', 1, x'00')`)
	assert.Error(t, err)
}

func TestCLIVersionAndStatus(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	cli := NewCLI(m)
	var out bytes.Buffer
	cli.SetOutput(&out)

	require.NoError(t, cli.Version(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.Apply(ctx))
	assert.Contains(t, out.String(), "current version: 1")

	out.Reset()
	require.NoError(t, cli.Status(ctx))
	assert.Contains(t, out.String(), "create_checkpoints")
	assert.Contains(t, out.String(), "applied")
	assert.Contains(t, out.String(), "0 pending")
}
