package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // 注册纯 Go SQLite 驱动
)

//go:embed migrations/postgres/*.sql
var postgresFiles embed.FS

//go:embed migrations/mysql/*.sql
var mysqlFiles embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteFiles embed.FS

// Dialect selects the SQL flavor of the checkpoint schema.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a config driver string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", s)
	}
}

// dialectSpec ties a Dialect to its sql driver, its embedded migration
// files and the golang-migrate database driver constructor.
type dialectSpec struct {
	sqlDriver string
	files     fs.FS
	dir       string
	newDriver func(*sql.DB, string) (database.Driver, error)
}

var dialects = map[Dialect]dialectSpec{
	DialectPostgres: {
		sqlDriver: "postgres",
		files:     postgresFiles,
		dir:       "migrations/postgres",
		newDriver: func(db *sql.DB, table string) (database.Driver, error) {
			return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
		},
	},
	DialectMySQL: {
		sqlDriver: "mysql",
		files:     mysqlFiles,
		dir:       "migrations/mysql",
		newDriver: func(db *sql.DB, table string) (database.Driver, error) {
			return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
		},
	},
	DialectSQLite: {
		// modernc 纯 Go 驱动, 迁移无需 CGO。
		sqlDriver: "sqlite",
		files:     sqliteFiles,
		dir:       "migrations/sqlite",
		newDriver: func(db *sql.DB, table string) (database.Driver, error) {
			return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
		},
	},
}

// Config configures a Migrator.
type Config struct {
	// Dialect selects which embedded migration set runs.
	Dialect Dialect
	// DSN is the connection string in the dialect's native format.
	DSN string
	// Table is the version-tracking table. Defaults to schema_migrations.
	Table string
}

// Step is one schema migration in the embedded set.
type Step struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Summary condenses the schema state for status output and probes.
type Summary struct {
	Current uint
	Dirty   bool
	Total   int
	Applied int
	Pending int
}

// Migrator applies the embedded checkpoint-schema migrations through
// golang-migrate. It owns its database connection; Close releases it.
type Migrator struct {
	steps   []Step
	db      *sql.DB
	migrate *migrate.Migrate
}

// New opens a connection for cfg and prepares the migration engine.
func New(cfg Config) (*Migrator, error) {
	spec, ok := dialects[cfg.Dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect: %q", cfg.Dialect)
	}
	if cfg.DSN == "" {
		return nil, errors.New("migration DSN is empty")
	}
	table := cfg.Table
	if table == "" {
		table = "schema_migrations"
	}

	steps, err := loadSteps(spec)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(spec.sqlDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", spec.sqlDriver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", spec.sqlDriver, err)
	}

	dbDriver, err := spec.newDriver(db, table)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s migration driver: %w", cfg.Dialect, err)
	}
	src, err := iofs.New(spec.files, spec.dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	engine, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), dbDriver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init migration engine: %w", err)
	}

	return &Migrator{steps: steps, db: db, migrate: engine}, nil
}

// loadSteps reads the embedded *.up.sql names once. Filenames follow
// the NNNNNN_name.up.sql convention.
func loadSteps(spec dialectSpec) ([]Step, error) {
	entries, err := fs.ReadDir(spec.files, spec.dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	var steps []Step
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		steps = append(steps, Step{
			Version: uint(version),
			Name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// Apply runs every pending migration.
func (m *Migrator) Apply(ctx context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Rollback undoes the most recent migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// Reset rolls the schema all the way back to empty.
func (m *Migrator) Reset(ctx context.Context) error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("reset schema: %w", err)
	}
	return nil
}

// Goto migrates up or down until the schema sits at version.
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate to version %d: %w", version, err)
	}
	return nil
}

// Force overwrites the recorded version without running SQL. It exists
// to recover a dirty schema after a failed migration.
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Version reports the recorded schema version. A fresh database
// reports version 0.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Plan returns every embedded step annotated with whether the current
// database already applied it.
func (m *Migrator) Plan(ctx context.Context) ([]Step, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	plan := make([]Step, len(m.steps))
	for i, s := range m.steps {
		s.Applied = s.Version <= current
		s.Dirty = dirty && s.Version == current
		plan[i] = s
	}
	return plan, nil
}

// Summarize reduces Plan to counts.
func (m *Migrator) Summarize(ctx context.Context) (*Summary, error) {
	plan, err := m.Plan(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Total: len(plan)}
	for _, s := range plan {
		if s.Applied {
			sum.Applied++
			sum.Current = s.Version
		}
		if s.Dirty {
			sum.Dirty = true
		}
	}
	sum.Pending = sum.Total - sum.Applied
	return sum, nil
}

// Close releases the migration engine and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr, m.db.Close())
}
