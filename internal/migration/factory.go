package migration

import (
	"errors"
	"fmt"

	appconfig "github.com/BaSui01/overseer/config"
)

// DSN renders the connection string golang-migrate expects for each
// dialect. For SQLite, name is the database file path.
func DSN(dialect Dialect, host string, port int, name, user, password, sslMode string) string {
	switch dialect {
	case DialectPostgres:
		if sslMode == "" {
			sslMode = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			user, password, host, port, name, sslMode)
	case DialectMySQL:
		// multiStatements 允许单个迁移文件携带多条语句。
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			user, password, host, port, name)
	case DialectSQLite:
		return fmt.Sprintf("file:%s?mode=rwc&_foreign_keys=on", name)
	default:
		return ""
	}
}

// FromConfig builds a Migrator from the full application config.
func FromConfig(cfg *appconfig.Config) (*Migrator, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	return FromDatabaseConfig(cfg.Database)
}

// FromDatabaseConfig builds a Migrator from the database section of the
// application config, deriving the DSN from its fields.
func FromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*Migrator, error) {
	dialect, err := ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := DSN(dialect, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	return New(Config{Dialect: dialect, DSN: dsn})
}

// FromURL builds a Migrator from an explicit driver name and DSN,
// bypassing the application config.
func FromURL(driver, dsn string) (*Migrator, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	return New(Config{Dialect: dialect, DSN: dsn})
}
