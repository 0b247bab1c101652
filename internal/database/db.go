package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// Dialect names the SQL flavour behind a *sql.DB. Repositories consult it
// for the few statements MySQL and SQLite spell differently.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ForUpdate returns the row-lock suffix for a SELECT. SQLite serializes
// writers on the whole database, so it gets none.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// Connect opens the store named by driver ("mysql" or "sqlite").
func Connect(driver, user, pass, host, port, name, sqlitePath string) (*sql.DB, Dialect, error) {
	switch driver {
	case "", string(MySQL):
		db, err := Open(user, pass, host, port, name)
		return db, MySQL, err
	case string(SQLite):
		db, err := OpenSQLite(sqlitePath)
		return db, SQLite, err
	default:
		return nil, "", fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}
