// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/go-gorp/gorp"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sapcc/go-bits/easypg"
)

// Wrapper around gorp.DbMap that adds some convenience functions.
type DB struct {
	*gorp.DbMap
	DBConfig conf.DBConfig
}

type Table interface {
	TableName() string
}

// Open the database given by the configured driver.
func Open(c conf.DBConfig, monitor Monitor) (DB, error) {
	switch c.Driver {
	case "postgres":
		return NewPostgresDB(c, monitor)
	case "sqlite":
		return NewSqliteDB(c)
	default:
		return DB{}, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// Credentials mounted from files often end with a newline.
func trimNewlines(s string) string { return strings.ReplaceAll(s, "\n", "") }

// Create a new postgres database and wait until it is connected.
func NewPostgresDB(c conf.DBConfig, monitor Monitor) (DB, error) {
	port := "5432"
	if c.Port != 0 {
		port = strconv.Itoa(c.Port)
	}
	dbURL, err := easypg.URLFrom(easypg.URLParts{
		HostName:          trimNewlines(c.Host),
		Port:              port,
		UserName:          trimNewlines(c.User),
		Password:          trimNewlines(c.Password),
		ConnectionOptions: "sslmode=disable",
		DatabaseName:      trimNewlines(c.Database),
	})
	if err != nil {
		return DB{}, err
	}
	slog.Info("db: connecting to postgres", "host", c.Host, "port", port, "database", c.Database)
	db, err := sql.Open("postgres", dbURL.String())
	if err != nil {
		return DB{}, err
	}

	// If the wait time exceeds 10 seconds, we give up.
	maxRetries := 10
	for i := range maxRetries {
		if monitor.connectionAttempts != nil {
			monitor.connectionAttempts.Inc()
		}
		err := db.Ping()
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			db.Close()
			return DB{}, fmt.Errorf("giving up connecting to database: %w", err)
		}
		slog.Error("db: failed to connect to database, retrying...", "error", err)
		time.Sleep(1 * time.Second)
	}

	db.SetMaxOpenConns(16)
	dbMap := &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}
	slog.Info("db: database is ready")
	return DB{DBConfig: c, DbMap: dbMap}, nil
}

// Open a sqlite database file, creating it if needed.
func NewSqliteDB(c conf.DBConfig) (DB, error) {
	db, err := sql.Open("sqlite3", c.Path)
	if err != nil {
		return DB{}, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return DB{}, err
	}
	// Sqlite does not support concurrent writers.
	db.SetMaxOpenConns(1)
	dbMap := &gorp.DbMap{Db: db, Dialect: gorp.SqliteDialect{}}
	slog.Info("db: opened sqlite database", "path", c.Path)
	return DB{DBConfig: c, DbMap: dbMap}, nil
}

// Adds missing functionality to gorp.DbMap which creates the given tables.
func (d *DB) CreateTable(table ...*gorp.TableMap) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range table {
		slog.Info("db: creating table", "table", t.TableName)
		sql := t.SqlForCreate(true) // true means to add IF NOT EXISTS
		if _, err := tx.Exec(sql); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.TableName, rollback(tx, err))
		}
	}
	return tx.Commit()
}

// Adds a Model table to the database.
func (d *DB) AddTable(t Table) *gorp.TableMap {
	slog.Debug("db: adding table", "table", t.TableName())
	return d.AddTableWithName(t, t.TableName())
}

// Check if a table exists in the database.
func (d *DB) TableExists(t Table) bool {
	query := `SELECT EXISTS (
		SELECT 1
		FROM   information_schema.tables
		WHERE  table_name = :table_name
	);`
	if _, ok := d.Dialect.(gorp.SqliteDialect); ok {
		query = "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = :table_name);"
	}
	var exists bool
	err := d.SelectOne(&exists, query, map[string]any{"table_name": t.TableName()})
	if err != nil {
		slog.Error("db: failed to check if table exists", "error", err)
		return false
	}
	return exists
}

// Convenience function to the database connection.
func (d *DB) Close() {
	if err := d.DbMap.Db.Close(); err != nil {
		slog.Error("db: failed to close database connection", "error", err)
	}
}

// Roll back the transaction and keep the original error.
func rollback(tx *gorp.Transaction, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		slog.Error("db: failed to roll back transaction", "error", rbErr)
	}
	return err
}

// Run fn in a transaction that is committed if fn returns no error.
func (d *DB) Transaction(fn func(tx *gorp.Transaction) error) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return rollback(tx, err)
	}
	return tx.Commit()
}
