// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/db"
	"github.com/cobaltcore-dev/brownout/testlib/db/containers"
)

type DBEnv struct {
	*db.DB
	Close func()
}

func SetupDBEnv(t *testing.T) DBEnv {
	var env DBEnv
	// To run tests faster, the default is running with sqlite.
	if os.Getenv("POSTGRES_CONTAINER") == "1" {
		slog.Info("Using real postgres container")
		container := containers.PostgresContainer{}
		container.Init(t)
		port, err := strconv.Atoi(container.GetPort())
		if err != nil {
			t.Fatal(err)
		}
		pg, err := db.NewPostgresDB(conf.DBConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     port,
			User:     "postgres",
			Password: "secret",
			Database: "postgres",
		}, db.Monitor{})
		if err != nil {
			t.Fatal(err)
		}
		env.DB = &pg
		env.Close = func() {
			env.DB.Close()
			container.Close()
		}
	} else {
		slog.Info("Using sqlite")
		sqlite, err := db.NewSqliteDB(conf.DBConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "test.db"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.DB = &sqlite
		env.Close = func() {
			env.DB.Close()
		}
	}
	if os.Getenv("DB_TRACE") == "1" {
		env.DB.DbMap.TraceOn("[gorp]", log.New(os.Stdout, "brownout:", log.Lmicroseconds))
	}
	return env
}
