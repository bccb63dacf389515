// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cobaltcore-dev/brownout/internal/datacenter"
	"github.com/cobaltcore-dev/brownout/internal/db"
	"github.com/go-gorp/gorp"
)

// Summary of one simulation run.
type Run struct {
	// Unique id of the run.
	ID string `db:"id,primarykey"`
	// Human readable name of the run.
	Name string `db:"name"`
	// Selection strategy used by the dimmer.
	Strategy string `db:"strategy"`
	// Energy consumed by all hosts in watt-seconds.
	Energy float64 `db:"energy"`
	// Number of issued migrations.
	Migrations int `db:"migrations"`
	// Number of dimmer triggers.
	DimmerTriggers int `db:"dimmer_triggers"`
	// Number of host evaluations in which the dimmer could have triggered.
	DimmerEvaluations int `db:"dimmer_evaluations"`
	// Total revenue loss of all hosts.
	RevenueLoss float64 `db:"revenue_loss"`
	// Simulated time of the last update pass.
	FinishedAt float64 `db:"finished_at"`
	// Wall clock time at which the run was stored.
	StoredAt time.Time `db:"stored_at"`
}

func (Run) TableName() string { return "brownout_runs" }

// Number of idle hosts at a sampling point of a run.
type IdleHostSample struct {
	RunID string  `db:"run_id,primarykey"`
	Time  float64 `db:"sample_time,primarykey"`
	Count int     `db:"idle_hosts"`
}

func (IdleHostSample) TableName() string { return "brownout_idle_host_samples" }

// Write-only store for run reports.
type Store struct {
	DB db.DB
}

func NewStore(database db.DB) *Store {
	return &Store{DB: database}
}

// Create the result tables if they don't exist.
func (s *Store) Init() error {
	return s.DB.CreateTable(
		s.DB.AddTable(Run{}),
		s.DB.AddTable(IdleHostSample{}),
	)
}

// Persist the report of a run with all its idle host samples.
func (s *Store) Save(run Run, report datacenter.Report) error {
	run.Energy = report.Energy
	run.Migrations = report.Migrations
	run.DimmerTriggers = report.DimmerTriggers
	run.DimmerEvaluations = report.DimmerEvaluations
	run.RevenueLoss = report.RevenueLoss
	run.FinishedAt = report.FinishedAt
	if run.StoredAt.IsZero() {
		run.StoredAt = time.Now()
	}
	samples := make([]any, 0, len(report.IdleHostSamples))
	for _, s := range report.IdleHostSamples {
		samples = append(samples, &IdleHostSample{RunID: run.ID, Time: s.Time, Count: s.Count})
	}
	err := s.DB.Transaction(func(tx *gorp.Transaction) error {
		if err := tx.Insert(&run); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
		}
		if len(samples) == 0 {
			return nil
		}
		if err := tx.Insert(samples...); err != nil {
			return fmt.Errorf("failed to insert idle host samples of run %s: %w", run.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("results: stored run", "run", run.ID, "name", run.Name, "samples", len(samples))
	return nil
}

// Idle host samples of a run in time order.
func (s *Store) IdleHostSamples(runID string) ([]IdleHostSample, error) {
	var samples []IdleHostSample
	_, err := s.DB.Select(&samples,
		"SELECT * FROM "+IdleHostSample{}.TableName()+" WHERE run_id = :run_id ORDER BY sample_time",
		map[string]any{"run_id": runID},
	)
	return samples, err
}
