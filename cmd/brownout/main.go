// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/datacenter"
	"github.com/cobaltcore-dev/brownout/internal/db"
	"github.com/cobaltcore-dev/brownout/internal/logging"
	"github.com/cobaltcore-dev/brownout/internal/monitoring"
	"github.com/cobaltcore-dev/brownout/internal/results"
	"github.com/cobaltcore-dev/brownout/internal/scenario"
	"github.com/google/uuid"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: brownout [flags]

Simulate a brownout-aware datacenter on a scenario and report energy,
migrations, dimmer triggers and revenue loss.

  brownout -config conf.json -scenario scenario.yaml
  brownout -generate scenario.yaml -hosts 50 -vms 50 -seed 1

flags:
`

func main() {
	// If called with `--version`, report version and exit.
	bininfo.HandleVersionArgument()

	defaults := scenario.DefaultGenerateOptions()
	var (
		configPath   = flag.String("config", "/etc/config/conf.json", "Path to the json config file.")
		overridePath = flag.String("override", "/etc/config/secrets.json", "Path to an optional json file overriding the config.")
		scenarioPath = flag.String("scenario", "", "Path to the yaml scenario to simulate.")
		generatePath = flag.String("generate", "", "Write a random scenario to this path and exit.")
		seed         = flag.Uint64("seed", 1, "Seed of the generated scenario.")
		hosts        = flag.Int("hosts", defaults.Hosts, "Number of hosts of the generated scenario.")
		vms          = flag.Int("vms", defaults.VMs, "Number of vms of the generated scenario.")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *generatePath != "" {
		opts := defaults
		opts.Hosts, opts.VMs = *hosts, *vms
		s := must.Return(scenario.Generate(opts, *seed))
		must.Succeed(s.Write(*generatePath))
		slog.Info("scenario: generated", "path", *generatePath, "hosts", opts.Hosts, "vms", opts.VMs, "seed", *seed)
		return
	}
	if *scenarioPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	config := conf.GetConfigOrDie(conf.DefaultConfig(), *configPath, *overridePath)
	config.LoggingConfig.SetDefaultLogger()
	must.Succeed(config.Validate())

	runID := uuid.NewString()
	logging.SetRun(runID)
	s := must.Return(scenario.Load(*scenarioPath))

	// This context is cancelled on SIGINT, the partial report is still
	// logged and persisted.
	ctx := httpext.ContextWithSIGINT(context.Background(), 1*time.Second)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := monitoring.NewRegistry(config.MonitoringConfig)
	monitor := datacenter.NewMonitor(registry)

	var report datacenter.Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registry.Serve(gctx) })
	g.Go(func() error {
		// Stop the metrics server once the run is over.
		defer cancel()
		var err error
		report, err = simulate(gctx, config.SimulationConfig, s, monitor)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("simulation: aborted", "error", err)
	}
	logSummary(report, len(s.Hosts))

	if config.ResultsConfig.Enabled {
		database := must.Return(db.Open(config.DBConfig, db.NewDBMonitor(registry)))
		defer database.Close()
		store := results.NewStore(database)
		must.Succeed(store.Init())
		name := config.ResultsConfig.RunName
		if name == "" {
			name = s.Name
		}
		must.Succeed(store.Save(results.Run{
			ID:       runID,
			Name:     name,
			Strategy: config.SelectionStrategy,
		}, report))
	}
}
