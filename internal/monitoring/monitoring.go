// Copyright 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/sapcc/go-bits/httpext"
)

// Prometheus registry that attaches the configured labels to every metric.
type Registry struct {
	*prometheus.Registry
	config conf.MonitoringConfig
}

func NewRegistry(config conf.MonitoringConfig) *Registry {
	registry := &Registry{
		Registry: prometheus.NewRegistry(),
		config:   config,
	}
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Gather all metrics and add the configured labels, so that runs with
// different scenarios can be told apart on a shared prometheus.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	families, err := r.Registry.Gather()
	if err != nil {
		return nil, err
	}
	for name, value := range r.config.Labels {
		for _, family := range families {
			for _, metric := range family.Metric {
				metric.Label = append(metric.Label, &dto.LabelPair{
					Name:  &name,
					Value: &value,
				})
			}
		}
	}
	return families, nil
}

// Handler serving the gathered metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{})
}

// Serve the metrics on the configured port until the context is done.
// A zero port disables the server.
func (r *Registry) Serve(ctx context.Context) error {
	if r.config.Port == 0 {
		slog.Info("monitoring: metrics server disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	slog.Info("monitoring: metrics listening", "port", r.config.Port)
	addr := fmt.Sprintf(":%d", r.config.Port)
	return httpext.ListenAndServeContext(ctx, addr, mux)
}
