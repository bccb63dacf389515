// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"github.com/cobaltcore-dev/brownout/internal/monitoring"
	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of a simulated datacenter. A zero Monitor records nothing.
type Monitor struct {
	// Energy consumed by all hosts since the start of the run.
	energyGauge prometheus.Gauge
	// Number of migrations issued.
	migrationCounter prometheus.Counter
	// Number of dimmer triggers on overloaded hosts.
	dimmerTriggerCounter prometheus.Counter
	// Dimmer value computed in the last update pass.
	dimmerValueGauge prometheus.Gauge
	// Current cpu utilization per host.
	hostUtilizationGauge *prometheus.GaugeVec
	// Cumulative revenue loss per host.
	hostRevenueLossGauge *prometheus.GaugeVec
	// Idle hosts at the last sampling point.
	idleHostsGauge prometheus.Gauge
	// Simulated transfer time of issued migrations.
	migrationDelayHistogram prometheus.Histogram
	// A histogram to measure how long an update pass takes in real time.
	updateRunTimer prometheus.Histogram
}

func NewMonitor(registry *monitoring.Registry) Monitor {
	energyGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "brownout_datacenter_energy_watt_seconds",
		Help: "Energy consumed by all hosts of the simulated datacenter",
	})
	migrationCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brownout_datacenter_migrations_total",
		Help: "Number of vm migrations issued in the simulated datacenter",
	})
	dimmerTriggerCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brownout_datacenter_dimmer_triggers_total",
		Help: "Number of times the dimmer throttled an overloaded host",
	})
	dimmerValueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "brownout_datacenter_dimmer_value",
		Help: "Dimmer value of the last update pass",
	})
	hostUtilizationGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "brownout_host_cpu_utilization_ratio",
		Help: "Cpu utilization of a simulated host",
	}, []string{"host"})
	hostRevenueLossGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "brownout_host_revenue_loss",
		Help: "Cumulative price of components disabled on a simulated host",
	}, []string{"host"})
	idleHostsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "brownout_datacenter_idle_hosts",
		Help: "Number of idle hosts at the last sampling point",
	})
	migrationDelayHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "brownout_datacenter_migration_delay_seconds",
		Help:    "Simulated transfer time of vm migrations",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9h in 16 buckets
	})
	updateRunTimer := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "brownout_datacenter_update_duration_seconds",
		Help:    "Duration of a datacenter update pass",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 21), // 10us to ~10s in 21 buckets
	})
	registry.MustRegister(
		energyGauge,
		migrationCounter,
		dimmerTriggerCounter,
		dimmerValueGauge,
		hostUtilizationGauge,
		hostRevenueLossGauge,
		idleHostsGauge,
		migrationDelayHistogram,
		updateRunTimer,
	)
	return Monitor{
		energyGauge:             energyGauge,
		migrationCounter:        migrationCounter,
		dimmerTriggerCounter:    dimmerTriggerCounter,
		dimmerValueGauge:        dimmerValueGauge,
		hostUtilizationGauge:    hostUtilizationGauge,
		hostRevenueLossGauge:    hostRevenueLossGauge,
		idleHostsGauge:          idleHostsGauge,
		migrationDelayHistogram: migrationDelayHistogram,
		updateRunTimer:          updateRunTimer,
	}
}

// Start a timer for an update pass. The returned func stops it.
func (m Monitor) timeUpdate() func() {
	if m.updateRunTimer == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.updateRunTimer)
	return func() { timer.ObserveDuration() }
}

func (m Monitor) observeHosts(hosts []*model.Host) {
	for _, host := range hosts {
		if m.hostUtilizationGauge != nil {
			m.hostUtilizationGauge.WithLabelValues(host.ID).Set(host.Utilization())
		}
		if m.hostRevenueLossGauge != nil {
			m.hostRevenueLossGauge.WithLabelValues(host.ID).Set(host.RevenueLoss())
		}
	}
}

func (m Monitor) observeEnergy(total float64) {
	if m.energyGauge != nil {
		m.energyGauge.Set(total)
	}
}

func (m Monitor) observeDimmer(value float64, triggers int) {
	if m.dimmerValueGauge != nil {
		m.dimmerValueGauge.Set(value)
	}
	if m.dimmerTriggerCounter != nil && triggers > 0 {
		m.dimmerTriggerCounter.Add(float64(triggers))
	}
}

func (m Monitor) observeIdleHosts(samples []IdleHostSample) {
	if m.idleHostsGauge != nil && len(samples) > 0 {
		m.idleHostsGauge.Set(float64(samples[len(samples)-1].Count))
	}
}

func (m Monitor) observeMigrations(issued []*model.Migration) {
	for _, migration := range issued {
		if m.migrationCounter != nil {
			m.migrationCounter.Inc()
		}
		if m.migrationDelayHistogram != nil {
			m.migrationDelayHistogram.Observe(migration.Delay)
		}
	}
}
