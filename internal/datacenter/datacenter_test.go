// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package datacenter

import (
	"context"
	"errors"
	"testing"

	"github.com/cobaltcore-dev/brownout/internal/conf"
	"github.com/cobaltcore-dev/brownout/internal/monitoring"
	"github.com/cobaltcore-dev/brownout/internal/simulation/events"
	"github.com/cobaltcore-dev/brownout/internal/simulation/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockPolicy struct {
	hosts []*model.Host
	// Plan handed out on the first call of PlanMigrations.
	plan      []model.Migration
	planCalls int
	released  []*model.VM
}

func (p *mockPolicy) Place(vm *model.VM) (*model.Host, error) {
	for _, h := range p.hosts {
		if err := h.AddVM(vm); err == nil {
			return h, nil
		}
	}
	return nil, errors.New("no host")
}

func (p *mockPolicy) Allocate(vm *model.VM, host *model.Host) error {
	return host.AddVM(vm)
}

func (p *mockPolicy) Release(vm *model.VM) {
	p.released = append(p.released, vm)
	for _, h := range p.hosts {
		h.RemoveVM(vm)
	}
}

func (p *mockPolicy) PlanMigrations(vms []*model.VM) []model.Migration {
	p.planCalls++
	plan := p.plan
	p.plan = nil
	return plan
}

type testEnv struct {
	queue  *events.Queue
	policy *mockPolicy
	dc     *Datacenter
	hosts  []*model.Host
}

func newTestEnv(t *testing.T, config conf.SimulationConfig, monitor Monitor) testEnv {
	queue := events.NewQueue()
	hosts := []*model.Host{newHost("a"), newHost("b")}
	policy := &mockPolicy{hosts: hosts}
	dc, err := New(config, queue, policy, hosts, monitor)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return testEnv{queue: queue, policy: policy, dc: dc, hosts: hosts}
}

// Create a vm on the first host running one cloudlet submitted at 0.1.
func (e testEnv) addWorkload(t *testing.T, length, utilization float64, components []*model.OptionalComponent) (*model.VM, *model.Cloudlet) {
	vm := model.NewVM("vm1", 1000, 1024)
	if err := e.dc.CreateVM(vm); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	c := model.NewCloudlet("c1", vm.ID, length, model.NewConstantUtilization(utilization), components)
	c.SubmitAt = 0.1
	e.dc.ScheduleCloudlets([]*model.Cloudlet{c})
	return vm, c
}

func (e testEnv) run(t *testing.T, limit float64) {
	if err := e.queue.Run(context.Background(), limit, e.dc.ProcessEvent); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestNew_UnknownStrategy(t *testing.T) {
	config := conf.DefaultSimulationConfig()
	config.SelectionStrategy = "random"
	if _, err := New(config, events.NewQueue(), &mockPolicy{}, nil, Monitor{}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestDatacenter_AwaitingWorkload(t *testing.T) {
	env := newTestEnv(t, conf.DefaultSimulationConfig(), Monitor{})
	env.dc.UpdateCloudletProcessing()
	env.dc.UpdateCloudletProcessing()
	if env.queue.Len() != 1 {
		t.Fatalf("expected exactly one pending tick, got %d", env.queue.Len())
	}
	ev, _ := env.queue.FindNextPending(KindTick)
	if ev.Time != 300 {
		t.Errorf("expected tick at 300, got %v", ev.Time)
	}
	report := env.dc.Report()
	if report.Energy != 0 || report.DimmerEvaluations != 0 {
		t.Errorf("expected no accounting before workload, got %+v", report)
	}
	if env.policy.planCalls != 0 {
		t.Error("expected the policy not to be asked before workload")
	}
}

func TestDatacenter_RunToCompletion(t *testing.T) {
	config := conf.DefaultSimulationConfig()
	env := newTestEnv(t, config, Monitor{})
	// 0.5 * 1000 MIPS for 900 time units.
	vm, c := env.addWorkload(t, 450000, 0.5, nil)

	env.run(t, 0)

	if !c.IsFinished() {
		t.Fatalf("expected cloudlet to finish, remaining %v", c.Remaining())
	}
	if len(env.dc.VMs()) != 0 || len(env.policy.released) != 1 || env.policy.released[0] != vm {
		t.Errorf("expected completed vm to be released, got %v", env.policy.released)
	}
	if env.queue.Len() != 0 {
		t.Errorf("expected no pending events after quiescence, got %d", env.queue.Len())
	}

	report := env.dc.Report()
	// Host a: 125*300.1 + 150*300 + 125*300, host b: 100*900.1
	expectedEnergy := 125*300.1 + 150*300.0 + 125*300.0 + 100*900.1
	if diff := report.Energy - expectedEnergy; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected energy %v, got %v", expectedEnergy, report.Energy)
	}
	if report.DimmerEvaluations != 6 {
		t.Errorf("expected 6 dimmer evaluations, got %d", report.DimmerEvaluations)
	}
	if report.DimmerTriggers != 0 || report.Migrations != 0 {
		t.Errorf("expected no dimmer triggers or migrations, got %+v", report)
	}
	expectedSamples := []IdleHostSample{{Time: 300, Count: 1}, {Time: 600, Count: 1}, {Time: 900, Count: 2}}
	if len(report.IdleHostSamples) != len(expectedSamples) {
		t.Fatalf("expected %d idle samples, got %v", len(expectedSamples), report.IdleHostSamples)
	}
	for i, expected := range expectedSamples {
		got := report.IdleHostSamples[i]
		if !approxEqual(got.Time, expected.Time) || got.Count != expected.Count {
			t.Errorf("expected sample %+v, got %+v", expected, got)
		}
	}
	if !approxEqual(report.FinishedAt, 900.1) {
		t.Errorf("expected last update at 900.1, got %v", report.FinishedAt)
	}
	if env.policy.planCalls != 3 {
		t.Errorf("expected the policy to be asked on every active tick, got %d", env.policy.planCalls)
	}
}

func TestDatacenter_DimmerThrottlesOverloadedHost(t *testing.T) {
	config := conf.DefaultSimulationConfig()
	config.DisableMigrations = true
	env := newTestEnv(t, config, Monitor{})
	_, c := env.addWorkload(t, 1e9, 0.95, newComponents())

	// Host a is overloaded from 300.1 on, the dimmer sees it at 900.1.
	env.run(t, 1000)

	report := env.dc.Report()
	if report.DimmerTriggers != 1 {
		t.Fatalf("expected 1 dimmer trigger, got %d", report.DimmerTriggers)
	}
	a, b := env.hosts[0], env.hosts[1]
	if a.RevenueLoss() != 2 || b.RevenueLoss() != 0 {
		t.Errorf("expected revenue loss 2 on a and 0 on b, got %v and %v", a.RevenueLoss(), b.RevenueLoss())
	}
	if report.RevenueLoss != 2 {
		t.Errorf("expected total revenue loss 2, got %v", report.RevenueLoss)
	}
	if u := c.Utilization(900.1); !approxEqual(u, 0.5) {
		t.Errorf("expected throttled utilization 0.5, got %v", u)
	}
	if !approxEqual(a.Utilization(), 0.5) {
		t.Errorf("expected host utilization 0.5 after the dimmer, got %v", a.Utilization())
	}
	if a.DimmerValue() != 0.5 {
		t.Errorf("expected dimmer value 0.5, got %v", a.DimmerValue())
	}
	if env.policy.planCalls != 0 || report.Migrations != 0 {
		t.Errorf("expected no migrations with migrations disabled, got %d calls", env.policy.planCalls)
	}
}

func TestDatacenter_Migration(t *testing.T) {
	env := newTestEnv(t, conf.DefaultSimulationConfig(), Monitor{})
	vm, _ := env.addWorkload(t, 1e9, 0.5, nil)
	a, b := env.hosts[0], env.hosts[1]
	env.policy.plan = []model.Migration{{VM: vm, Target: b}}

	// The first active tick at 300.1 issues the migration, it completes
	// after 16384 time units.
	env.run(t, 300.1+16384-1)
	if !vm.IsInMigration() || vm.HostID() != "a" {
		t.Fatalf("expected vm to be migrating from a, got host %q", vm.HostID())
	}
	if env.dc.Report().Migrations != 1 {
		t.Errorf("expected migration count 1, got %d", env.dc.Report().Migrations)
	}

	env.run(t, 300.1+16384+1)
	if vm.IsInMigration() {
		t.Error("expected migration to be completed")
	}
	if vm.HostID() != "b" {
		t.Errorf("expected vm on host b, got %q", vm.HostID())
	}
	if len(a.VMs()) != 0 || len(b.VMs()) != 1 || len(b.MigratingInVMs()) != 0 {
		t.Errorf("unexpected host state a=%d b=%d in=%d", len(a.VMs()), len(b.VMs()), len(b.MigratingInVMs()))
	}
	if env.dc.Report().Migrations != 1 {
		t.Errorf("expected migration count 1, got %d", env.dc.Report().Migrations)
	}
	if b.Utilization() == 0 {
		t.Error("expected host b to run the vm after the migration")
	}
}

func TestDatacenter_EnergyNeverDecreases(t *testing.T) {
	env := newTestEnv(t, conf.DefaultSimulationConfig(), Monitor{})
	env.addWorkload(t, 1e9, 0.95, newComponents())
	previousEnergy, previousLoss := 0.0, 0.0
	for limit := 300.0; limit <= 6000; limit += 300 {
		env.run(t, limit+1)
		report := env.dc.Report()
		if report.Energy < previousEnergy {
			t.Fatalf("expected energy not to decrease, got %v after %v", report.Energy, previousEnergy)
		}
		if report.RevenueLoss < previousLoss {
			t.Fatalf("expected revenue loss not to decrease, got %v after %v", report.RevenueLoss, previousLoss)
		}
		for _, h := range env.hosts {
			if h.Utilization() < 0 || h.Utilization() > 1 {
				t.Fatalf("expected utilization in [0,1], got %v", h.Utilization())
			}
		}
		previousEnergy, previousLoss = report.Energy, report.RevenueLoss
	}
	samples := env.dc.Report().IdleHostSamples
	for i := 1; i < len(samples); i++ {
		if samples[i].Time <= samples[i-1].Time {
			t.Fatalf("expected idle samples in time order, got %v", samples)
		}
	}
}

func TestDatacenter_Monitor(t *testing.T) {
	registry := monitoring.NewRegistry(conf.MonitoringConfig{})
	monitor := NewMonitor(registry)
	config := conf.DefaultSimulationConfig()
	config.DisableMigrations = true
	env := newTestEnv(t, config, monitor)
	env.addWorkload(t, 1e9, 0.95, newComponents())
	env.run(t, 1000)

	if got := testutil.ToFloat64(monitor.dimmerTriggerCounter); got != 1 {
		t.Errorf("expected 1 dimmer trigger, got %v", got)
	}
	if got := testutil.ToFloat64(monitor.energyGauge); got != env.dc.Report().Energy {
		t.Errorf("expected energy gauge %v, got %v", env.dc.Report().Energy, got)
	}
	if got := testutil.ToFloat64(monitor.hostRevenueLossGauge.WithLabelValues("a")); got != 2 {
		t.Errorf("expected revenue loss 2 on host a, got %v", got)
	}
	if got := testutil.ToFloat64(monitor.dimmerValueGauge); got != 0.5 {
		t.Errorf("expected dimmer value 0.5, got %v", got)
	}
}

func TestDatacenter_CreateVMOn(t *testing.T) {
	env := newTestEnv(t, conf.DefaultSimulationConfig(), Monitor{})
	vm := model.NewVM("vm1", 1000, 1024)
	if err := env.dc.CreateVMOn(vm, "b"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if vm.HostID() != "b" || len(env.dc.VMs()) != 1 {
		t.Errorf("expected vm on host b, got %q", vm.HostID())
	}
	if err := env.dc.CreateVMOn(model.NewVM("vm2", 1000, 1024), "missing"); err == nil {
		t.Error("expected error for unknown host")
	}
	if err := env.dc.CreateVMOn(model.NewVM("vm3", 1000, 1e6), "a"); err == nil {
		t.Error("expected error for a vm that does not fit")
	}
	if len(env.dc.VMs()) != 1 {
		t.Errorf("expected failed placements not to be tracked, got %d vms", len(env.dc.VMs()))
	}
}
