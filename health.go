/*
Copyright 2025 Tablelink Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/model"
)

const (
	healthCheckInterval = 30 * time.Second
	healthProbeTimeout  = 5 * time.Second
)

// Probe checks one transport and returns its round-trip latency.
type Probe func(ctx context.Context) (time.Duration, error)

// HealthMonitor probes every registered transport on a timer and keeps a
// rolling health snapshot per transport, both in memory for the failover
// manager and persisted for the ops surface.
type HealthMonitor struct {
	datasource database.IDataSource
	probes     map[model.TransportType]Probe
	onChange   func(model.TransportType, bool)

	mu        sync.RWMutex
	snapshots map[model.TransportType]*model.ConnectionHealth
}

// NewHealthMonitor builds a monitor with no transports registered.
func NewHealthMonitor(ds database.IDataSource) *HealthMonitor {
	return &HealthMonitor{
		datasource: ds,
		probes:     make(map[model.TransportType]Probe),
		snapshots:  make(map[model.TransportType]*model.ConnectionHealth),
	}
}

// OnHealthChange registers a callback invoked whenever a transport flips
// between healthy and unhealthy. The failover manager hooks in here so a
// dead transport is abandoned on the probe that detects it, not on the next
// fail-back tick. Must be set before Run.
func (m *HealthMonitor) OnHealthChange(fn func(model.TransportType, bool)) {
	m.onChange = fn
}

// Register adds a transport probe. Unregistered transports are reported
// unhealthy.
func (m *HealthMonitor) Register(transport model.TransportType, probe Probe) {
	m.probes[transport] = probe
	m.mu.Lock()
	m.snapshots[transport] = &model.ConnectionHealth{Transport: transport}
	m.mu.Unlock()
}

// Run probes on a timer until the context is cancelled. The first pass runs
// immediately so the failover manager has data at startup.
func (m *HealthMonitor) Run(ctx context.Context) error {
	m.CheckAll(ctx)

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll probes every registered transport once.
func (m *HealthMonitor) CheckAll(ctx context.Context) {
	for transport, probe := range m.probes {
		m.check(ctx, transport, probe)
	}
}

func (m *HealthMonitor) check(ctx context.Context, transport model.TransportType, probe Probe) {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	latency, err := probe(probeCtx)
	now := time.Now()

	m.mu.Lock()
	snap := m.snapshots[transport]
	if snap == nil {
		snap = &model.ConnectionHealth{Transport: transport}
		m.snapshots[transport] = snap
	}
	wasHealthy := snap.IsHealthy
	if err != nil {
		snap.RecordFailure(now)
	} else {
		snap.RecordSuccess(latency, now)
	}
	persisted := *snap
	m.mu.Unlock()

	if err != nil && wasHealthy {
		logrus.Warnf("transport %s went unhealthy: %v", transport, err)
	} else if err == nil && !wasHealthy {
		logrus.Infof("transport %s recovered (%.0fms)", transport, persisted.AvgLatencyMs)
	}

	if persisted.IsHealthy != wasHealthy && m.onChange != nil {
		m.onChange(transport, persisted.IsHealthy)
	}

	if err := m.datasource.UpsertConnectionHealth(ctx, &persisted); err != nil {
		logrus.Errorf("persisting health for %s: %v", transport, err)
	}
}

// Healthy reports whether a transport's last probe succeeded.
func (m *HealthMonitor) Healthy(transport model.TransportType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[transport]
	return ok && snap.IsHealthy
}

// Snapshot returns a copy of every transport's current health.
func (m *HealthMonitor) Snapshot() []model.ConnectionHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ConnectionHealth, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, *snap)
	}
	return out
}
