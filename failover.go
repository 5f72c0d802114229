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

	"github.com/tablelink/relay/model"
)

const (
	failbackInterval = 60 * time.Second
	switchCooldown   = 10 * time.Second
)

// FailoverManager decides which transport is authoritative at any moment.
// Transports are ranked Database > API > ExternalPlatform; the manager always
// wants the highest-ranked healthy one, but a cooldown between switches stops
// a flapping link from thrashing the channels. Operators can pin a transport
// manually; a pin wins over health until it is cleared.
type FailoverManager struct {
	monitor *HealthMonitor
	bus     *EventBus

	mu         sync.Mutex
	active     model.TransportType
	override   model.TransportType
	lastSwitch time.Time
}

// NewFailoverManager builds the manager. The active transport starts as
// TransportNone until the first evaluation.
func NewFailoverManager(monitor *HealthMonitor, bus *EventBus) *FailoverManager {
	return &FailoverManager{
		monitor:  monitor,
		bus:      bus,
		active:   model.TransportNone,
		override: model.TransportNone,
	}
}

// Run re-evaluates the active transport on a timer until the context is
// cancelled. The timer doubles as the fail-back probe: once a preferred
// transport is healthy again, the next tick switches back to it.
func (f *FailoverManager) Run(ctx context.Context) error {
	f.Evaluate()

	ticker := time.NewTicker(failbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Evaluate()
		}
	}
}

// Evaluate picks the transport that should be active right now and switches
// to it if the cooldown allows.
func (f *FailoverManager) Evaluate() model.TransportType {
	f.mu.Lock()
	defer f.mu.Unlock()

	desired := f.desiredLocked()
	now := time.Now()

	if desired == f.active {
		return f.active
	}
	if !f.lastSwitch.IsZero() && now.Sub(f.lastSwitch) < switchCooldown {
		return f.active
	}

	previous := f.active
	f.active = desired
	f.lastSwitch = now

	if desired == model.TransportNone {
		logrus.Warn("all transports unhealthy, going offline")
		f.bus.Publish(EventConnectionOffline, map[string]string{"previous": string(previous)})
	} else {
		logrus.Infof("switching transport %s -> %s", previous, desired)
		f.bus.Publish(EventConnectionSwitch, map[string]string{
			"previous": string(previous),
			"active":   string(desired),
		})
	}
	return f.active
}

// desiredLocked computes the transport the manager wants, ignoring cooldown.
func (f *FailoverManager) desiredLocked() model.TransportType {
	if f.override != model.TransportNone {
		return f.override
	}
	for _, t := range model.TransportsByPriority() {
		if f.monitor.Healthy(t) {
			return t
		}
	}
	return model.TransportNone
}

// Active returns the transport currently authoritative for order discovery.
func (f *FailoverManager) Active() model.TransportType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// SetOverride pins a transport regardless of its health. Passing
// TransportNone clears the pin. The pin takes effect immediately, bypassing
// the cooldown.
func (f *FailoverManager) SetOverride(transport model.TransportType) model.TransportType {
	f.mu.Lock()
	f.override = transport
	// An operator decision should not wait out the cooldown.
	f.lastSwitch = time.Time{}
	f.mu.Unlock()

	return f.Evaluate()
}

// Override returns the pinned transport, or TransportNone when unpinned.
func (f *FailoverManager) Override() model.TransportType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.override
}

// Offline reports whether no transport is currently usable. Components use
// this to decide between calling the platform directly and parking work in
// the offline queue.
func (f *FailoverManager) Offline() bool {
	return f.Active() == model.TransportNone
}
