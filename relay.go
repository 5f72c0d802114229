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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/model"
)

// Relay wires the full order pipeline together: three discovery channels
// feeding one ingestion gate, a durable print queue behind the gate, an
// acknowledgment pipeline back to the platform, and the health/failover
// machinery that decides which channel leads.
type Relay struct {
	datasource database.IDataSource
	bus        *EventBus
	platform   *PlatformClient
	pool       *PrinterPool

	acks       *AckPipeline
	dispatcher *PrintDispatcher
	gate       *IngestionGate
	printQueue *PrintQueue
	offline    *OfflineQueue
	monitor    *HealthMonitor
	failover   *FailoverManager

	push    *PushChannel
	polling *PollingChannel
	tailing *TailingChannel
}

// NewRelay initializes a new relay over the provided datasource. It fetches
// the configuration and assembles every component; nothing starts running
// until Start.
func NewRelay(db database.IDataSource) (*Relay, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	bus := NewEventBus()
	platform := NewPlatformClient(conf)
	pool := NewPrinterPool(conf)

	offline := NewOfflineQueue(db)
	monitor := NewHealthMonitor(db)
	failover := NewFailoverManager(monitor, bus)

	acks := NewAckPipeline(db, platform, offline, failover)
	dispatcher := NewPrintDispatcher(db, pool)
	gate := NewIngestionGate(db, dispatcher, acks, bus)
	printQueue := NewPrintQueue(db, pool, acks, bus, time.Duration(conf.Printing.BaseDelaySec)*time.Second)

	push := NewPushChannel(gate, bus)
	polling := NewPollingChannel(gate, platform)
	tailing := NewTailingChannel(gate, failover)

	// A probe that flips a transport's health re-evaluates the active
	// transport right away instead of waiting for the fail-back tick.
	monitor.OnHealthChange(func(model.TransportType, bool) {
		failover.Evaluate()
	})

	if conf.PlatformDatabase.Enabled {
		monitor.Register(model.TransportDatabase, tailing.Ping)
	}
	monitor.Register(model.TransportAPI, func(ctx context.Context) (time.Duration, error) {
		return platform.Ping(ctx, healthProbeTimeout)
	})
	if conf.Platform.PushEnabled {
		monitor.Register(model.TransportExternal, func(ctx context.Context) (time.Duration, error) {
			if !push.Connected() {
				return 0, ErrPushDisconnected
			}
			return 0, nil
		})
	}

	return &Relay{
		datasource: db,
		bus:        bus,
		platform:   platform,
		pool:       pool,
		acks:       acks,
		dispatcher: dispatcher,
		gate:       gate,
		printQueue: printQueue,
		offline:    offline,
		monitor:    monitor,
		failover:   failover,
		push:       push,
		polling:    polling,
		tailing:    tailing,
	}, nil
}

// RefreshRemoteConfig pulls the tenant configuration from the platform and
// folds the fields the relay honors into the live configuration. Called once
// at startup; a platform that is down just leaves the local config in force.
func (r *Relay) RefreshRemoteConfig(ctx context.Context) error {
	remote, err := r.platform.FetchRemoteConfig(ctx)
	if err != nil {
		return err
	}

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	updated := *conf
	if remote.AutoPrint != nil {
		updated.Printing.AutoPrint = *remote.AutoPrint
	}
	if remote.FallbackPaymentMethod != "" {
		updated.FallbackPaymentMethod = remote.FallbackPaymentMethod
	}
	if remote.PollingIntervalSec > 0 {
		updated.Platform.PollingIntervalSec = remote.PollingIntervalSec
	}
	config.ConfigStore.Store(&updated)

	logrus.Info("remote config applied")
	return nil
}

// Gate returns the ingestion gate.
func (r *Relay) Gate() *IngestionGate { return r.gate }

// Acks returns the acknowledgment pipeline.
func (r *Relay) Acks() *AckPipeline { return r.acks }

// PrintQueue returns the durable print queue.
func (r *Relay) PrintQueue() *PrintQueue { return r.printQueue }

// Dispatcher returns the print dispatcher.
func (r *Relay) Dispatcher() *PrintDispatcher { return r.dispatcher }

// Offline returns the offline outbound queue.
func (r *Relay) Offline() *OfflineQueue { return r.offline }

// Monitor returns the health monitor.
func (r *Relay) Monitor() *HealthMonitor { return r.monitor }

// Failover returns the connection failover manager.
func (r *Relay) Failover() *FailoverManager { return r.failover }

// Polling returns the polling channel.
func (r *Relay) Polling() *PollingChannel { return r.polling }

// Push returns the push channel.
func (r *Relay) Push() *PushChannel { return r.push }

// Bus returns the event bus the host application subscribes to.
func (r *Relay) Bus() *EventBus { return r.bus }

// Datasource exposes the underlying store to the ops surface.
func (r *Relay) Datasource() database.IDataSource { return r.datasource }
