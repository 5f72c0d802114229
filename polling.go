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

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/model"
)

// orderPuller is the slice of the platform client the poller needs.
type orderPuller interface {
	PullOrders(ctx context.Context, since time.Time) ([]model.RemoteOrder, error)
}

// PollingChannel asks the platform for new orders on a fixed interval. It is
// the workhorse channel: push may drop and tailing may be disabled, but as
// long as the REST surface answers, polling finds every order within one
// interval.
//
// The channel keeps a high-water mark of the newest order creation time it
// has successfully handed to the gate. The mark only advances after a pull
// and its ingests complete, so a failed cycle re-fetches the same window —
// the gate's dedup makes the overlap harmless.
type PollingChannel struct {
	gate     ingester
	platform orderPuller

	mu        sync.Mutex
	highWater time.Time
}

// NewPollingChannel builds the channel with a zero high-water mark, so the
// first pull fetches the platform's recent window.
func NewPollingChannel(gate ingester, platform orderPuller) *PollingChannel {
	return &PollingChannel{gate: gate, platform: platform}
}

// Run polls until the context is cancelled.
func (c *PollingChannel) Run(ctx context.Context) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if !conf.Platform.PollingEnabled {
		logrus.Info("polling channel disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	interval := time.Duration(conf.Platform.PollingIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single pull-and-ingest cycle. A cycle still running when
// the next tick fires absorbs it; cycles never stack.
func (c *PollingChannel) PollOnce(ctx context.Context) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()

	orders, err := c.platform.PullOrders(ctx, c.highWater)
	if err != nil {
		logrus.Warnf("polling: pull failed: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}

	newest := c.highWater
	allIngested := true
	for i := range orders {
		remote := orders[i]
		result, _, err := c.gate.Ingest(ctx, &remote, model.TransportAPI)
		if result == IngestFailed {
			// Store trouble, not bad data. Leave the mark so the next
			// cycle retries this window. Rejected orders do advance it:
			// malformed data never gets better on a re-pull.
			logrus.Errorf("polling: ingesting order %s: %v", remote.OrderID, err)
			allIngested = false
			continue
		}
		if remote.CreatedAt.After(newest) {
			newest = remote.CreatedAt
		}
	}

	if allIngested && newest.After(c.highWater) {
		c.highWater = newest
	}
}

// HighWater returns the current mark. Used by the ops surface.
func (c *PollingChannel) HighWater() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highWater
}
