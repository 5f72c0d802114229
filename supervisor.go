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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Start launches every background loop and blocks until the context is
// cancelled or a loop dies. Cancellation is cooperative: each loop returns
// its context error, and Start reports nil for a clean shutdown.
func (r *Relay) Start(ctx context.Context) error {
	// A platform that is slow to answer at boot gets a few retries before
	// the local configuration is left in force.
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(func() error { return r.RefreshRemoteConfig(ctx) }, policy); err != nil {
		logrus.Warnf("remote config unavailable, keeping local config: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.monitor.Run(ctx) })
	g.Go(func() error { return r.failover.Run(ctx) })
	g.Go(func() error { return r.printQueue.Run(ctx) })
	g.Go(func() error { return r.acks.Run(ctx) })
	g.Go(func() error { return r.offline.Run(ctx) })
	g.Go(func() error { return r.push.Run(ctx) })
	g.Go(func() error { return r.polling.Run(ctx) })
	g.Go(func() error { return r.tailing.Run(ctx) })

	logrus.Info("relay started")

	err := g.Wait()
	r.bus.Close()
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}
