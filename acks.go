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
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/internal/notification"
	"github.com/tablelink/relay/model"
)

const (
	ackRetryInterval     = 60 * time.Second
	ackRetryInitialDelay = 30 * time.Second
	ackRetryBatchSize    = 25
)

// platformAcker is the slice of the platform client the pipeline needs.
type platformAcker interface {
	SendReceived(ctx context.Context, ack model.OrderAck) error
	SendAck(ctx context.Context, ack model.OrderAck) error
	SendAckBatch(ctx context.Context, acks []model.OrderAck) error
}

// offlineParker is the slice of the offline outbound queue the pipeline
// parks calls into while every transport is down.
type offlineParker interface {
	Enqueue(ctx context.Context, opType, method, endpoint string, payload []byte, headers map[string]string, priority int, scheduledAt *time.Time) (*model.OfflineQueueItem, error)
}

// connectivityReporter answers whether any transport is currently usable.
type connectivityReporter interface {
	Offline() bool
}

// AckPipeline reports order receipt and print outcomes to the platform. A
// send that fails while the platform is reachable is parked in a durable
// retry queue; a timer drains the queue until each entry succeeds, exceeds
// its retry cap, or ages out of the retry window. While every transport is
// down the pipeline skips the doomed call and parks the whole HTTP request
// in the offline outbound queue instead. An acknowledged order is never
// re-pushed by the platform, so the pipeline is what stops duplicate
// deliveries at the source.
type AckPipeline struct {
	datasource   database.IDataSource
	platform     platformAcker
	offline      offlineParker
	connectivity connectivityReporter

	deviceMu sync.Mutex
	deviceID string
}

// NewAckPipeline builds the pipeline. offline and connectivity may be nil,
// in which case every send is attempted directly.
func NewAckPipeline(ds database.IDataSource, platform platformAcker, offline offlineParker, connectivity connectivityReporter) *AckPipeline {
	return &AckPipeline{datasource: ds, platform: platform, offline: offline, connectivity: connectivity}
}

// DeviceID returns the persistent identity of this relay instance, creating
// it on first use. A failed lookup is retried on the next call rather than
// latching an empty id for the process lifetime.
func (a *AckPipeline) DeviceID(ctx context.Context) string {
	a.deviceMu.Lock()
	defer a.deviceMu.Unlock()
	if a.deviceID != "" {
		return a.deviceID
	}
	id, err := a.datasource.GetOrCreateDeviceID(ctx)
	if err != nil {
		logrus.Errorf("resolving device id: %v", err)
		return ""
	}
	a.deviceID = id
	return a.deviceID
}

// OrderReceived tells the platform the order reached this device and is
// queued for printing. Success marks the order synced; failure parks the
// acknowledgment for retry.
func (a *AckPipeline) OrderReceived(ctx context.Context, order *model.LocalOrder) {
	ack := model.OrderAck{
		OrderID:   order.RemoteOrderID,
		Status:    model.AckQueuedForPrint,
		DeviceID:  a.DeviceID(ctx),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if a.disconnected() {
		a.parkOffline(ctx, order.OrderID, "order_received_ack", pathReceived, ack)
		return
	}

	if err := a.platform.SendReceived(ctx, ack); err != nil {
		logrus.Warnf("received-ack for order %s failed, parking for retry: %v", order.OrderID, err)
		a.park(ctx, order.OrderID, ack)
		return
	}

	if err := a.datasource.UpdateSyncStatus(ctx, order.OrderID, model.SyncSynced); err != nil {
		logrus.Errorf("marking order %s synced: %v", order.OrderID, err)
	}
}

// OrderPrinted reports a successful print, including how long the print took.
func (a *AckPipeline) OrderPrinted(ctx context.Context, orderID string, duration time.Duration) {
	a.sendOutcome(ctx, orderID, model.AckPrinted, "", duration)
}

// OrderPrintFailed reports that printing exhausted its retries.
func (a *AckPipeline) OrderPrintFailed(ctx context.Context, orderID, reason string) {
	a.sendOutcome(ctx, orderID, model.AckFailed, reason, 0)
}

func (a *AckPipeline) sendOutcome(ctx context.Context, orderID, status, reason string, duration time.Duration) {
	order, err := a.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		logrus.Errorf("loading order %s for %s ack: %v", orderID, status, err)
		return
	}

	ack := model.OrderAck{
		OrderID:       order.RemoteOrderID,
		Status:        status,
		FailureReason: reason,
		DeviceID:      a.DeviceID(ctx),
		DurationMs:    duration.Milliseconds(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	if a.disconnected() {
		a.parkOffline(ctx, orderID, "order_outcome_ack", pathAckSingle, ack)
		return
	}

	if err := a.platform.SendAck(ctx, ack); err != nil {
		logrus.Warnf("%s ack for order %s failed, parking for retry: %v", status, orderID, err)
		a.park(ctx, orderID, ack)
	}
}

// disconnected reports whether the failover manager has given up on every
// transport.
func (a *AckPipeline) disconnected() bool {
	return a.connectivity != nil && a.offline != nil && a.connectivity.Offline()
}

// parkOffline serializes the acknowledgment call into the offline outbound
// queue instead of attempting a send that cannot succeed.
func (a *AckPipeline) parkOffline(ctx context.Context, orderID, opType, path string, ack model.OrderAck) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("parking %s for order %s: %v", opType, orderID, err)
		return
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		logrus.Errorf("encoding %s for order %s: %v", opType, orderID, err)
		return
	}

	headers := map[string]string{
		"X-Api-Key":    conf.Platform.APIKey,
		"Content-Type": "application/json",
	}
	if _, err := a.offline.Enqueue(ctx, opType, http.MethodPost, conf.Platform.BaseURL+path, payload, headers, 0, nil); err != nil {
		notification.NotifyError(err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"op_type":  opType,
	}).Info("offline, ack parked in outbound queue")

	if err := a.datasource.UpdateSyncStatus(ctx, orderID, model.SyncPending); err != nil {
		logrus.Errorf("marking order %s pending: %v", orderID, err)
	}
}

// park persists a failed acknowledgment for the retry timer.
func (a *AckPipeline) park(ctx context.Context, orderID string, ack model.OrderAck) {
	pending := &model.PendingAck{
		AckID:         model.GenerateUUIDWithSuffix("ack"),
		OrderID:       ack.OrderID,
		Status:        ack.Status,
		FailureReason: ack.FailureReason,
		DeviceID:      ack.DeviceID,
		DurationMs:    ack.DurationMs,
		CreatedAt:     time.Now(),
	}
	if _, err := a.datasource.CreatePendingAck(ctx, pending); err != nil {
		notification.NotifyError(err)
		return
	}
	if err := a.datasource.UpdateSyncStatus(ctx, orderID, model.SyncPending); err != nil {
		logrus.Errorf("marking order %s pending: %v", orderID, err)
	}
}

// Run retries parked acknowledgments until the context is cancelled. The
// first pass is delayed so a restart does not hammer a platform that just
// caused a queue to build up.
func (a *AckPipeline) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ackRetryInitialDelay):
	}

	ticker := time.NewTicker(ackRetryInterval)
	defer ticker.Stop()

	for {
		a.RetryPending(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RetryPending attempts one pass over the parked acknowledgments.
func (a *AckPipeline) RetryPending(ctx context.Context) {
	pending, err := a.datasource.GetRetryableAcks(ctx, time.Now(), ackRetryBatchSize)
	if err != nil {
		notification.NotifyError(err)
		return
	}

	for _, p := range pending {
		if err := a.platform.SendAck(ctx, p.ToAck()); err != nil {
			if incErr := a.datasource.IncrementAckRetry(ctx, p.AckID, time.Now()); incErr != nil {
				logrus.Errorf("incrementing retry for ack %s: %v", p.AckID, incErr)
			}
			continue
		}
		if err := a.datasource.DeletePendingAck(ctx, p.AckID); err != nil {
			logrus.Errorf("removing delivered ack %s: %v", p.AckID, err)
		}
		a.markSyncedByRemoteID(ctx, p)
	}
}

// FlushAll delivers every retryable acknowledgment in one batch call.
// Operators use this after a long outage instead of waiting for the timer.
func (a *AckPipeline) FlushAll(ctx context.Context) (int, error) {
	pending, err := a.datasource.GetRetryableAcks(ctx, time.Now(), 1000)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	acks := make([]model.OrderAck, len(pending))
	ids := make([]string, len(pending))
	for i, p := range pending {
		acks[i] = p.ToAck()
		ids[i] = p.AckID
	}

	if err := a.platform.SendAckBatch(ctx, acks); err != nil {
		return 0, err
	}
	if err := a.datasource.DeletePendingAcks(ctx, ids); err != nil {
		return 0, err
	}
	for _, p := range pending {
		a.markSyncedByRemoteID(ctx, p)
	}
	return len(pending), nil
}

// markSyncedByRemoteID flips the order behind a delivered received-ack to
// synced. Outcome acks leave the sync status alone.
func (a *AckPipeline) markSyncedByRemoteID(ctx context.Context, p *model.PendingAck) {
	if p.Status != model.AckQueuedForPrint {
		return
	}
	order, err := a.datasource.GetOrderByRemoteID(ctx, p.OrderID)
	if err != nil {
		logrus.Errorf("loading order for delivered ack %s: %v", p.AckID, err)
		return
	}
	if err := a.datasource.UpdateSyncStatus(ctx, order.OrderID, model.SyncSynced); err != nil {
		logrus.Errorf("marking order %s synced: %v", order.OrderID, err)
	}
}

// PendingCount reports the retry-queue depth for the ops surface.
func (a *AckPipeline) PendingCount(ctx context.Context) (int64, error) {
	return a.datasource.CountPendingAcks(ctx)
}
