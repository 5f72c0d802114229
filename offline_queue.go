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
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/internal/notification"
	"github.com/tablelink/relay/internal/request"
	"github.com/tablelink/relay/model"
)

const (
	offlineDrainInterval = 30 * time.Second
	offlineDrainLimit    = 50
	offlineCallTimeout   = 15 * time.Second
	offlineBodyLimit     = 4 << 10
)

// OfflineQueue is the durable store for outbound HTTP calls made while the
// network is down. Any component can park a call here; a timer replays them
// oldest-first within priority once connectivity returns. Replay is
// at-least-once: the receiving endpoints must tolerate duplicates.
type OfflineQueue struct {
	datasource database.IDataSource
	mu         sync.Mutex
}

// NewOfflineQueue builds the queue over the given store.
func NewOfflineQueue(ds database.IDataSource) *OfflineQueue {
	return &OfflineQueue{datasource: ds}
}

// Enqueue parks an outbound call. Priority zero drains first. A nil
// scheduledAt means the item is due immediately; a future time holds it back
// until then.
func (o *OfflineQueue) Enqueue(ctx context.Context, opType, method, endpoint string, payload []byte, headers map[string]string, priority int, scheduledAt *time.Time) (*model.OfflineQueueItem, error) {
	maxRetries := model.DefaultOfflineMaxRetries
	if conf, err := config.Fetch(); err == nil {
		maxRetries = conf.Queue.OfflineMaxRetries
	}

	item := &model.OfflineQueueItem{
		ItemID:      model.GenerateUUIDWithSuffix("out"),
		OpType:      opType,
		Endpoint:    endpoint,
		Method:      method,
		Payload:     payload,
		Headers:     headers,
		Priority:    priority,
		Status:      model.OfflinePending,
		MaxRetries:  maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
	return o.datasource.EnqueueOfflineItem(ctx, item)
}

// Run drains the queue on a timer until the context is cancelled.
func (o *OfflineQueue) Run(ctx context.Context) error {
	ticker := time.NewTicker(offlineDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.Drain(ctx)
		}
	}
}

// Drain replays due items once. Overlapping drains collapse to one; an item
// claimed by a concurrent drain is skipped via the guarded status update.
func (o *OfflineQueue) Drain(ctx context.Context) {
	if !o.mu.TryLock() {
		return
	}
	defer o.mu.Unlock()

	items, err := o.datasource.GetDueOfflineItems(ctx, time.Now(), offlineDrainLimit)
	if err != nil {
		notification.NotifyError(err)
		return
	}

	for _, item := range items {
		if err := o.datasource.MarkOfflineItemProcessing(ctx, item.ItemID); err != nil {
			continue
		}
		o.deliver(ctx, item)
	}

	o.cleanup(ctx)
}

// deliver executes one parked call and records the outcome.
func (o *OfflineQueue) deliver(ctx context.Context, item *model.OfflineQueueItem) {
	req, err := http.NewRequestWithContext(ctx, item.Method, item.Endpoint, bytes.NewReader(item.Payload))
	if err != nil {
		if _, failErr := o.datasource.FailOfflineItem(ctx, item.ItemID, err.Error()); failErr != nil {
			logrus.Errorf("recording failure for offline item %s: %v", item.ItemID, failErr)
		}
		return
	}
	for k, v := range item.Headers {
		req.Header.Set(k, v)
	}

	resp, err := request.CallRaw(req, offlineCallTimeout)
	if err != nil {
		retries, failErr := o.datasource.FailOfflineItem(ctx, item.ItemID, err.Error())
		if failErr != nil {
			logrus.Errorf("recording failure for offline item %s: %v", item.ItemID, failErr)
			return
		}
		logrus.WithFields(logrus.Fields{
			"item_id":     item.ItemID,
			"op_type":     item.OpType,
			"retry_count": retries,
		}).Warnf("offline replay failed: %v", err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, offlineBodyLimit))
	if resp.StatusCode >= http.StatusBadRequest {
		if _, failErr := o.datasource.FailOfflineItem(ctx, item.ItemID, resp.Status); failErr != nil {
			logrus.Errorf("recording failure for offline item %s: %v", item.ItemID, failErr)
		}
		return
	}

	if err := o.datasource.MarkOfflineItemSent(ctx, item.ItemID, resp.StatusCode, string(body)); err != nil {
		logrus.Errorf("marking offline item %s sent: %v", item.ItemID, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"item_id": item.ItemID,
		"op_type": item.OpType,
		"status":  resp.StatusCode,
	}).Info("offline item replayed")
}

// cleanup removes delivered items past the retention window.
func (o *OfflineQueue) cleanup(ctx context.Context) {
	conf, err := config.Fetch()
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -conf.Queue.RetentionDays)
	if n, err := o.datasource.CleanupSentItems(ctx, cutoff); err != nil {
		logrus.Errorf("cleaning up sent offline items: %v", err)
	} else if n > 0 {
		logrus.Infof("cleaned up %d delivered offline items", n)
	}
}
