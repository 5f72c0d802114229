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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/tablelink/relay/model"
)

func offlineItemColumns() []string {
	return []string{"id", "item_id", "op_type", "endpoint", "method", "payload", "headers", "priority",
		"status", "retry_count", "max_retries", "scheduled_at", "created_at", "response_code",
		"response_body", "last_error"}
}

func TestOfflineEnqueueUsesConfiguredRetryCap(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	mock.ExpectExec("INSERT INTO offline_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	q := NewOfflineQueue(datasource)
	item, err := q.Enqueue(context.Background(), "order_ack", http.MethodPost,
		"https://platform.test/pos/orders/ack", []byte(`{"orderId":"R-1"}`),
		map[string]string{"X-Api-Key": "key-123"}, 1, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.OfflinePending, item.Status)
	assert.Equal(t, 5, item.MaxRetries)
	assert.NotEmpty(t, item.ItemID)
	assert.Nil(t, item.ScheduledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineEnqueueHonorsScheduledAt(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	mock.ExpectExec("INSERT INTO offline_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	due := time.Now().Add(2 * time.Hour)
	q := NewOfflineQueue(datasource)
	item, err := q.Enqueue(context.Background(), "order_ack", http.MethodPost,
		"https://platform.test/pos/orders/ack", []byte(`{"orderId":"R-2"}`),
		nil, 0, &due)
	assert.NoError(t, err)
	assert.Equal(t, &due, item.ScheduledAt)
	assert.False(t, item.Due(time.Now()))
	assert.True(t, item.Due(due.Add(time.Second)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineDrainReplaysDueItem(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	var gotBody []byte
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	rows := sqlmock.NewRows(offlineItemColumns()).
		AddRow(1, "out_1", "order_ack", server.URL, http.MethodPost, []byte(`{"orderId":"R-1"}`),
			[]byte(`{"X-Api-Key":"key-123"}`), 1, model.OfflinePending, 0, 5, nil,
			time.Now().Add(-time.Minute), nil, nil, nil)
	mock.ExpectQuery("SELECT .* FROM offline_queue").WillReturnRows(rows)
	mock.ExpectExec("UPDATE offline_queue SET status =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE offline_queue SET status = (.+), response_code =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM offline_queue").
		WillReturnResult(sqlmock.NewResult(0, 0))

	q := NewOfflineQueue(datasource)
	q.Drain(context.Background())

	assert.Equal(t, `{"orderId":"R-1"}`, string(gotBody))
	assert.Equal(t, "key-123", gotHeader)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineDrainRecordsFailure(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rows := sqlmock.NewRows(offlineItemColumns()).
		AddRow(1, "out_1", "order_ack", server.URL, http.MethodPost, []byte(`{}`),
			nil, 1, model.OfflinePending, 2, 5, nil,
			time.Now().Add(-time.Minute), nil, nil, nil)
	mock.ExpectQuery("SELECT .* FROM offline_queue").WillReturnRows(rows)
	mock.ExpectExec("UPDATE offline_queue SET status =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE offline_queue").
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(3))
	mock.ExpectExec("DELETE FROM offline_queue").
		WillReturnResult(sqlmock.NewResult(0, 0))

	q := NewOfflineQueue(datasource)
	q.Drain(context.Background())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOfflineItemSchedulingWindow(t *testing.T) {
	now := time.Now()

	immediate := &model.OfflineQueueItem{}
	assert.True(t, immediate.Due(now))

	future := now.Add(time.Hour)
	deferred := &model.OfflineQueueItem{ScheduledAt: &future}
	assert.False(t, deferred.Due(now))
	assert.True(t, deferred.Due(future))
}
