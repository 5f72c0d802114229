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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/model"
)

type fakeTransport struct {
	err     error
	printed [][]byte
}

func (f *fakeTransport) Print(_ context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.printed = append(f.printed, payload)
	return nil
}

type fakeReporter struct {
	printed []string
	failed  []string
}

func (f *fakeReporter) OrderPrinted(_ context.Context, orderID string, _ time.Duration) {
	f.printed = append(f.printed, orderID)
}

func (f *fakeReporter) OrderPrintFailed(_ context.Context, orderID, _ string) {
	f.failed = append(f.failed, orderID)
}

func testPool(transport PrinterTransport) *PrinterPool {
	pool := NewPrinterPool(&config.Configuration{
		Printing: config.PrintingConfig{
			Printers: []config.PrinterConfig{
				{PrinterID: "front", Address: "192.168.1.50:9100", Kind: model.JobKindReceipt, Enabled: true},
			},
		},
	})
	pool.Set("front", model.JobKindReceipt, transport)
	return pool
}

func printJobColumns() []string {
	return []string{"id", "job_id", "order_id", "printer_id", "job_kind", "payload", "status",
		"retry_count", "max_retries", "last_error", "created_at", "last_attempt_at"}
}

func TestPrintQueueCompletesDueJob(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	transport := &fakeTransport{}
	reporter := &fakeReporter{}
	bus := NewEventBus()
	q := NewPrintQueue(datasource, testPool(transport), reporter, bus, 30*time.Second)

	completed := make(chan Event, 1)
	bus.Subscribe(func(evt Event) {
		if evt.Event == EventPrintJobCompleted {
			completed <- evt
		}
	})

	rows := sqlmock.NewRows(printJobColumns()).
		AddRow(1, "job_1", "ord_1", "front", model.JobKindReceipt, []byte("RECEIPT"), model.PrintPending,
			0, 5, nil, time.Now(), nil)
	mock.ExpectQuery("SELECT .* FROM print_jobs").WillReturnRows(rows)
	mock.ExpectExec("UPDATE print_jobs SET status = (.+), last_attempt_at =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE print_jobs SET status =").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q.ProcessDue(context.Background())

	assert.Len(t, transport.printed, 1)
	assert.Equal(t, []byte("RECEIPT"), transport.printed[0])
	assert.Equal(t, []string{"ord_1"}, reporter.printed)
	assert.Empty(t, reporter.failed)

	select {
	case evt := <-completed:
		payload := evt.Payload.(map[string]string)
		assert.Equal(t, "job_1", payload["job_id"])
		assert.Equal(t, "ord_1", payload["order_id"])
		assert.Equal(t, "front", payload["printer_id"])
	case <-time.After(time.Second):
		t.Fatal("expected a print job completed event")
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintQueueHonorsBackoffWindow(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	transport := &fakeTransport{}
	q := NewPrintQueue(datasource, testPool(transport), &fakeReporter{}, NewEventBus(), 30*time.Second)

	// Two prior failures mean a 120s wait; the last attempt was seconds ago.
	lastAttempt := time.Now().Add(-10 * time.Second)
	rows := sqlmock.NewRows(printJobColumns()).
		AddRow(1, "job_1", "ord_1", "front", model.JobKindReceipt, []byte("RECEIPT"), model.PrintFailed,
			2, 5, "printer unreachable", time.Now().Add(-5*time.Minute), lastAttempt)
	mock.ExpectQuery("SELECT .* FROM print_jobs").WillReturnRows(rows)

	q.ProcessDue(context.Background())

	assert.Empty(t, transport.printed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintQueueBackoffGrowsExponentially(t *testing.T) {
	base := 30 * time.Second
	created := time.Now().Add(-time.Hour)

	job := &model.PrintJob{RetryCount: 0, CreatedAt: created}
	assert.True(t, job.BackoffDue(time.Now(), base))

	attempt := time.Now().Add(-45 * time.Second)
	job = &model.PrintJob{RetryCount: 1, LastAttemptAt: &attempt}
	// retry 1 waits 60s; 45s elapsed is not enough.
	assert.False(t, job.BackoffDue(time.Now(), base))

	attempt = time.Now().Add(-3 * time.Minute)
	job = &model.PrintJob{RetryCount: 2, LastAttemptAt: &attempt}
	// retry 2 waits 120s; 3 minutes elapsed is.
	assert.True(t, job.BackoffDue(time.Now(), base))
}

func TestPrintQueueDeadLettersAtRetryCap(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	transport := &fakeTransport{err: errors.Wrap(ErrPrinterUnreachable, "dial 192.168.1.50:9100")}
	reporter := &fakeReporter{}
	q := NewPrintQueue(datasource, testPool(transport), reporter, NewEventBus(), 30*time.Second)

	lastAttempt := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows(printJobColumns()).
		AddRow(1, "job_1", "ord_1", "front", model.JobKindReceipt, []byte("RECEIPT"), model.PrintFailed,
			4, 5, "printer unreachable", time.Now().Add(-2*time.Hour), lastAttempt)
	mock.ExpectQuery("SELECT .* FROM print_jobs").WillReturnRows(rows)
	mock.ExpectExec("UPDATE print_jobs SET status = (.+), last_attempt_at =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE print_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(5))

	q.ProcessDue(context.Background())

	assert.Equal(t, []string{"ord_1"}, reporter.failed)
	assert.Empty(t, reporter.printed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryAllFailedRevivesDeadLetters(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	q := NewPrintQueue(datasource, testPool(&fakeTransport{}), &fakeReporter{}, NewEventBus(), 30*time.Second)

	mock.ExpectExec("UPDATE print_jobs").
		WillReturnResult(sqlmock.NewResult(0, 3))

	revived, err := q.RetryAllFailed(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(3), revived)
	assert.NoError(t, mock.ExpectationsWereMet())
}
