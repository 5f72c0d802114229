package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// CreatePrintJob enqueues a new print job.
func (d Datasource) CreatePrintJob(ctx context.Context, job *model.PrintJob) (*model.PrintJob, error) {
	job.JobID = model.GenerateUUIDWithSuffix("job")
	job.Status = model.PrintPending
	job.CreatedAt = time.Now()
	if job.MaxRetries <= 0 {
		job.MaxRetries = model.DefaultPrintMaxRetries
	}

	var orderID interface{}
	if job.OrderID != "" {
		orderID = job.OrderID
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO print_jobs (job_id, order_id, printer_id, job_kind, payload, status, retry_count, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.JobID, orderID, job.PrinterID, job.JobKind, job.Payload, job.Status, job.RetryCount, job.MaxRetries, job.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create print job", err)
	}
	return job, nil
}

// GetPrintJob retrieves a job by its ID.
func (d Datasource) GetPrintJob(ctx context.Context, jobID string) (*model.PrintJob, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, job_id, order_id, printer_id, job_kind, payload, status, retry_count, max_retries,
			last_error, created_at, last_attempt_at
		FROM print_jobs
		WHERE job_id = $1
	`, jobID)
	return scanPrintJob(row)
}

// GetRetryablePrintJobs fetches pending or failed jobs still under their retry
// cap whose target printer is currently enabled, oldest first. The exponential
// backoff window is evaluated by the caller so that the due check uses one
// clock for the whole batch.
func (d Datasource) GetRetryablePrintJobs(ctx context.Context, enabledPrinters []string, limit int) ([]*model.PrintJob, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, job_id, order_id, printer_id, job_kind, payload, status, retry_count, max_retries,
			last_error, created_at, last_attempt_at
		FROM print_jobs
		WHERE status IN ($1, $2)
			AND retry_count < max_retries
			AND printer_id = ANY($3)
		ORDER BY created_at
		LIMIT $4
	`, model.PrintPending, model.PrintFailed, pq.Array(enabledPrinters), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve print jobs", err)
	}
	defer rows.Close()

	var jobs []*model.PrintJob
	for rows.Next() {
		job, err := scanPrintJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// MarkPrintJobPrinting marks a job as in-flight and stamps the attempt time.
func (d Datasource) MarkPrintJobPrinting(ctx context.Context, jobID string, at time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE print_jobs SET status = $2, last_attempt_at = $3 WHERE job_id = $1
	`, jobID, model.PrintPrinting, at)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark print job printing", err)
	}
	return checkAffected(result, "Print job not found")
}

// CompletePrintJob marks a job completed.
func (d Datasource) CompletePrintJob(ctx context.Context, jobID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE print_jobs SET status = $2 WHERE job_id = $1
	`, jobID, model.PrintCompleted)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete print job", err)
	}
	return checkAffected(result, "Print job not found")
}

// FailPrintJob records a failed attempt: increments the retry count, stores
// the error and returns the new count so the caller can detect dead-letter.
func (d Datasource) FailPrintJob(ctx context.Context, jobID, reason string, at time.Time) (int, error) {
	var retryCount int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE print_jobs
		SET status = $2, retry_count = retry_count + 1, last_error = $3, last_attempt_at = $4
		WHERE job_id = $1
		RETURNING retry_count
	`, jobID, model.PrintFailed, reason, at).Scan(&retryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "Print job not found", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record print job failure", err)
	}
	return retryCount, nil
}

// ResetFailedPrintJobs is the operator "retry all failed" action: dead-lettered
// jobs get their counters cleared and re-enter the queue as pending.
func (d Datasource) ResetFailedPrintJobs(ctx context.Context) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE print_jobs
		SET status = $1, retry_count = 0, last_error = ''
		WHERE status = $2 AND retry_count >= max_retries
	`, model.PrintPending, model.PrintFailed)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset failed print jobs", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected, nil
}

// CountPrintJobsByStatus returns the number of jobs in the given status.
func (d Datasource) CountPrintJobsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM print_jobs WHERE status = $1
	`, status).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count print jobs", err)
	}
	return count, nil
}

func scanPrintJob(row rowScanner) (*model.PrintJob, error) {
	job := &model.PrintJob{}
	var orderID, lastError sql.NullString
	var lastAttemptAt sql.NullTime

	err := row.Scan(&job.ID, &job.JobID, &orderID, &job.PrinterID, &job.JobKind, &job.Payload,
		&job.Status, &job.RetryCount, &job.MaxRetries, &lastError, &job.CreatedAt, &lastAttemptAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Print job not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan print job", err)
	}

	job.OrderID = orderID.String
	job.LastError = lastError.String
	job.LastAttemptAt = nullTimePtr(lastAttemptAt)
	return job, nil
}

func checkAffected(result sql.Result, notFoundMsg string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, notFoundMsg, nil)
	}
	return nil
}
