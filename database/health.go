package database

import (
	"context"
	"database/sql"

	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// UpsertConnectionHealth writes the latest health snapshot for a transport.
func (d Datasource) UpsertConnectionHealth(ctx context.Context, h *model.ConnectionHealth) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO connection_health (transport, is_healthy, failure_count, success_count, avg_latency_ms, last_check)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transport) DO UPDATE
		SET is_healthy = $2, failure_count = $3, success_count = $4, avg_latency_ms = $5, last_check = $6
	`, h.Transport, h.IsHealthy, h.FailureCount, h.SuccessCount, h.AvgLatencyMs, h.LastCheck)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert connection health", err)
	}
	return nil
}

// GetConnectionHealth retrieves the stored snapshot for one transport.
func (d Datasource) GetConnectionHealth(ctx context.Context, transport model.TransportType) (*model.ConnectionHealth, error) {
	h := &model.ConnectionHealth{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, transport, is_healthy, failure_count, success_count, avg_latency_ms, last_check
		FROM connection_health
		WHERE transport = $1
	`, transport).Scan(&h.ID, &h.Transport, &h.IsHealthy, &h.FailureCount, &h.SuccessCount, &h.AvgLatencyMs, &h.LastCheck)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Connection health not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve connection health", err)
	}
	return h, nil
}

// GetAllConnectionHealth lists snapshots for every transport.
func (d Datasource) GetAllConnectionHealth(ctx context.Context) ([]*model.ConnectionHealth, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, transport, is_healthy, failure_count, success_count, avg_latency_ms, last_check
		FROM connection_health
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve connection health", err)
	}
	defer rows.Close()

	var snapshots []*model.ConnectionHealth
	for rows.Next() {
		h := &model.ConnectionHealth{}
		err = rows.Scan(&h.ID, &h.Transport, &h.IsHealthy, &h.FailureCount, &h.SuccessCount, &h.AvgLatencyMs, &h.LastCheck)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan connection health", err)
		}
		snapshots = append(snapshots, h)
	}
	return snapshots, nil
}
