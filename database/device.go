package database

import (
	"context"
	"database/sql"

	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// GetOrCreateDeviceID returns this installation's device identifier,
// generating and persisting one the first time it is asked for. Every ack
// sent to the platform carries it.
func (d Datasource) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	var deviceID string
	err := d.Conn.QueryRowContext(ctx, `
		SELECT device_id FROM devices ORDER BY id LIMIT 1
	`).Scan(&deviceID)
	if err == nil {
		return deviceID, nil
	}
	if err != sql.ErrNoRows {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read device id", err)
	}

	deviceID = model.GenerateUUIDWithSuffix("dev")
	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO devices (device_id) VALUES ($1)
	`, deviceID)
	if err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to persist device id", err)
	}
	return deviceID, nil
}
