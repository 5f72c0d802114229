package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// CreateOrderWithItems inserts a local order and all of its line items in a
// single transaction. A unique violation on remote_order_id surfaces as a
// Conflict error; the ingestion gate treats that as "already ingested".
func (d Datasource) CreateOrderWithItems(ctx context.Context, ord *model.LocalOrder) (*model.LocalOrder, error) {
	ord.OrderID = model.GenerateUUIDWithSuffix("ord")
	ord.CreatedAt = time.Now()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, remote_order_id, display_number, customer_name, customer_phone,
			customer_address, order_type, payment_method, payment_status, subtotal_amount, tax_amount,
			delivery_fee, total_amount, instructions, scheduled_for, status, sync_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, ord.OrderID, ord.RemoteOrderID, ord.DisplayNumber, ord.CustomerName, ord.CustomerPhone,
		ord.CustomerAddress, ord.OrderType, ord.PaymentMethod, ord.PaymentStatus, ord.SubtotalAmount,
		ord.TaxAmount, ord.DeliveryFee, ord.TotalAmount, ord.Instructions, ord.ScheduledFor,
		ord.Status, ord.SyncStatus, ord.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Order with this remote id already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create order", err)
	}

	for i := range ord.Items {
		item := &ord.Items[i]
		modifiersJSON, err := json.Marshal(item.Modifiers)
		if err != nil {
			_ = tx.Rollback()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal modifiers", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, name, quantity, unit_price, modifiers)
			VALUES ($1, $2, $3, $4, $5)
		`, ord.OrderID, item.Name, item.Quantity, item.UnitPrice, modifiersJSON)
		if err != nil {
			_ = tx.Rollback()
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create order item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit order", err)
	}

	return ord, nil
}

// GetOrderByRemoteID retrieves an order by the identifier assigned by the
// platform. This is the dedup lookup on the ingestion path.
func (d Datasource) GetOrderByRemoteID(ctx context.Context, remoteOrderID string) (*model.LocalOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, order_id, remote_order_id, display_number, customer_name, customer_phone,
			customer_address, order_type, payment_method, payment_status, subtotal_amount, tax_amount,
			delivery_fee, total_amount, instructions, scheduled_for, status, sync_status, created_at,
			kitchen_at, preparing_at, ready_at, delivering_at, completed_at, cancelled_at
		FROM orders
		WHERE remote_order_id = $1
	`, remoteOrderID)

	return scanOrder(row)
}

// GetOrderByID retrieves an order by its local identifier, including items.
func (d Datasource) GetOrderByID(ctx context.Context, orderID string) (*model.LocalOrder, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, order_id, remote_order_id, display_number, customer_name, customer_phone,
			customer_address, order_type, payment_method, payment_status, subtotal_amount, tax_amount,
			delivery_fee, total_amount, instructions, scheduled_for, status, sync_status, created_at,
			kitchen_at, preparing_at, ready_at, delivering_at, completed_at, cancelled_at
		FROM orders
		WHERE order_id = $1
	`, orderID)

	ord, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	items, err := d.getOrderItems(ctx, ord.OrderID)
	if err != nil {
		return nil, err
	}
	ord.Items = items
	return ord, nil
}

// GetOrders lists orders, newest first.
func (d Datasource) GetOrders(ctx context.Context, limit, offset int) ([]*model.LocalOrder, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, order_id, remote_order_id, display_number, customer_name, customer_phone,
			customer_address, order_type, payment_method, payment_status, subtotal_amount, tax_amount,
			delivery_fee, total_amount, instructions, scheduled_for, status, sync_status, created_at,
			kitchen_at, preparing_at, ready_at, delivering_at, completed_at, cancelled_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve orders", err)
	}
	defer rows.Close()

	var orders []*model.LocalOrder
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, ord)
	}
	return orders, nil
}

// statusTimestampColumn maps a lifecycle status to the column stamped when an
// order enters it.
var statusTimestampColumn = map[string]string{
	model.StatusKitchen:    "kitchen_at",
	model.StatusPreparing:  "preparing_at",
	model.StatusReady:      "ready_at",
	model.StatusDelivering: "delivering_at",
	model.StatusCompleted:  "completed_at",
	model.StatusCancelled:  "cancelled_at",
}

// UpdateOrderStatus advances an order's lifecycle status and stamps the
// transition timestamp. Legality of the transition is checked by the caller
// against the loaded order; the WHERE clause re-checks that the order has not
// reached a terminal state in the meantime.
func (d Datasource) UpdateOrderStatus(ctx context.Context, orderID, status string, at time.Time) error {
	column, ok := statusTimestampColumn[status]
	if !ok {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Unknown order status "+status, nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, `+column+` = $3
		WHERE order_id = $1 AND status NOT IN ($4, $5)
	`, orderID, status, at, model.StatusCompleted, model.StatusCancelled)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Order not found or already terminal", nil)
	}
	return nil
}

// UpdateSyncStatus records whether the platform has acknowledged the order.
func (d Datasource) UpdateSyncStatus(ctx context.Context, orderID, syncStatus string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders SET sync_status = $2 WHERE order_id = $1
	`, orderID, syncStatus)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update sync status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Order not found", nil)
	}
	return nil
}

func (d Datasource) getOrderItems(ctx context.Context, orderID string) ([]model.LocalOrderItem, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, name, quantity, unit_price, modifiers
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order items", err)
	}
	defer rows.Close()

	var items []model.LocalOrderItem
	for rows.Next() {
		var item model.LocalOrderItem
		var modifiersJSON []byte
		err = rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.UnitPrice, &modifiersJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order item", err)
		}
		if len(modifiersJSON) > 0 {
			if err := json.Unmarshal(modifiersJSON, &item.Modifiers); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal modifiers", err)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.LocalOrder, error) {
	ord := &model.LocalOrder{}
	var phone, address, paymentMethod, paymentStatus, instructions, displayNumber sql.NullString
	var scheduledFor, kitchenAt, preparingAt, readyAt, deliveringAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&ord.ID, &ord.OrderID, &ord.RemoteOrderID, &displayNumber, &ord.CustomerName, &phone,
		&address, &ord.OrderType, &paymentMethod, &paymentStatus, &ord.SubtotalAmount, &ord.TaxAmount,
		&ord.DeliveryFee, &ord.TotalAmount, &instructions, &scheduledFor, &ord.Status, &ord.SyncStatus,
		&ord.CreatedAt, &kitchenAt, &preparingAt, &readyAt, &deliveringAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Order not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order", err)
	}

	ord.DisplayNumber = displayNumber.String
	ord.CustomerPhone = phone.String
	ord.CustomerAddress = address.String
	ord.PaymentMethod = paymentMethod.String
	ord.PaymentStatus = paymentStatus.String
	ord.Instructions = instructions.String
	ord.ScheduledFor = nullTimePtr(scheduledFor)
	ord.KitchenAt = nullTimePtr(kitchenAt)
	ord.PreparingAt = nullTimePtr(preparingAt)
	ord.ReadyAt = nullTimePtr(readyAt)
	ord.DeliveringAt = nullTimePtr(deliveringAt)
	ord.CompletedAt = nullTimePtr(completedAt)
	ord.CancelledAt = nullTimePtr(cancelledAt)
	return ord, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}
