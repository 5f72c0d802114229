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
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/model"
)

const (
	tailInterval  = 500 * time.Millisecond
	tailBatchSize = 20
)

// transportSelector reports which transport is currently authoritative.
type transportSelector interface {
	Active() model.TransportType
}

// TailingChannel reads the platform's own order tables over a direct
// read-only MySQL connection. It is the lowest-latency channel and the first
// to be preferred when its connection is healthy, but it only tails while the
// failover manager has the database transport selected; on any other
// transport the ticker no-ops and polling carries the load.
type TailingChannel struct {
	gate     ingester
	selector transportSelector

	mu       sync.Mutex
	db       *sql.DB
	lastSeen time.Time
	tenant   string
}

// NewTailingChannel builds the channel. The connection is opened lazily on
// the first tick so a down platform DB never blocks startup.
func NewTailingChannel(gate ingester, selector transportSelector) *TailingChannel {
	return &TailingChannel{gate: gate, selector: selector}
}

// Run tails the platform tables until the context is cancelled.
func (c *TailingChannel) Run(ctx context.Context) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if !conf.PlatformDatabase.Enabled {
		logrus.Info("tailing channel disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	c.tenant = conf.Platform.TenantSlug

	// Start the window at now: everything older is polling's problem.
	c.lastSeen = time.Now()

	ticker := time.NewTicker(tailInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeDB()
			return ctx.Err()
		case <-ticker.C:
			if err := c.TailOnce(ctx); err != nil {
				logrus.Debugf("tailing: %v", err)
			}
		}
	}
}

// TailOnce fetches rows committed since the last seen timestamp and offers
// them to the gate. A tick that arrives while the previous one is still
// running, or while another transport is authoritative, is a no-op.
func (c *TailingChannel) TailOnce(ctx context.Context) error {
	if !c.mu.TryLock() {
		return nil
	}
	defer c.mu.Unlock()

	if c.selector.Active() != model.TransportDatabase {
		return nil
	}

	db, err := c.connLocked()
	if err != nil {
		return err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, order_number, customer_name, customer_phone, customer_address,
		       order_type, payment_method, payment_status, voucher_code,
		       subtotal, tax, delivery_fee, total, instructions, scheduled_at, created_at
		FROM orders
		WHERE tenant_slug = ? AND status = 'confirmed' AND created_at > ?
		ORDER BY created_at ASC
		LIMIT ?`, c.tenant, c.lastSeen, tailBatchSize)
	if err != nil {
		return errors.Wrap(err, "querying platform orders")
	}
	defer rows.Close()

	var found []model.RemoteOrder
	for rows.Next() {
		var (
			remote                                 model.RemoteOrder
			phone, address, voucher, instructions  sql.NullString
			scheduled                              sql.NullTime
		)
		err := rows.Scan(&remote.OrderID, &remote.DisplayNumber, &remote.CustomerName,
			&phone, &address, &remote.OrderType, &remote.PaymentMethod, &remote.PaymentStatus,
			&voucher, &remote.Subtotal, &remote.Tax, &remote.DeliveryFee, &remote.Total,
			&instructions, &scheduled, &remote.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "scanning platform order")
		}
		remote.CustomerPhone = phone.String
		remote.CustomerAddress = address.String
		remote.VoucherCode = voucher.String
		remote.Instructions = instructions.String
		if scheduled.Valid {
			t := scheduled.Time
			remote.ScheduledAt = &t
		}
		found = append(found, remote)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating platform orders")
	}

	for i := range found {
		remote := &found[i]
		if err := c.loadItems(ctx, db, remote); err != nil {
			return err
		}
		result, _, err := c.gate.Ingest(ctx, remote, model.TransportDatabase)
		if result == IngestFailed {
			// Local store trouble; stop here and re-read this window next
			// tick.
			return err
		}
		if remote.CreatedAt.After(c.lastSeen) {
			c.lastSeen = remote.CreatedAt
		}
	}
	return nil
}

// loadItems fills in the order's line items and their addons.
func (c *TailingChannel) loadItems(ctx context.Context, db *sql.DB, remote *model.RemoteOrder) error {
	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.name, i.quantity, i.price
		FROM order_items i
		WHERE i.order_id = ?
		ORDER BY i.id ASC`, remote.OrderID)
	if err != nil {
		return errors.Wrap(err, "querying platform order items")
	}
	defer rows.Close()

	type rawItem struct {
		id   int64
		item model.RemoteOrderItem
	}
	var raws []rawItem
	for rows.Next() {
		var r rawItem
		if err := rows.Scan(&r.id, &r.item.Name, &r.item.Quantity, &r.item.Price); err != nil {
			return errors.Wrap(err, "scanning platform order item")
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range raws {
		addonRows, err := db.QueryContext(ctx, `
			SELECT name, price FROM order_item_addons WHERE item_id = ? ORDER BY id ASC`, raws[i].id)
		if err != nil {
			return errors.Wrap(err, "querying platform item addons")
		}
		for addonRows.Next() {
			var ad model.RemoteAddon
			if err := addonRows.Scan(&ad.Name, &ad.Price); err != nil {
				_ = addonRows.Close()
				return errors.Wrap(err, "scanning platform item addon")
			}
			raws[i].item.Addons = append(raws[i].item.Addons, ad)
		}
		if err := addonRows.Err(); err != nil {
			_ = addonRows.Close()
			return err
		}
		_ = addonRows.Close()
		remote.Items = append(remote.Items, raws[i].item)
	}
	return nil
}

// Ping probes the platform database connection for the health monitor.
func (c *TailingChannel) Ping(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	db, err := c.connLocked()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	err = db.PingContext(ctx)
	return time.Since(start), err
}

// connLocked opens the platform connection on first use. Callers hold c.mu.
func (c *TailingChannel) connLocked() (*sql.DB, error) {
	if c.db != nil {
		return c.db, nil
	}

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	pdb := conf.PlatformDatabase
	if !pdb.Enabled {
		return nil, errors.New("platform database disabled")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&readTimeout=5s",
		pdb.User, pdb.Password, pdb.Host, pdb.Port, pdb.Name)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening platform database")
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Hour)
	c.db = db
	if c.tenant == "" {
		c.tenant = conf.Platform.TenantSlug
	}
	return c.db, nil
}

func (c *TailingChannel) closeDB() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}
