package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/tablelink/relay/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createOrderTables(db)
	if err != nil {
		return nil, err
	}
	err = createPrintJobTable(db)
	if err != nil {
		return nil, err
	}
	err = createPendingAckTable(db)
	if err != nil {
		return nil, err
	}
	err = createOfflineQueueTable(db)
	if err != nil {
		return nil, err
	}
	err = createConnectionHealthTable(db)
	if err != nil {
		return nil, err
	}
	err = createDeviceTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createOrderTables creates the local order and line-item tables. The unique
// constraint on remote_order_id is what enforces one local order per remote
// order across all three ingestion channels.
func createOrderTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			remote_order_id TEXT NOT NULL UNIQUE,
			display_number TEXT,
			customer_name TEXT NOT NULL,
			customer_phone TEXT,
			customer_address TEXT,
			order_type TEXT NOT NULL,
			payment_method TEXT,
			payment_status TEXT,
			subtotal_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			tax_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			delivery_fee DECIMAL(12,2) NOT NULL DEFAULT 0,
			total_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			instructions TEXT,
			scheduled_for TIMESTAMP,
			status TEXT NOT NULL,
			sync_status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			kitchen_at TIMESTAMP,
			preparing_at TIMESTAMP,
			ready_at TIMESTAMP,
			delivering_at TIMESTAMP,
			completed_at TIMESTAMP,
			cancelled_at TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(order_id),
			name TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price DECIMAL(12,2) NOT NULL DEFAULT 0,
			modifiers JSONB
		)
	`)
	return err
}

func createPrintJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS print_jobs (
			id SERIAL PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE,
			order_id TEXT REFERENCES orders(order_id),
			printer_id TEXT NOT NULL,
			job_kind TEXT NOT NULL,
			payload BYTEA,
			status TEXT NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_attempt_at TIMESTAMP
		)
	`)
	return err
}

func createPendingAckTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pending_acks (
			id SERIAL PRIMARY KEY,
			ack_id TEXT NOT NULL UNIQUE,
			order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			failure_reason TEXT,
			device_id TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			retry_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_attempt_at TIMESTAMP
		)
	`)
	return err
}

func createOfflineQueueTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS offline_queue (
			id SERIAL PRIMARY KEY,
			item_id TEXT NOT NULL UNIQUE,
			op_type TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			payload BYTEA,
			headers JSONB,
			priority INT NOT NULL DEFAULT 100,
			status TEXT NOT NULL,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL,
			scheduled_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			response_code INT,
			response_body TEXT,
			last_error TEXT
		)
	`)
	return err
}

func createConnectionHealthTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS connection_health (
			id SERIAL PRIMARY KEY,
			transport TEXT NOT NULL UNIQUE,
			is_healthy BOOLEAN NOT NULL DEFAULT FALSE,
			failure_count INT NOT NULL DEFAULT 0,
			success_count INT NOT NULL DEFAULT 0,
			avg_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_check TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createDeviceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS devices (
			id SERIAL PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
