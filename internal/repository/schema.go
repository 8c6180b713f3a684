package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are idempotent and applied to both databases at startup.
// Battery columns are text: dual-battery machines report comma-joined pairs
// that a numeric column would destroy.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS system_records (
		id SERIAL PRIMARY KEY,
		serialnumber VARCHAR(100) NOT NULL,
		computername VARCHAR(200),
		manufacturer VARCHAR(200),
		model VARCHAR(200),
		systemsku TEXT,
		operatingsystem TEXT,
		cpu TEXT,
		resolution VARCHAR(100),
		graphicscard TEXT,
		touchscreen VARCHAR(100),
		ram_gb NUMERIC,
		disks TEXT,
		design_capacity TEXT,
		full_charge_capacity TEXT,
		cycle_count TEXT,
		battery_health TEXT,
		created_at TIMESTAMP NOT NULL,
		last_updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		is_current BOOLEAN DEFAULT true
	)`,
	`ALTER TABLE system_records
		ADD COLUMN IF NOT EXISTS sync_status VARCHAR(20) DEFAULT 'pending',
		ADD COLUMN IF NOT EXISTS last_sync_time TIMESTAMP,
		ADD COLUMN IF NOT EXISTS sync_version NUMERIC DEFAULT 1.0,
		ADD COLUMN IF NOT EXISTS last_updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP`,
	`CREATE INDEX IF NOT EXISTS idx_system_records_serial_created
		ON system_records(serialnumber, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_system_records_sync_status
		ON system_records(sync_status)`,
	`CREATE INDEX IF NOT EXISTS idx_system_records_sync_version
		ON system_records(sync_version)`,
	`CREATE INDEX IF NOT EXISTS idx_system_records_last_sync_time
		ON system_records(last_sync_time)`,
	`CREATE TABLE IF NOT EXISTS product_keys (
		id SERIAL PRIMARY KEY,
		computername VARCHAR(200) NOT NULL,
		windowsos_new TEXT,
		productkey_new VARCHAR(200) NOT NULL,
		serialnumber VARCHAR(100),
		status VARCHAR(50),
		created_at TIMESTAMP,
		activation_date TIMESTAMP,
		last_check_date TIMESTAMP,
		is_current BOOLEAN DEFAULT true,
		CONSTRAINT product_keys_computer_key UNIQUE (computername, productkey_new)
	)`,
}

// EnsureSchema applies the schema statements to one database.
func EnsureSchema(ctx context.Context, db *sql.DB, name string) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: schema bootstrap failed: %w", name, err)
		}
	}
	return nil
}
