package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zerosync/internal/domain"

	"github.com/lib/pq"
)

// PostgresSystemRecordsRepository system_records access for one database.
type PostgresSystemRecordsRepository struct {
	db   *sql.DB
	name string
}

// NewPostgresSystemRecordsRepository binds a repository to one database.
// name is the logical database name used in log and error messages.
func NewPostgresSystemRecordsRepository(db *sql.DB, name string) *PostgresSystemRecordsRepository {
	return &PostgresSystemRecordsRepository{db: db, name: name}
}

var _ SystemRecordsRepository = (*PostgresSystemRecordsRepository)(nil)

// Name returns the logical database name this repository is bound to.
func (r *PostgresSystemRecordsRepository) Name() string { return r.name }

const recordColumns = `
	id, serialnumber, COALESCE(computername, ''), COALESCE(manufacturer, ''),
	COALESCE(model, ''), COALESCE(systemsku, ''), COALESCE(operatingsystem, ''),
	COALESCE(cpu, ''), COALESCE(resolution, ''), COALESCE(graphicscard, ''),
	COALESCE(touchscreen, 'unknown'), COALESCE(ram_gb, 0), COALESCE(disks, ''),
	COALESCE(design_capacity, ''), COALESCE(full_charge_capacity, ''),
	COALESCE(cycle_count, ''), COALESCE(battery_health, ''),
	created_at, last_updated_at, is_current,
	COALESCE(sync_status, 'pending'), COALESCE(sync_version::text, ''), last_sync_time`

func scanRecord(row interface{ Scan(...any) error }) (*domain.SystemRecord, error) {
	rec := &domain.SystemRecord{}
	var lastSync sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.SerialNumber, &rec.ComputerName, &rec.Manufacturer,
		&rec.Model, &rec.SystemSKU, &rec.OperatingSystem,
		&rec.CPU, &rec.Resolution, &rec.GraphicsCard,
		&rec.Touchscreen, &rec.RAMGB, &rec.Disks,
		&rec.DesignCapacity, &rec.FullChargeCapacity,
		&rec.CycleCount, &rec.BatteryHealth,
		&rec.ObservedAt, &rec.LastUpdatedAt, &rec.IsCurrent,
		&rec.SyncStatus, &rec.SyncVersion, &lastSync,
	)
	if err != nil {
		return nil, err
	}
	if lastSync.Valid {
		rec.LastSyncTime = &lastSync.Time
	}
	return rec, nil
}

func (r *PostgresSystemRecordsRepository) Snapshot(ctx context.Context) (*domain.DatabaseSnapshot, error) {
	snap := &domain.DatabaseSnapshot{Serials: make(map[string]struct{})}

	rows, err := r.db.QueryContext(ctx, `SELECT serialnumber FROM system_records`)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load serial set: %w", r.name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var serial string
		if err := rows.Scan(&serial); err != nil {
			return nil, fmt.Errorf("%s: failed to scan serial: %w", r.name, err)
		}
		snap.Serials[serial] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to iterate serials: %w", r.name, err)
	}

	var watermark sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at), COUNT(*) FROM system_records`,
	).Scan(&watermark, &snap.RowCount)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load watermark: %w", r.name, err)
	}
	if watermark.Valid {
		snap.Watermark = watermark.Time
	}
	return snap, nil
}

// InsertIfAbsent runs one row in its own transaction: duplicate check on
// (serialnumber, created_at), insert, commit. Any failure rolls back this row
// only; the caller continues with the rest of the batch.
func (r *PostgresSystemRecordsRepository) InsertIfAbsent(ctx context.Context, rec *domain.SystemRecord) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%s: failed to begin tx: %w", r.name, err)
	}

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM system_records WHERE serialnumber = $1 AND created_at = $2`,
		rec.SerialNumber, rec.ObservedAt,
	).Scan(&existingID)
	if err == nil {
		tx.Rollback()
		return existingID, false, nil
	}
	if err != sql.ErrNoRows {
		tx.Rollback()
		return 0, false, fmt.Errorf("%s: duplicate check failed for %s: %w", r.name, rec.SerialNumber, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO system_records (
			serialnumber, computername, manufacturer, model, systemsku,
			operatingsystem, cpu, resolution, graphicscard, touchscreen,
			ram_gb, disks, design_capacity, full_charge_capacity,
			cycle_count, battery_health, created_at, last_updated_at,
			is_current, sync_status
		) VALUES (
			$1, NULLIF($2, ''), $3, $4, NULLIF($5, ''),
			$6, $7, NULLIF($8, ''), $9, $10,
			$11, $12, NULLIF($13, ''), NULLIF($14, ''),
			NULLIF($15, ''), NULLIF($16, ''), $17, NOW(),
			true, 'pending'
		) RETURNING id`,
		rec.SerialNumber, rec.ComputerName, rec.Manufacturer, rec.Model, rec.SystemSKU,
		rec.OperatingSystem, rec.CPU, rec.Resolution, rec.GraphicsCard, rec.Touchscreen,
		rec.RAMGB, rec.Disks, rec.DesignCapacity, rec.FullChargeCapacity,
		rec.CycleCount, rec.BatteryHealth, rec.ObservedAt,
	).Scan(&id)
	if err != nil {
		tx.Rollback()
		return 0, false, fmt.Errorf("%s: insert failed for %s: %w", r.name, rec.SerialNumber, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("%s: commit failed for %s: %w", r.name, rec.SerialNumber, err)
	}
	rec.ID = id
	return id, true, nil
}

func (r *PostgresSystemRecordsRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM system_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: count failed: %w", r.name, err)
	}
	return count, nil
}

func (r *PostgresSystemRecordsRepository) LatestBySerial(ctx context.Context, serial string) (*domain.SystemRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM system_records
		WHERE serialnumber = $1
		ORDER BY created_at DESC
		LIMIT 1`, serial))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load latest for %s: %w", r.name, serial, err)
	}
	return rec, nil
}

func (r *PostgresSystemRecordsRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SystemRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM system_records
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list records: %w", r.name, err)
	}
	defer rows.Close()

	var records []*domain.SystemRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan record: %w", r.name, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresSystemRecordsRepository) GetSyncStats(ctx context.Context) (*domain.SyncStats, error) {
	stats := &domain.SyncStats{}
	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE sync_status = 'synced'),
			COUNT(*) FILTER (WHERE sync_status = 'pending'),
			COALESCE(MAX(sync_version), 0.0)::text,
			MAX(last_sync_time)
		FROM system_records`,
	).Scan(&stats.TotalRecords, &stats.SyncedRecords, &stats.PendingRecords,
		&stats.LatestVersion, &lastSync)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load sync stats: %w", r.name, err)
	}
	if lastSync.Valid {
		stats.LastSyncTime = &lastSync.Time
	}
	return stats, nil
}

func (r *PostgresSystemRecordsRepository) MarkSynced(ctx context.Context, ids []int64, version string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE system_records
		SET sync_status = 'synced',
		    sync_version = $1::numeric,
		    last_sync_time = NOW()
		WHERE id = ANY($2)`,
		version, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("%s: failed to mark %d rows synced: %w", r.name, len(ids), err)
	}
	return nil
}

// ClaimPending selects the next pending batch FOR UPDATE SKIP LOCKED inside a
// transaction that stays open until MarkSynced or Release. A concurrent
// worker running the same query skips this batch's rows entirely, so a record
// is never double-submitted to the ERP.
func (r *PostgresSystemRecordsRepository) ClaimPending(ctx context.Context, batchSize int) (PendingClaim, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin claim tx: %w", r.name, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM system_records
		WHERE sync_status = 'pending'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, batchSize)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%s: failed to claim pending rows: %w", r.name, err)
	}
	defer rows.Close()

	var records []*domain.SystemRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("%s: failed to scan pending row: %w", r.name, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%s: failed to iterate pending rows: %w", r.name, err)
	}

	return &postgresClaim{tx: tx, name: r.name, records: records}, nil
}

type postgresClaim struct {
	tx      *sql.Tx
	name    string
	records []*domain.SystemRecord
	done    bool
}

func (c *postgresClaim) Records() []*domain.SystemRecord { return c.records }

func (c *postgresClaim) MarkSynced(ctx context.Context, version string) error {
	if c.done {
		return fmt.Errorf("%s: claim already settled", c.name)
	}
	ids := make([]int64, len(c.records))
	for i, rec := range c.records {
		ids[i] = rec.ID
	}
	_, err := c.tx.ExecContext(ctx, `
		UPDATE system_records
		SET sync_status = 'synced',
		    sync_version = $1::numeric,
		    last_sync_time = NOW()
		WHERE id = ANY($2)`,
		version, pq.Array(ids))
	if err != nil {
		c.tx.Rollback()
		c.done = true
		return fmt.Errorf("%s: failed to mark %d rows synced: %w", c.name, len(ids), err)
	}
	if err := c.tx.Commit(); err != nil {
		c.done = true
		return fmt.Errorf("%s: failed to commit synced batch: %w", c.name, err)
	}
	c.done = true
	for _, rec := range c.records {
		rec.SyncStatus = domain.SyncStatusSynced
		rec.SyncVersion = version
		now := time.Now()
		rec.LastSyncTime = &now
	}
	return nil
}

func (c *postgresClaim) Release() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.tx.Rollback()
}
