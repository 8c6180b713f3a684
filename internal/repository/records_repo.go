package repository

import (
	"context"

	"zerosync/internal/domain"
)

// SystemRecordsRepository data access for hardware snapshots. One instance is
// bound to one database (primary or staging); the dual-database writer runs
// the same unit of work over both.
type SystemRecordsRepository interface {
	// Snapshot loads what the novelty detector needs: the full serial set, the
	// observed_at watermark and the current row count. Row counts are small
	// enough to hold the serial set in memory.
	Snapshot(ctx context.Context) (*domain.DatabaseSnapshot, error)

	// InsertIfAbsent inserts a record inside its own transaction unless a row
	// with the same (serialnumber, observed_at) already exists. Returns the
	// new row id and whether an insert happened.
	InsertIfAbsent(ctx context.Context, rec *domain.SystemRecord) (int64, bool, error)

	// Count returns the current system_records row count.
	Count(ctx context.Context) (int, error)

	// LatestBySerial returns the newest snapshot row for a serial, nil when
	// the serial is unknown.
	LatestBySerial(ctx context.Context, serial string) (*domain.SystemRecord, error)

	// ListRecent returns the newest snapshots for the status surface.
	ListRecent(ctx context.Context, limit int) ([]*domain.SystemRecord, error)

	// GetSyncStats summarizes sync state for health checks.
	GetSyncStats(ctx context.Context) (*domain.SyncStats, error)

	// MarkSynced stamps specific rows synced with the server-returned version.
	// Used by the ingest path, which knows exactly which ids it uploaded.
	MarkSynced(ctx context.Context, ids []int64, version string) error

	// ClaimPending locks up to batchSize pending rows with skip-locked
	// semantics so concurrent workers never claim the same row. The claim
	// holds its row locks until MarkSynced or Release.
	ClaimPending(ctx context.Context, batchSize int) (PendingClaim, error)
}

// PendingClaim is one locked batch of pending rows. Exactly one of MarkSynced
// or Release must be called.
type PendingClaim interface {
	Records() []*domain.SystemRecord

	// MarkSynced stamps the claimed rows synced with the server-returned
	// version and commits, releasing the locks.
	MarkSynced(ctx context.Context, version string) error

	// Release rolls back, leaving every claimed row pending for the next
	// pass.
	Release() error
}

// ProductKeysRepository data access for windows activation keys.
type ProductKeysRepository interface {
	// Upsert inserts or refreshes a key, keyed on (computername, productkey).
	// Returns true when the key was not present before.
	Upsert(ctx context.Context, key *domain.ProductKey) (bool, error)

	// ExistingKeys returns the set of known product keys.
	ExistingKeys(ctx context.Context) (map[string]struct{}, error)

	// ListRecent returns the newest keys for the status surface.
	ListRecent(ctx context.Context, limit int) ([]*domain.ProductKey, error)
}
