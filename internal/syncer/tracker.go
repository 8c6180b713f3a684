package syncer

import (
	"context"
	"fmt"

	"zerosync/internal/domain"
	"zerosync/internal/erp"
	"zerosync/internal/repository"

	"go.uber.org/zap"
)

// BatchSubmitter is the slice of the ERP client the tracker needs.
type BatchSubmitter interface {
	SubmitRecords(ctx context.Context, records []*domain.SystemRecord) *erp.SubmitResult
	ServerVersion(ctx context.Context) (string, error)
}

// Tracker drives the pending-to-synced state machine against the primary
// database. Records are claimed with skip-locked row locks, submitted, and
// marked synced in the same transaction, so a concurrent worker can run the
// same loop without ever double-submitting a record.
type Tracker struct {
	records   repository.SystemRecordsRepository
	api       BatchSubmitter
	batchSize int
	logger    *zap.Logger
}

func NewTracker(records repository.SystemRecordsRepository, api BatchSubmitter, batchSize int, logger *zap.Logger) *Tracker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Tracker{records: records, api: api, batchSize: batchSize, logger: logger}
}

// GetSyncStats exposes sync state for health checks.
func (t *Tracker) GetSyncStats(ctx context.Context) (*domain.SyncStats, error) {
	return t.records.GetSyncStats(ctx)
}

// SyncResult summarizes one full sync pass.
type SyncResult struct {
	Success     bool
	TotalSynced int
	LastVersion string
	Error       string
}

// syncOneBatch claims and submits one pending batch. done is true when there
// was nothing left to claim.
func (t *Tracker) syncOneBatch(ctx context.Context) (synced int, version string, done bool, err error) {
	claim, err := t.records.ClaimPending(ctx, t.batchSize)
	if err != nil {
		return 0, "", false, err
	}
	records := claim.Records()
	if len(records) == 0 {
		claim.Release()
		return 0, "", true, nil
	}

	result := t.api.SubmitRecords(ctx, records)
	if !result.Success {
		// Leave every claimed record pending; failures are assumed transient
		// and the next scheduled pass retries them.
		claim.Release()
		return 0, "", false, fmt.Errorf("batch %s failed: %s", result.BatchID, result.Error)
	}

	if err := claim.MarkSynced(ctx, result.SyncVersion); err != nil {
		return 0, "", false, err
	}
	t.logger.Info("Synced batch",
		zap.String("batch_id", result.BatchID),
		zap.Int("records", len(records)),
		zap.String("sync_version", result.SyncVersion))
	return len(records), result.SyncVersion, false, nil
}

// PerformFullSync drains the pending set batch by batch.
func (t *Tracker) PerformFullSync(ctx context.Context) *SyncResult {
	total := 0
	lastVersion := ""
	for {
		if err := ctx.Err(); err != nil {
			return &SyncResult{TotalSynced: total, LastVersion: lastVersion, Error: err.Error()}
		}
		synced, version, done, err := t.syncOneBatch(ctx)
		if err != nil {
			t.logger.Error("Sync batch failed", zap.Error(err))
			return &SyncResult{TotalSynced: total, LastVersion: lastVersion, Error: err.Error()}
		}
		if done {
			return &SyncResult{Success: true, TotalSynced: total, LastVersion: lastVersion}
		}
		total += synced
		lastVersion = version
	}
}

// SyncStatus compares local state against the server's current version.
type SyncStatus struct {
	InSync         bool
	LocalVersion   string
	ServerVersion  string
	PendingRecords int
	Stats          *domain.SyncStats
}

// VerifySyncStatus fetches local stats and the server version. Pending rows
// or a version mismatch both mean a sync pass is due.
func (t *Tracker) VerifySyncStatus(ctx context.Context) (*SyncStatus, error) {
	stats, err := t.records.GetSyncStats(ctx)
	if err != nil {
		return nil, err
	}
	serverVersion, err := t.api.ServerVersion(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		InSync:         stats.PendingRecords == 0 && stats.LatestVersion == serverVersion,
		LocalVersion:   stats.LatestVersion,
		ServerVersion:  serverVersion,
		PendingRecords: stats.PendingRecords,
		Stats:          stats,
	}, nil
}
