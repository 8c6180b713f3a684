package syncer

import (
	"context"

	"zerosync/internal/domain"
	"zerosync/internal/repository"

	"go.uber.org/zap"
)

// Target is one database the writer applies a batch to.
type Target struct {
	Name    string
	Records repository.SystemRecordsRepository
}

// WriteResult is the per-database outcome of one batch.
type WriteResult struct {
	Target      string
	Inserted    int
	Skipped     int
	RowErrors   int
	InsertedIDs []int64
	// LastID/LastSerial identify the newest inserted row; on the primary
	// database this is what goes to the label printer.
	LastID     int64
	LastSerial string
	// Accepted holds the records that actually made it in, with IDs set.
	Accepted   []*domain.SystemRecord
	FinalCount int
	Err        error
}

// TargetResult pairs a target with its outcome; ForEachTarget never drops a
// target from the report, even on failure.
type TargetResult struct {
	Target string
	Result *WriteResult
}

// ForEachTarget runs the same unit of work against every target and collects
// per-target results. A failing target is recorded and the rest still run,
// so one unreachable database never blocks the other.
func ForEachTarget(ctx context.Context, targets []Target, fn func(ctx context.Context, t Target) *WriteResult) []TargetResult {
	results := make([]TargetResult, 0, len(targets))
	for _, t := range targets {
		results = append(results, TargetResult{Target: t.Name, Result: fn(ctx, t)})
	}
	return results
}

// Writer applies accepted rows to one database with per-row transaction
// isolation.
type Writer struct {
	logger *zap.Logger
}

func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteBatch inserts rows one by one. Each row runs in its own transaction;
// a failing row is logged and skipped, never aborting the batch. WriteBatch
// itself only errors when the final count query fails.
func (w *Writer) WriteBatch(ctx context.Context, t Target, rows []*domain.SystemRecord) *WriteResult {
	result := &WriteResult{Target: t.Name}
	for _, rec := range rows {
		id, inserted, err := t.Records.InsertIfAbsent(ctx, rec)
		if err != nil {
			result.RowErrors++
			w.logger.Error("Record insert failed",
				zap.String("database", t.Name),
				zap.String("serial", rec.SerialNumber),
				zap.Error(err))
			continue
		}
		if !inserted {
			result.Skipped++
			w.logger.Debug("Record already present",
				zap.String("database", t.Name),
				zap.String("serial", rec.SerialNumber),
				zap.Time("observed_at", rec.ObservedAt))
			continue
		}
		result.Inserted++
		result.InsertedIDs = append(result.InsertedIDs, id)
		result.Accepted = append(result.Accepted, rec)
		result.LastID = id
		result.LastSerial = rec.SerialNumber
		w.logger.Info("Inserted record",
			zap.String("database", t.Name),
			zap.String("serial", rec.SerialNumber),
			zap.Int64("id", id))
	}

	count, err := t.Records.Count(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	result.FinalCount = count
	return result
}

// CheckDivergence compares post-batch row counts across the targets. A
// mismatch is a sync-integrity warning, surfaced but not fatal: availability
// wins over strict consistency here, the divergence just must be observable.
func (w *Writer) CheckDivergence(results []TargetResult) bool {
	diverged := false
	for i := 1; i < len(results); i++ {
		prev, curr := results[i-1].Result, results[i].Result
		if prev.Err != nil || curr.Err != nil {
			continue
		}
		if prev.FinalCount != curr.FinalCount {
			diverged = true
			w.logger.Warn("Database record count mismatch",
				zap.String("database_a", results[i-1].Target),
				zap.Int("count_a", prev.FinalCount),
				zap.String("database_b", results[i].Target),
				zap.Int("count_b", curr.FinalCount))
		}
	}
	return diverged
}
