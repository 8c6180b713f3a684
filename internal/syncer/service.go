package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"zerosync/internal/csvio"
	"zerosync/internal/domain"
	"zerosync/internal/erp"
	"zerosync/internal/normalize"
	"zerosync/internal/repository"
	"zerosync/internal/store"

	"go.uber.org/zap"
)

// Printer is the label-printing collaborator. Printing itself (PDF, driver
// calls) lives outside this service; the sync pipeline only hands over a row
// id.
type Printer interface {
	PrintLabel(ctx context.Context, recordID int64) error
}

// NopPrinter is used when no printer is attached.
type NopPrinter struct{}

func (NopPrinter) PrintLabel(context.Context, int64) error { return nil }

// RecordUploader is the slice of the ERP client the CSV pipeline needs.
type RecordUploader interface {
	SubmitRecords(ctx context.Context, records []*domain.SystemRecord) *erp.SubmitResult
}

// KeyTarget is one database's product key repository.
type KeyTarget struct {
	Name string
	Keys repository.ProductKeysRepository
}

// Service is the CSV ingestion pipeline: a changed export file comes in, rows
// are normalized, filtered for novelty per database, written with per-row
// isolation, and the primary's accepted rows go to the ERP and the label
// printer.
type Service struct {
	targets    []Target // primary first
	keyTargets []KeyTarget
	writer     *Writer
	api        RecordUploader
	kv         store.KV
	printer    Printer

	reprintWindow time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewService(targets []Target, keyTargets []KeyTarget, api RecordUploader, kv store.KV, printer Printer, reprintWindow time.Duration, logger *zap.Logger) *Service {
	if printer == nil {
		printer = NopPrinter{}
	}
	return &Service{
		targets:       targets,
		keyTargets:    keyTargets,
		writer:        NewWriter(logger),
		api:           api,
		kv:            kv,
		printer:       printer,
		reprintWindow: reprintWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleFile dispatches one changed export by filename. Unrecognized files
// are ignored; the watcher sees everything in the share.
func (s *Service) HandleFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, "system_records"):
		return s.ProcessSystemRecords(ctx, path)
	case strings.Contains(name, "product_keys"):
		return s.ProcessProductKeys(ctx, path)
	default:
		s.logger.Debug("Ignoring unrelated file", zap.String("path", path))
		return nil
	}
}

// ProcessSystemRecords runs the full reconciliation pass for one snapshot
// export.
func (s *Service) ProcessSystemRecords(ctx context.Context, path string) error {
	s.logger.Info("Processing system records", zap.String("file", filepath.Base(path)))

	rows, err := csvio.ReadFile(path)
	if err != nil {
		return err
	}
	now := s.now()
	var records []*domain.SystemRecord
	for _, row := range rows {
		rec, ok := normalize.SystemRecord(row, now)
		if !ok {
			s.logger.Warn("Skipping row without serial number")
			continue
		}
		records = append(records, rec)
	}
	s.logger.Info("Found records", zap.Int("count", len(records)))

	// Novelty is evaluated per database: primary and staging may have
	// diverged, so each gets its own snapshot and its own accepted subset.
	results := ForEachTarget(ctx, s.targets, func(ctx context.Context, t Target) *WriteResult {
		snap, err := t.Records.Snapshot(ctx)
		if err != nil {
			s.logger.Error("Failed to load database snapshot",
				zap.String("database", t.Name), zap.Error(err))
			return &WriteResult{Target: t.Name, Err: err}
		}
		accepted := FilterNew(records, snap)
		s.logger.Info("New records for database",
			zap.String("database", t.Name),
			zap.Int("accepted", len(accepted)),
			zap.Time("watermark", snap.Watermark))
		return s.writer.WriteBatch(ctx, t, accepted)
	})

	s.writer.CheckDivergence(results)

	primary := results[0].Result
	if primary.Err != nil {
		return fmt.Errorf("primary database update failed: %w", primary.Err)
	}

	if primary.Inserted == 0 {
		s.logger.Info("No new records to process")
		if len(records) > 0 {
			s.maybeReprintLatest(ctx, records[len(records)-1].SerialNumber)
		}
		return nil
	}

	s.printNew(ctx, primary.LastID, primary.LastSerial)
	s.uploadAccepted(ctx, primary.Accepted, primary.InsertedIDs)
	return nil
}

// uploadAccepted forwards the primary's freshly inserted rows to the ERP and
// marks them synced on success. ids are the primary database's row ids as
// captured at insert time; the staging insert assigns the same records its
// own ids afterwards, so the records' ID fields cannot be trusted here. A
// failed upload just leaves the rows pending for the scheduled sync loop.
func (s *Service) uploadAccepted(ctx context.Context, accepted []*domain.SystemRecord, ids []int64) {
	if len(accepted) == 0 {
		return
	}
	result := s.api.SubmitRecords(ctx, accepted)
	if !result.Success {
		s.logger.Error("ERP upload failed, records stay pending",
			zap.String("batch_id", result.BatchID),
			zap.String("error", result.Error))
		return
	}

	if err := s.targets[0].Records.MarkSynced(ctx, ids, result.SyncVersion); err != nil {
		s.logger.Error("Failed to mark uploaded records synced", zap.Error(err))
		return
	}
	s.logger.Info("Uploaded records to ERP",
		zap.Int("count", len(accepted)),
		zap.String("batch_id", result.BatchID),
		zap.String("sync_version", result.SyncVersion))
}

const printKeyPrefix = "zerosync:last_print:"

// printNew prints the label for the newest inserted row and records the
// suppression window.
func (s *Service) printNew(ctx context.Context, id int64, serial string) {
	if id == 0 {
		return
	}
	if err := s.printer.PrintLabel(ctx, id); err != nil {
		s.logger.Error("Label printing failed",
			zap.Int64("record_id", id), zap.Error(err))
		return
	}
	s.logger.Info("Label printed", zap.String("serial", serial), zap.Int64("record_id", id))
	if err := s.kv.Set(ctx, printKeyPrefix+serial, s.now().Format(time.RFC3339), s.reprintWindow); err != nil {
		s.logger.Warn("Failed to record print suppression", zap.Error(err))
	}
}

// maybeReprintLatest re-prints the label for the export's newest serial when
// nothing new was inserted, unless the same serial was printed within the
// suppression window. Suppression state lives in the KV store so a restart
// does not re-print.
func (s *Service) maybeReprintLatest(ctx context.Context, serial string) {
	if serial == "" {
		return
	}
	if _, err := s.kv.Get(ctx, printKeyPrefix+serial); err == nil {
		s.logger.Info("Skipping reprint, recently printed", zap.String("serial", serial))
		return
	}

	rec, err := s.targets[0].Records.LatestBySerial(ctx, serial)
	if err != nil {
		s.logger.Error("Failed to look up latest record for reprint",
			zap.String("serial", serial), zap.Error(err))
		return
	}
	if rec == nil {
		s.logger.Warn("No matching record for reprint", zap.String("serial", serial))
		return
	}
	s.printNew(ctx, rec.ID, rec.SerialNumber)
}

// ProcessProductKeys imports one activation key export into every database.
func (s *Service) ProcessProductKeys(ctx context.Context, path string) error {
	s.logger.Info("Processing product keys", zap.String("file", filepath.Base(path)))

	rows, err := csvio.ReadFile(path)
	if err != nil {
		return err
	}

	for _, kt := range s.keyTargets {
		existing, err := kt.Keys.ExistingKeys(ctx)
		if err != nil {
			s.logger.Error("Failed to load existing product keys",
				zap.String("database", kt.Name), zap.Error(err))
			continue
		}

		processed, added, updated := 0, 0, 0
		for _, row := range rows {
			key, ok := normalize.ProductKey(row)
			if !ok {
				continue
			}
			if _, err := kt.Keys.Upsert(ctx, key); err != nil {
				s.logger.Error("Product key upsert failed",
					zap.String("database", kt.Name),
					zap.String("computer", key.ComputerName),
					zap.Error(err))
				continue
			}
			if _, seen := existing[key.ProductKey]; seen {
				updated++
			} else {
				added++
			}
			processed++
		}
		s.logger.Info("Product keys processed",
			zap.String("database", kt.Name),
			zap.Int("processed", processed),
			zap.Int("added", added),
			zap.Int("updated", updated))
	}
	return nil
}
