package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zerosync/internal/domain"
	"zerosync/internal/erp"
	"zerosync/internal/repository"

	"go.uber.org/zap"
)

func zapNop() *zap.Logger { return zap.NewNop() }

// fakeRecordsRepo is an in-memory SystemRecordsRepository. Rows are keyed by
// (serial, observed_at) like the real table. failSerials lets a test make
// specific inserts fail to exercise per-row isolation.
type fakeRecordsRepo struct {
	mu          sync.Mutex
	nextID      int64
	rows        map[string]*domain.SystemRecord
	failSerials map[string]bool
	snapshotErr error
	countErr    error
}

func newFakeRecordsRepo() *fakeRecordsRepo {
	return &fakeRecordsRepo{
		rows:        make(map[string]*domain.SystemRecord),
		failSerials: make(map[string]bool),
	}
}

var _ repository.SystemRecordsRepository = (*fakeRecordsRepo)(nil)

func rowKey(serial string, observedAt time.Time) string {
	return serial + "|" + observedAt.UTC().Format(time.RFC3339Nano)
}

func (f *fakeRecordsRepo) seed(recs ...*domain.SystemRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		f.nextID++
		clone := *rec
		clone.ID = f.nextID
		if clone.SyncStatus == "" {
			clone.SyncStatus = domain.SyncStatusPending
		}
		f.rows[rowKey(clone.SerialNumber, clone.ObservedAt)] = &clone
	}
}

func (f *fakeRecordsRepo) Snapshot(context.Context) (*domain.DatabaseSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	snap := &domain.DatabaseSnapshot{Serials: make(map[string]struct{})}
	for _, rec := range f.rows {
		snap.Serials[rec.SerialNumber] = struct{}{}
		if rec.ObservedAt.After(snap.Watermark) {
			snap.Watermark = rec.ObservedAt
		}
		snap.RowCount++
	}
	return snap, nil
}

func (f *fakeRecordsRepo) InsertIfAbsent(_ context.Context, rec *domain.SystemRecord) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSerials[rec.SerialNumber] {
		return 0, false, errors.New("insert failed")
	}
	key := rowKey(rec.SerialNumber, rec.ObservedAt)
	if existing, ok := f.rows[key]; ok {
		return existing.ID, false, nil
	}
	f.nextID++
	rec.ID = f.nextID
	clone := *rec
	f.rows[key] = &clone
	return rec.ID, true, nil
}

func (f *fakeRecordsRepo) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.rows), nil
}

func (f *fakeRecordsRepo) LatestBySerial(_ context.Context, serial string) (*domain.SystemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.SystemRecord
	for _, rec := range f.rows {
		if rec.SerialNumber != serial {
			continue
		}
		if latest == nil || rec.ObservedAt.After(latest.ObservedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeRecordsRepo) ListRecent(_ context.Context, limit int) ([]*domain.SystemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.SystemRecord, 0, limit)
	for _, rec := range f.rows {
		if len(out) == limit {
			break
		}
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRecordsRepo) GetSyncStats(context.Context) (*domain.SyncStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &domain.SyncStats{}
	for _, rec := range f.rows {
		stats.TotalRecords++
		switch rec.SyncStatus {
		case domain.SyncStatusSynced:
			stats.SyncedRecords++
			if rec.SyncVersion > stats.LatestVersion {
				stats.LatestVersion = rec.SyncVersion
			}
		default:
			stats.PendingRecords++
		}
	}
	return stats, nil
}

func (f *fakeRecordsRepo) MarkSynced(_ context.Context, ids []int64, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	now := time.Now()
	for _, rec := range f.rows {
		if _, ok := wanted[rec.ID]; !ok {
			continue
		}
		rec.SyncStatus = domain.SyncStatusSynced
		rec.SyncVersion = version
		rec.LastSyncTime = &now
	}
	return nil
}

func (f *fakeRecordsRepo) ClaimPending(_ context.Context, batchSize int) (repository.PendingClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []*domain.SystemRecord
	for _, rec := range f.rows {
		if rec.SyncStatus != domain.SyncStatusPending {
			continue
		}
		if len(claimed) == batchSize {
			break
		}
		claimed = append(claimed, rec)
	}
	return &fakeClaim{repo: f, records: claimed}, nil
}

func (f *fakeRecordsRepo) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.rows {
		if rec.SyncStatus == domain.SyncStatusPending {
			n++
		}
	}
	return n
}

type fakeClaim struct {
	repo    *fakeRecordsRepo
	records []*domain.SystemRecord
}

func (c *fakeClaim) Records() []*domain.SystemRecord { return c.records }

func (c *fakeClaim) MarkSynced(ctx context.Context, version string) error {
	ids := make([]int64, len(c.records))
	for i, rec := range c.records {
		ids[i] = rec.ID
	}
	return c.repo.MarkSynced(ctx, ids, version)
}

func (c *fakeClaim) Release() error { return nil }

// fakeSubmitter records submissions and answers with a scripted result.
type fakeSubmitter struct {
	mu            sync.Mutex
	submissions   [][]*domain.SystemRecord
	failNext      int
	version       string
	serverVersion string
	serverErr     error
}

func newFakeSubmitter(version string) *fakeSubmitter {
	return &fakeSubmitter{version: version, serverVersion: version}
}

func (s *fakeSubmitter) SubmitRecords(_ context.Context, records []*domain.SystemRecord) *erp.SubmitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, records)
	if s.failNext > 0 {
		s.failNext--
		return &erp.SubmitResult{BatchID: "FAKE", Error: "server unavailable"}
	}
	return &erp.SubmitResult{
		Success:        true,
		BatchID:        fmt.Sprintf("FAKE_%d", len(s.submissions)),
		SyncVersion:    s.version,
		ItemsProcessed: len(records),
	}
}

func (s *fakeSubmitter) ServerVersion(context.Context) (string, error) {
	if s.serverErr != nil {
		return "", s.serverErr
	}
	return s.serverVersion, nil
}

func (s *fakeSubmitter) submissionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

// fakePrinter records printed record ids.
type fakePrinter struct {
	mu      sync.Mutex
	printed []int64
	err     error
}

func (p *fakePrinter) PrintLabel(_ context.Context, recordID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.printed = append(p.printed, recordID)
	return nil
}

func (p *fakePrinter) printedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.printed...)
}

// fakeKeysRepo is an in-memory ProductKeysRepository keyed like the real
// unique index.
type fakeKeysRepo struct {
	mu   sync.Mutex
	keys map[string]*domain.ProductKey
}

func newFakeKeysRepo() *fakeKeysRepo {
	return &fakeKeysRepo{keys: make(map[string]*domain.ProductKey)}
}

var _ repository.ProductKeysRepository = (*fakeKeysRepo)(nil)

func (f *fakeKeysRepo) Upsert(_ context.Context, key *domain.ProductKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key.ComputerName + "|" + key.ProductKey
	_, existed := f.keys[k]
	clone := *key
	f.keys[k] = &clone
	return !existed, nil
}

func (f *fakeKeysRepo) ExistingKeys(context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.keys))
	for _, key := range f.keys {
		out[key.ProductKey] = struct{}{}
	}
	return out, nil
}

func (f *fakeKeysRepo) ListRecent(_ context.Context, limit int) ([]*domain.ProductKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.ProductKey, 0, limit)
	for _, key := range f.keys {
		if len(out) == limit {
			break
		}
		clone := *key
		out = append(out, &clone)
	}
	return out, nil
}
