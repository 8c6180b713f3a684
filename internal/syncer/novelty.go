package syncer

import (
	"zerosync/internal/domain"
)

// FilterNew decides which normalized rows are genuinely new for one database.
// A row is accepted when its observed_at is strictly past the database's
// watermark, or when its serial has never been seen at all. The second arm
// covers first-ever imports of a historical serial whose snapshots predate
// the watermark.
//
// The primary and staging databases may have diverged, so the caller runs
// this once per target; the same CSV batch can yield different subsets.
func FilterNew(rows []*domain.SystemRecord, snap *domain.DatabaseSnapshot) []*domain.SystemRecord {
	var accepted []*domain.SystemRecord
	for _, row := range rows {
		if row.ObservedAt.After(snap.Watermark) || !snap.HasSerial(row.SerialNumber) {
			accepted = append(accepted, row)
		}
	}
	return accepted
}
