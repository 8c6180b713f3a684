package domain

import "time"

// SyncStats is the per-database sync health summary.
type SyncStats struct {
	TotalRecords   int
	SyncedRecords  int
	PendingRecords int
	LatestVersion  string
	LastSyncTime   *time.Time
}

// DatabaseSnapshot is what the novelty detector needs from one database: the
// full serial-number set and the observed_at watermark. Row counts are small
// enough that holding the set in memory is fine.
type DatabaseSnapshot struct {
	Serials   map[string]struct{}
	Watermark time.Time
	RowCount  int
}

// HasSerial reports whether the database has ever seen this serial.
func (s *DatabaseSnapshot) HasSerial(serial string) bool {
	_, ok := s.Serials[serial]
	return ok
}
