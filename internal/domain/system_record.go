package domain

import "time"

// Sync status values for SystemRecord. There is no terminal "failed" state: a
// failed upload leaves the record pending so the next pass retries it.
const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
)

// SystemRecord is one hardware snapshot of a laptop. A serial number is not
// unique across the table because the same machine is snapshotted repeatedly
// over time, so identity for dedup purposes is (SerialNumber, ObservedAt).
type SystemRecord struct {
	ID           int64
	SerialNumber string
	ComputerName string
	Manufacturer string
	Model        string
	SystemSKU    string

	OperatingSystem string
	CPU             string
	Resolution      string
	GraphicsCard    string
	// Touchscreen is normalized to "yes", "no" or "unknown".
	Touchscreen string

	RAMGB float64
	// Disks is the upstream free-text descriptor, preserved verbatim. The
	// format is inconsistent at the source; structural parsing is the ERP
	// adapter's best-effort concern, not the record's.
	Disks string

	// Battery fields stay text. Machines with two battery packs report a
	// comma-joined pair ("44000,40000"); coercing to a number would lose one
	// of the packs.
	DesignCapacity     string
	FullChargeCapacity string
	CycleCount         string
	BatteryHealth      string

	// ObservedAt is the snapshot time from the source CSV and is authoritative
	// for ordering. It is stored in the created_at column.
	ObservedAt    time.Time
	LastUpdatedAt time.Time

	IsCurrent    bool
	SyncStatus   string
	SyncVersion  string
	LastSyncTime *time.Time
}

// HasBattery reports whether the snapshot carries enough battery data for the
// ERP item's battery sub-object (capacity and health both present).
func (r *SystemRecord) HasBattery() bool {
	return r.FullChargeCapacity != "" && r.BatteryHealth != ""
}

// DualBattery reports whether a battery field holds a dual-pack comma pair.
func DualBattery(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] == ',' {
			return true
		}
	}
	return false
}
