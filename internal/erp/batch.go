package erp

import (
	"strconv"
	"strings"
	"time"

	"zerosync/internal/domain"

	"github.com/google/uuid"
)

// Item is one inventory record in the ERP's wire schema.
type Item struct {
	SerialNumber string   `json:"serialnumber"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	RAMGB        float64  `json:"ram_gb"`
	Disks        []Disk   `json:"disks"`
	Battery      *Battery `json:"battery,omitempty"`
}

// Disk is the ERP's structured disk entry, derived best-effort from the
// free-text descriptor.
type Disk struct {
	SizeGB float64 `json:"size_gb"`
}

// Battery is the ERP's battery sub-object. Only attached when the snapshot
// has both a full-charge capacity and a health value.
type Battery struct {
	DesignCapacity float64 `json:"design_capacity"`
	CycleCount     float64 `json:"cycle_count"`
	Health         float64 `json:"health"`
}

// Batch is one submission envelope.
type Batch struct {
	BatchID   string    `json:"batch_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Items     []Item    `json:"items"`
	Metadata  Metadata  `json:"metadata"`
}

// Metadata is the checksum envelope the server uses for idempotent batch
// acceptance.
type Metadata struct {
	TotalItems int    `json:"total_items"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}

// SchemaVersion is the wire schema version agreed with the ERP.
const SchemaVersion = "1.0"

// NewBatchID derives a batch id unique per submission attempt: time prefix
// for the operators reading server logs, uuid suffix so two attempts within
// the same second never collide.
func NewBatchID(prefix string, now time.Time) string {
	return prefix + "_" + now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// BuildItem converts one snapshot into the wire schema. Disk and battery
// parsing here is a best-effort secondary transform: the canonical free-text
// and comma-joined values stay untouched in the database, and anything
// unparseable degrades to zero instead of failing the item.
func BuildItem(rec *domain.SystemRecord) Item {
	item := Item{
		SerialNumber: rec.SerialNumber,
		Manufacturer: rec.Manufacturer,
		Model:        rec.Model,
		RAMGB:        rec.RAMGB,
		Disks:        ParseDisks(rec.Disks),
	}
	if rec.HasBattery() {
		item.Battery = &Battery{
			DesignCapacity: BatteryNumber(rec.DesignCapacity),
			CycleCount:     BatteryNumber(rec.CycleCount),
			Health:         BatteryNumber(rec.BatteryHealth),
		}
	}
	return item
}

// NewBatch assembles the submission envelope for a set of snapshots.
func NewBatch(source string, records []*domain.SystemRecord, now time.Time) *Batch {
	items := make([]Item, len(records))
	for i, rec := range records {
		items[i] = BuildItem(rec)
	}
	return &Batch{
		BatchID:   NewBatchID("SYNC", now),
		Source:    source,
		Timestamp: now.UTC(),
		Items:     items,
		Metadata: Metadata{
			TotalItems: len(items),
			Version:    SchemaVersion,
			Checksum:   Checksum(items),
		},
	}
}

// ParseDisks parses the free-text disk descriptor, e.g.
// "SSD:512GB:Samsung PM991,HDD:1TB:WD Blue". Entries that do not match the
// type:size:model shape contribute a zero-sized disk rather than an error;
// the upstream format is too inconsistent to be strict about.
func ParseDisks(disks string) []Disk {
	parsed := []Disk{}
	for _, part := range strings.Split(disks, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			parsed = append(parsed, Disk{SizeGB: 0})
			continue
		}
		parsed = append(parsed, Disk{SizeGB: parseSizeGB(fields[1])})
	}
	return parsed
}

func parseSizeGB(size string) float64 {
	size = strings.TrimSpace(strings.ToUpper(size))
	multiplier := 1.0
	switch {
	case strings.HasSuffix(size, "TB"):
		size = strings.TrimSuffix(size, "TB")
		multiplier = 1000
	case strings.HasSuffix(size, "GB"):
		size = strings.TrimSuffix(size, "GB")
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(size), 64)
	if err != nil {
		return 0
	}
	return n * multiplier
}

// BatteryNumber extracts a numeric value from a battery text field. Dual
// battery machines report a comma-joined pair; the first pack's value is used
// for the wire schema, leaving the stored text intact.
func BatteryNumber(value string) float64 {
	value = strings.TrimSpace(value)
	if domain.DualBattery(value) {
		value = value[:strings.IndexByte(value, ',')]
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return n
}
