package normalize

import (
	"strconv"
	"strings"
	"time"

	"zerosync/internal/domain"
)

// Upstream data quality is uneven, so the normalizer favors maximal ingestion
// over strict validation: malformed numerics become their zero value and the
// row is still accepted. DefaultOnParseError names that policy so callers and
// tests can assert on it instead of tripping over scattered silent fallbacks.
const DefaultOnParseError = true

// Canonical column keys after alias resolution.
const (
	ColSerialNumber       = "serialnumber"
	ColComputerName       = "computername"
	ColManufacturer       = "manufacturer"
	ColModel              = "model"
	ColSystemSKU          = "systemsku"
	ColRAMGB              = "ram_gb"
	ColDisks              = "disks"
	ColTimestamp          = "timestamp"
	ColDate               = "date"
	ColOperatingSystem    = "operatingsystem"
	ColWindowsOS          = "windowsos"
	ColCPU                = "cpu"
	ColResolution         = "resolution"
	ColGraphicsCard       = "graphicscard"
	ColTouchScreen        = "touchscreen"
	ColDesignCapacity     = "design_capacity"
	ColFullChargeCapacity = "full_charge_capacity"
	ColCycleCount         = "cycle_count"
	ColBatteryHealth      = "battery_health"
	ColProductKey         = "productkey"
	ColStatus             = "status"
	ColActivationDate     = "activationdate"
	ColLastCheckDate      = "lastcheckdate"
)

// columnAliases maps lower-cased, trimmed source headers to canonical keys.
// Headers not present here and not already canonical are dropped.
var columnAliases = map[string]string{
	"serial number":        ColSerialNumber,
	"serial_number":        ColSerialNumber,
	"computer name":        ColComputerName,
	"computer_name":        ColComputerName,
	"system sku":           ColSystemSKU,
	"system_sku":           ColSystemSKU,
	"operating system":     ColOperatingSystem,
	"operating_system":     ColOperatingSystem,
	"windows os":           ColWindowsOS,
	"windows_os":           ColWindowsOS,
	"os":                   ColWindowsOS,
	"product key":          ColProductKey,
	"product_key":          ColProductKey,
	"key":                  ColProductKey,
	"time":                 ColTimestamp,
	"graphics card":        ColGraphicsCard,
	"graphics_card":        ColGraphicsCard,
	"touch screen":         ColTouchScreen,
	"touch_screen":         ColTouchScreen,
	"ram":                  ColRAMGB,
	"ram_gb":               ColRAMGB,
	"activation date":      ColActivationDate,
	"activation_date":      ColActivationDate,
	"last check date":      ColLastCheckDate,
	"last_check_date":      ColLastCheckDate,
	"designcapacity":       ColDesignCapacity,
	"fullchargecapacity":   ColFullChargeCapacity,
	"full charge capacity": ColFullChargeCapacity,
	"cyclecount":           ColCycleCount,
	"batteryhealth":        ColBatteryHealth,
	"battery health":       ColBatteryHealth,
}

// canonicalColumns is the accepted key set after alias resolution.
var canonicalColumns = map[string]struct{}{
	ColSerialNumber: {}, ColComputerName: {}, ColManufacturer: {},
	ColModel: {}, ColSystemSKU: {}, ColRAMGB: {}, ColDisks: {},
	ColTimestamp: {}, ColDate: {}, ColOperatingSystem: {}, ColWindowsOS: {},
	ColCPU: {}, ColResolution: {}, ColGraphicsCard: {}, ColTouchScreen: {},
	ColDesignCapacity: {}, ColFullChargeCapacity: {}, ColCycleCount: {},
	ColBatteryHealth: {}, ColProductKey: {}, ColStatus: {},
	ColActivationDate: {}, ColLastCheckDate: {},
}

// CanonicalKey resolves one raw header to its canonical column key.
// ok is false for unknown headers, which callers drop.
func CanonicalKey(header string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(header))
	if mapped, found := columnAliases[key]; found {
		return mapped, true
	}
	if _, found := canonicalColumns[key]; found {
		return key, true
	}
	return "", false
}

// Row is one raw CSV row keyed by canonical column name.
type Row map[string]string

// Get returns the trimmed value for a canonical key, "" when absent.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// timestampFormats are tried in order after the primary format fails. The
// exports come from several collection scripts with different locale habits.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"02/01/2006 15:04",
	"2006-01-02",
	"01/02/2006",
}

// ParseTimestamp parses a snapshot timestamp with the fallback format list.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, format := range timestampFormats {
		if ts, err := time.Parse(format, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ResolveObservedAt picks the snapshot time for a row: Timestamp column first,
// then Date, then the supplied wall clock. An unparseable timestamp falls back
// to "now" rather than rejecting the row, matching the ingestion policy above.
func ResolveObservedAt(row Row, now time.Time) (time.Time, bool) {
	if ts, ok := ParseTimestamp(row.Get(ColTimestamp)); ok {
		return ts, true
	}
	if ts, ok := ParseTimestamp(row.Get(ColDate)); ok {
		return ts, true
	}
	return now, false
}

// Touchscreen normalizes the tri-state touchscreen flag. The negative arm
// matches exact tokens only: a substring check would classify "unknown" and
// "none" as "no", and the normalizer must round-trip its own output.
func Touchscreen(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "yes"), strings.Contains(v, "true"), v == "1":
		return "yes"
	case v == "no", v == "false", v == "0":
		return "no"
	default:
		return "unknown"
	}
}

// BatteryValue preserves a battery field exactly as supplied (trimmed). A
// comma-joined value is a dual-battery report and must survive intact.
func BatteryValue(value string) string {
	return strings.TrimSpace(value)
}

// Float parses a numeric field under DefaultOnParseError: bad input yields 0.
func Float(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

// SystemRecord turns one raw row into a canonical record. Rows without a
// serial number are rejected; everything else is accepted under the
// permissive policy.
func SystemRecord(row Row, now time.Time) (*domain.SystemRecord, bool) {
	serial := row.Get(ColSerialNumber)
	if serial == "" {
		return nil, false
	}

	observedAt, _ := ResolveObservedAt(row, now)

	return &domain.SystemRecord{
		SerialNumber:       serial,
		ComputerName:       row.Get(ColComputerName),
		Manufacturer:       row.Get(ColManufacturer),
		Model:              row.Get(ColModel),
		SystemSKU:          row.Get(ColSystemSKU),
		OperatingSystem:    row.Get(ColOperatingSystem),
		CPU:                row.Get(ColCPU),
		Resolution:         row.Get(ColResolution),
		GraphicsCard:       row.Get(ColGraphicsCard),
		Touchscreen:        Touchscreen(row.Get(ColTouchScreen)),
		RAMGB:              Float(row.Get(ColRAMGB)),
		Disks:              row.Get(ColDisks),
		DesignCapacity:     BatteryValue(row[ColDesignCapacity]),
		FullChargeCapacity: BatteryValue(row[ColFullChargeCapacity]),
		CycleCount:         BatteryValue(row[ColCycleCount]),
		BatteryHealth:      BatteryValue(row[ColBatteryHealth]),
		ObservedAt:         observedAt,
		IsCurrent:          true,
		SyncStatus:         domain.SyncStatusPending,
	}, true
}

// ProductKey turns one raw row into a product key record. Rows without a key
// are skipped.
func ProductKey(row Row) (*domain.ProductKey, bool) {
	key := row.Get(ColProductKey)
	if key == "" {
		return nil, false
	}

	pk := &domain.ProductKey{
		ComputerName: row.Get(ColComputerName),
		WindowsOS:    row.Get(ColWindowsOS),
		ProductKey:   key,
		SerialNumber: row.Get(ColSerialNumber),
		Status:       row.Get(ColStatus),
		IsCurrent:    true,
	}
	if ts, ok := ParseTimestamp(row.Get(ColTimestamp)); ok {
		pk.CreatedAt = &ts
	}
	if ts, ok := ParseTimestamp(row.Get(ColActivationDate)); ok {
		pk.ActivationAt = &ts
	}
	if ts, ok := ParseTimestamp(row.Get(ColLastCheckDate)); ok {
		pk.LastCheckedAt = &ts
	}
	return pk, true
}
