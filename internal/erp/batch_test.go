package erp_test

import (
	"regexp"
	"testing"
	"time"

	"zerosync/internal/domain"
	"zerosync/internal/erp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchID_Shape(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)
	id := erp.NewBatchID("SYNC", now)
	assert.Regexp(t, regexp.MustCompile(`^SYNC_20260301_143005_[0-9a-f-]{8}$`), id)

	// Two attempts in the same second still differ.
	assert.NotEqual(t, id, erp.NewBatchID("SYNC", now))
}

func TestBuildItem_BatteryOnlyWhenComplete(t *testing.T) {
	rec := &domain.SystemRecord{
		SerialNumber:       "PF3AAA01",
		Manufacturer:       "Lenovo",
		Model:              "T14",
		RAMGB:              16,
		FullChargeCapacity: "44000",
		BatteryHealth:      "97.8",
		DesignCapacity:     "45000",
		CycleCount:         "120",
	}
	item := erp.BuildItem(rec)
	require.NotNil(t, item.Battery)
	assert.Equal(t, 45000.0, item.Battery.DesignCapacity)
	assert.Equal(t, 120.0, item.Battery.CycleCount)
	assert.Equal(t, 97.8, item.Battery.Health)

	// Health alone is not enough for the battery sub-object.
	rec.FullChargeCapacity = ""
	assert.Nil(t, erp.BuildItem(rec).Battery)
}

func TestBuildItem_DualBatteryUsesFirstPack(t *testing.T) {
	rec := &domain.SystemRecord{
		SerialNumber:       "PF3AAA02",
		FullChargeCapacity: "44000,40000",
		BatteryHealth:      "97.8,97.6",
		DesignCapacity:     "45000,41000",
		CycleCount:         "120,98",
	}
	item := erp.BuildItem(rec)
	require.NotNil(t, item.Battery)
	assert.Equal(t, 45000.0, item.Battery.DesignCapacity)
	assert.Equal(t, 120.0, item.Battery.CycleCount)
	assert.Equal(t, 97.8, item.Battery.Health)
}

func TestBatteryNumber(t *testing.T) {
	assert.Equal(t, 44000.0, erp.BatteryNumber("44000"))
	assert.Equal(t, 44000.0, erp.BatteryNumber("44000,40000"))
	assert.Equal(t, 97.8, erp.BatteryNumber(" 97.8 "))
	assert.Equal(t, 0.0, erp.BatteryNumber("n/a"))
	assert.Equal(t, 0.0, erp.BatteryNumber(""))
}

func TestParseDisks(t *testing.T) {
	disks := erp.ParseDisks("SSD:512GB:Samsung PM991,HDD:1TB:WD Blue")
	require.Len(t, disks, 2)
	assert.Equal(t, 512.0, disks[0].SizeGB)
	assert.Equal(t, 1000.0, disks[1].SizeGB)

	// Malformed entries degrade to a zero-sized disk instead of erroring.
	disks = erp.ParseDisks("mystery drive")
	require.Len(t, disks, 1)
	assert.Equal(t, 0.0, disks[0].SizeGB)

	assert.Empty(t, erp.ParseDisks(""))
}

func TestNewBatch_Envelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)
	records := []*domain.SystemRecord{
		{SerialNumber: "A1"},
		{SerialNumber: "B2"},
	}
	batch := erp.NewBatch("zerosync", records, now)

	assert.Equal(t, "zerosync", batch.Source)
	assert.Equal(t, now.UTC(), batch.Timestamp)
	assert.Len(t, batch.Items, 2)
	assert.Equal(t, 2, batch.Metadata.TotalItems)
	assert.Equal(t, erp.SchemaVersion, batch.Metadata.Version)
	assert.Equal(t, erp.Checksum(batch.Items), batch.Metadata.Checksum)
}
