package erp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// The ERP recomputes the batch checksum on its side, so the canonical form is
// load-bearing: items are reduced to their serial number only, sorted by
// serial, serialized as compact JSON and hashed with SHA-256. Field order and
// the absence of whitespace must not drift.
type checksumItem struct {
	SerialNumber string `json:"serialnumber"`
}

// Checksum computes the batch checksum over an item list. Input order does
// not matter; items are sorted before hashing.
func Checksum(items []Item) string {
	normalized := make([]checksumItem, len(items))
	for i, item := range items {
		normalized[i] = checksumItem{SerialNumber: item.SerialNumber}
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].SerialNumber < normalized[j].SerialNumber
	})

	// json.Marshal emits compact output; an empty (non-nil) slice hashes as
	// "[]", matching the server side.
	payload, err := json.Marshal(normalized)
	if err != nil {
		// A slice of flat string structs cannot fail to marshal.
		payload = []byte("[]")
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
