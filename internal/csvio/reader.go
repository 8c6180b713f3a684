package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"zerosync/internal/normalize"

	"github.com/xuri/excelize/v2"
)

// ReadFile reads a snapshot export into canonical rows. Both the CSV exports
// and the occasional hand-saved .xlsx copy of the same sheet are accepted.
func ReadFile(path string) ([]normalize.Row, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return ReadExcel(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads header-mapped rows from r. Unknown columns are dropped during
// header canonicalization; short records are tolerated.
func ReadCSV(r io.Reader) ([]normalize.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	keys := canonicalHeader(header)

	var rows []normalize.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		rows = append(rows, mapRecord(keys, record))
	}
	return rows, nil
}

// ReadExcel reads the first sheet of an xlsx workbook with the same header
// rules as the CSV path.
func ReadExcel(path string) ([]normalize.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	keys := canonicalHeader(cells[0])
	var rows []normalize.Row
	for _, record := range cells[1:] {
		rows = append(rows, mapRecord(keys, record))
	}
	return rows, nil
}

// canonicalHeader resolves each header cell to a canonical key; unknown
// columns get "" and their values are discarded.
func canonicalHeader(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		if key, ok := normalize.CanonicalKey(h); ok {
			keys[i] = key
		}
	}
	return keys
}

func mapRecord(keys, record []string) normalize.Row {
	row := make(normalize.Row, len(keys))
	for i, key := range keys {
		if key == "" || i >= len(record) {
			continue
		}
		row[key] = record[i]
	}
	return row
}
