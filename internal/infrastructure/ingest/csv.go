// Package ingest reads the catalog and score sheets exported as CSV/TSV.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// table is a header row plus data rows.
type table struct {
	header []string
	rows   [][]string
}

// readTable reads a delimited file. Rows may have any width.
func readTable(r io.Reader, comma rune) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &table{}, nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	return &table{header: header, rows: rows[1:]}, nil
}

// openTable opens path and picks the delimiter from its extension.
func openTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.WrapError("ingest", "Open", shared.ErrConfiguration,
			"cannot open input file", err)
	}
	defer f.Close()

	comma := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		comma = '\t'
	}
	t, err := readTable(f, comma)
	if err != nil {
		return nil, shared.WrapError("ingest", "Read", shared.ErrConfiguration,
			"cannot parse input file", fmt.Errorf("%s: %w", filepath.Base(path), err))
	}
	return t, nil
}

// pick returns the index of the first header equal to one of keys
// (case-insensitive), then of the first header containing one, or -1.
func (t *table) pick(keys ...string) int {
	for _, key := range keys {
		for i, h := range t.header {
			if strings.EqualFold(h, key) {
				return i
			}
		}
	}
	for _, key := range keys {
		k := strings.ToLower(key)
		for i, h := range t.header {
			if strings.Contains(strings.ToLower(h), k) {
				return i
			}
		}
	}
	return -1
}

// cell returns the trimmed cell i of row, or "" when out of range.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return cleanCell(row[i])
}

func cleanCell(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}
