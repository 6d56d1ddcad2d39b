// Package records reads recipient rows from CSV files and writes sample
// record files.
package records

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/blockedby/outreach/internal/models"
)

var (
	// ErrNoEmailColumn is returned when the header has no email column.
	ErrNoEmailColumn = errors.New("csv has no email column")
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Load reads all records from the CSV file at path.
func Load(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}
	recs, err := Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// Read parses CSV rows into records in input order. Header names are trimmed
// and lower-cased; cell values are trimmed.
func Read(r io.Reader) ([]models.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	out := make([]models.Record, 0, len(rows))
	hasEmail := false
	for _, row := range rows {
		rec := make(models.Record, len(row))
		for k, v := range row {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			if key == models.FieldEmail {
				hasEmail = true
			}
			rec[key] = strings.TrimSpace(v)
		}
		out = append(out, rec)
	}

	if len(out) > 0 && !hasEmail {
		return nil, ErrNoEmailColumn
	}
	return out, nil
}

// SampleRow is one row of the generated sample file.
type SampleRow struct {
	Name     string `csv:"name"`
	Email    string `csv:"email"`
	Company  string `csv:"company"`
	Sector   string `csv:"sector"`
	City     string `csv:"city"`
	Position string `csv:"position"`
}

// SampleRows are the example recipients written by WriteSample.
func SampleRows() []*SampleRow {
	return []*SampleRow{
		{Name: "Jane Doe", Email: "jane.doe@example.com", Company: "Acme Corp", Sector: "Manufacturing", City: "Berlin", Position: "Backend Engineer"},
		{Name: "John Smith", Email: "john.smith@example.org", Company: "Globex", Sector: "Energy", City: "Lisbon", Position: "Platform Engineer"},
		{Name: "", Email: "hr@example.net", Company: "Initech", Sector: "Software", City: "", Position: ""},
	}
}

// WriteSample writes a sample record file to path, creating parent
// directories. An existing file is overwritten.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create sample directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sample file: %w", err)
	}
	defer f.Close()

	rows := SampleRows()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write sample file: %w", err)
	}
	return nil
}
