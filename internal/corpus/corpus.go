// Package corpus reads the statistics catalogue and derives the text each record is indexed by.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hyperjump/statsearch/internal/models"
)

// ReadFile parses a JSON array of records.
func ReadFile(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of records.
func Parse(data []byte) ([]models.Record, error) {
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	return records, nil
}

// IndexText is the text a record is embedded from: title, subject and
// description joined by single spaces.
func IndexText(r models.Record) string {
	return Preprocess(r.Title + " " + r.Subject + " " + r.Description)
}

// Texts returns IndexText for every record, in order.
func Texts(records []models.Record) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = IndexText(r)
	}
	return texts
}
