package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ParsedLeadRecord struct {
	Line           int
	Name           string
	Company        string
	Email          string
	Phone          string
	Source         string
	Status         string
	EstimatedValue decimal.Decimal
	Notes          string
}

// ParseLeadCSV reads a lead CSV with a header row. "name" is required; an
// unparsable estimated_value skips the row.
func ParseLeadCSV(r io.Reader) ([]ParsedLeadRecord, error) {
	reader := csv.NewReader(SkipBOM(r))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	colIndex, err := getColIndex(header, []string{"name"})
	if err != nil {
		return nil, err
	}

	records := []ParsedLeadRecord{}
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			zap.L().Warn("skipping unreadable lead CSV row", zap.Int("line", line), zap.Error(err))
			continue
		}
		get := getter(colIndex, rec)
		if get("name") == "" {
			zap.L().Warn("skipping lead CSV row without name", zap.Int("line", line))
			continue
		}

		value := decimal.Zero
		if raw := get("estimated_value"); raw != "" {
			value, err = decimal.NewFromString(raw)
			if err != nil {
				zap.L().Warn("skipping lead CSV row with bad estimated_value", zap.Int("line", line), zap.String("value", raw))
				continue
			}
		}
		records = append(records, ParsedLeadRecord{
			Line:           line,
			Name:           get("name"),
			Company:        get("company"),
			Email:          get("email"),
			Phone:          get("phone"),
			Source:         get("source"),
			Status:         get("status"),
			EstimatedValue: value,
			Notes:          get("notes"),
		})
	}
	return records, nil
}
