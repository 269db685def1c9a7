package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ParsedCustomerRecord is one row of a customer CSV. Code is empty when the
// row should get a generated code.
type ParsedCustomerRecord struct {
	Line     int
	Code     string
	Name     string
	Company  string
	Email    string
	Phone    string
	Address  string
	City     string
	Country  string
	Currency string
	TaxID    string
	Notes    string
}

// ParseCustomerCSV reads a customer CSV with a header row. Only "name" is
// required. Unreadable rows and rows without a name are skipped.
func ParseCustomerCSV(r io.Reader) ([]ParsedCustomerRecord, error) {
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

	records := []ParsedCustomerRecord{}
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			zap.L().Warn("skipping unreadable customer CSV row", zap.Int("line", line), zap.Error(err))
			continue
		}
		get := getter(colIndex, rec)
		if get("name") == "" {
			zap.L().Warn("skipping customer CSV row without name", zap.Int("line", line))
			continue
		}
		records = append(records, ParsedCustomerRecord{
			Line:     line,
			Code:     get("code"),
			Name:     get("name"),
			Company:  get("company"),
			Email:    get("email"),
			Phone:    get("phone"),
			Address:  get("address"),
			City:     get("city"),
			Country:  get("country"),
			Currency: get("currency"),
			TaxID:    get("tax_id"),
			Notes:    get("notes"),
		})
	}
	return records, nil
}
