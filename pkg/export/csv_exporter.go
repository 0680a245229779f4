package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Statement defines tabular ledger statement content. Summary rows are
// rendered after the body, typically totals and the closing balance.
type Statement struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	Summary []map[string]string
}

// CSVExporter renders Statement records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the statement.
func (e *CSVExporter) Render(data Statement) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	writeRow := func(row map[string]string) error {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		return writer.Write(record)
	}
	for _, row := range data.Rows {
		if err := writeRow(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	for _, row := range data.Summary {
		if err := writeRow(row); err != nil {
			return nil, fmt.Errorf("write csv summary row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
