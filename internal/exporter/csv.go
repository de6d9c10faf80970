package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
)

var csvHeaders = []string{"section", "key", "value"}

// CSVRenderer writes the document rows with a header line.
type CSVRenderer struct {
	// BOMPrefix adds a UTF-8 BOM so Excel detects the encoding.
	BOMPrefix bool
}

func (r CSVRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if r.BOMPrefix {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}

	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	for i, row := range doc.Rows {
		if err := writer.Write([]string{row.Section, row.Key, row.Value}); err != nil {
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
