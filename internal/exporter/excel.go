package exporter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	dataSheet    = "Data"
	chartSheet   = "Chart"
)

// ExcelRenderer writes a workbook with a summary sheet, a data sheet and,
// when charts are requested and the content has numbers, a chart sheet.
type ExcelRenderer struct{}

func (ExcelRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	summary := [][]any{
		{"Title", doc.Title},
		{"Description", doc.Description},
		{"Status", doc.Status},
		{"Generated at", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return nil, fmt.Errorf("style summary: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 24); err != nil {
		return nil, fmt.Errorf("size summary: %w", err)
	}

	if _, err := f.NewSheet(dataSheet); err != nil {
		return nil, fmt.Errorf("create data sheet: %w", err)
	}
	if err := setRow(f, dataSheet, 1, []any{"Section", "Key", "Value"}); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(dataSheet, "A1", "C1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	var numeric []Row
	for i, row := range doc.Rows {
		if err := setRow(f, dataSheet, i+2, []any{row.Section, row.Key, cellValue(row.Value)}); err != nil {
			return nil, err
		}
		if _, err := strconv.ParseFloat(row.Value, 64); err == nil && row.Section == "content" {
			numeric = append(numeric, row)
		}
	}
	if err := f.SetColWidth(dataSheet, "A", "C", 28); err != nil {
		return nil, fmt.Errorf("size data: %w", err)
	}

	if doc.IncludeCharts && len(numeric) > 0 {
		if err := addChart(f, doc.Title, numeric); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func addChart(f *excelize.File, title string, rows []Row) error {
	if _, err := f.NewSheet(chartSheet); err != nil {
		return fmt.Errorf("create chart sheet: %w", err)
	}
	if err := setRow(f, chartSheet, 1, []any{"Key", "Value"}); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, chartSheet, i+2, []any{row.Key, cellValue(row.Value)}); err != nil {
			return err
		}
	}
	last := len(rows) + 1
	err := f.AddChart(chartSheet, "D2", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", chartSheet),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", chartSheet, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", chartSheet, last),
		}},
		Title: []excelize.RichTextRun{{Text: title}},
	})
	if err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// cellValue stores numbers as numbers so spreadsheets can sum them.
func cellValue(value string) any {
	if number, err := strconv.ParseFloat(value, 64); err == nil {
		return number
	}
	return value
}
