package domain

import "fmt"

// Frequency is how often a scheduled report fires.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

func ParseFrequency(raw string) (Frequency, error) {
	switch f := Frequency(raw); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return f, nil
	}
	return "", fmt.Errorf("invalid Frequency: %s", raw)
}

// DeliveryMethod is how a scheduled report reaches its audience.
type DeliveryMethod string

const (
	DeliveryMethodEmail    DeliveryMethod = "EMAIL"
	DeliveryMethodWebhook  DeliveryMethod = "WEBHOOK"
	DeliveryMethodDownload DeliveryMethod = "DOWNLOAD"
)

func ParseDeliveryMethod(raw string) (DeliveryMethod, error) {
	switch m := DeliveryMethod(raw); m {
	case DeliveryMethodEmail, DeliveryMethodWebhook, DeliveryMethodDownload:
		return m, nil
	}
	return "", fmt.Errorf("invalid DeliveryMethod: %s", raw)
}

// DeliveryFormat is the subset of export formats a schedule may deliver.
type DeliveryFormat string

const (
	DeliveryFormatPDF   DeliveryFormat = "PDF"
	DeliveryFormatExcel DeliveryFormat = "EXCEL"
	DeliveryFormatCSV   DeliveryFormat = "CSV"
)

func ParseDeliveryFormat(raw string) (DeliveryFormat, error) {
	switch f := DeliveryFormat(raw); f {
	case DeliveryFormatPDF, DeliveryFormatExcel, DeliveryFormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("invalid DeliveryFormat: %s", raw)
}

// ExportFormat returns the export format producing this delivery format.
func (f DeliveryFormat) ExportFormat() ExportFormat {
	return ExportFormat(f)
}

// ExportFormat is a file format an export job can produce.
type ExportFormat string

const (
	ExportFormatPDF   ExportFormat = "PDF"
	ExportFormatExcel ExportFormat = "EXCEL"
	ExportFormatCSV   ExportFormat = "CSV"
	ExportFormatJSON  ExportFormat = "JSON"
	ExportFormatHTML  ExportFormat = "HTML"
	ExportFormatPNG   ExportFormat = "PNG"
)

var exportFormatFiles = map[ExportFormat]struct {
	extension   string
	contentType string
}{
	ExportFormatPDF:   {extension: ".pdf", contentType: "application/pdf"},
	ExportFormatExcel: {extension: ".xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	ExportFormatCSV:   {extension: ".csv", contentType: "text/csv"},
	ExportFormatJSON:  {extension: ".json", contentType: "application/json"},
	ExportFormatHTML:  {extension: ".html", contentType: "text/html; charset=utf-8"},
	ExportFormatPNG:   {extension: ".png", contentType: "image/png"},
}

func ParseExportFormat(raw string) (ExportFormat, error) {
	format := ExportFormat(raw)
	if _, ok := exportFormatFiles[format]; !ok {
		return "", fmt.Errorf("invalid ExportFormat: %s", raw)
	}
	return format, nil
}

func (f ExportFormat) String() string {
	return string(f)
}

func (f ExportFormat) Extension() string {
	return exportFormatFiles[f].extension
}

func (f ExportFormat) ContentType() string {
	return exportFormatFiles[f].contentType
}
