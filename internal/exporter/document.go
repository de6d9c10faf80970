package exporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iago/reportflow/internal/domain"
)

// Row is one line of tabular output.
type Row struct {
	Section string
	Key     string
	Value   string
}

// Document is the format-neutral view of a report that renderers consume.
type Document struct {
	Title         string
	Description   string
	Status        string
	GeneratedAt   time.Time
	Theme         string
	IncludeCharts bool
	Components    []domain.Component
	Rows          []Row
}

// Options are the export options understood by the renderers.
type Options struct {
	IncludeCharts bool `json:"includeCharts"`
}

func ParseOptions(raw json.RawMessage) (Options, error) {
	var options Options
	if len(strings.TrimSpace(string(raw))) == 0 {
		return options, nil
	}
	if err := json.Unmarshal(raw, &options); err != nil {
		return Options{}, fmt.Errorf("decode export options: %w", err)
	}
	return options, nil
}

// BuildDocument flattens report content into sorted key/value rows.
func BuildDocument(report *domain.Report, options Options, generatedAt time.Time) (Document, error) {
	config := report.Config()
	doc := Document{
		Title:         report.Title(),
		Description:   report.Description(),
		Status:        report.Status().String(),
		GeneratedAt:   generatedAt.UTC(),
		Theme:         config.Styling.Theme,
		IncludeCharts: options.IncludeCharts,
		Components:    config.Components,
	}

	for _, component := range config.Components {
		doc.Rows = append(doc.Rows, Row{
			Section: "component",
			Key:     component.ID,
			Value:   strings.TrimSpace(component.Type + " " + component.Title),
		})
	}

	content := report.Content()
	if len(strings.TrimSpace(string(content))) == 0 {
		return doc, nil
	}
	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return Document{}, fmt.Errorf("decode report content: %w", err)
	}
	flat := make(map[string]string)
	flatten("", decoded, flat)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		doc.Rows = append(doc.Rows, Row{Section: "content", Key: key, Value: flat[key]})
	}
	return doc, nil
}

func flatten(prefix string, value any, out map[string]string) {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			flatten(join(prefix, key), child, out)
		}
	case []any:
		for i, child := range typed {
			flatten(join(prefix, fmt.Sprintf("%d", i)), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprintf("%v", typed)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
