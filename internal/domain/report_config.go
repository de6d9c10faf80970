package domain

import (
	"encoding/json"

	"github.com/iago/reportflow/internal/validation"
)

// LayoutType is how components are arranged on a report page.
type LayoutType string

const (
	LayoutGrid     LayoutType = "grid"
	LayoutFlex     LayoutType = "flex"
	LayoutFreeform LayoutType = "freeform"
)

const maxLayoutColumns = 24

type LayoutConfig struct {
	Type    LayoutType `json:"type"`
	Columns int        `json:"columns"`
}

type StylingConfig struct {
	Theme        string `json:"theme,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	FontFamily   string `json:"fontFamily,omitempty"`
	FontSize     int    `json:"fontSize,omitempty"`
}

// DataSource binds a query to components that render it.
type DataSource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Query      string          `json:"query,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type Position struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Component is a single visual block (table, chart, text...) on a report.
type Component struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Title        string   `json:"title,omitempty"`
	DataSourceID string   `json:"dataSourceId,omitempty"`
	Position     Position `json:"position"`
}

// ReportConfig is the layout, styling and data-binding definition of a report.
type ReportConfig struct {
	Layout      LayoutConfig  `json:"layout"`
	Styling     StylingConfig `json:"styling"`
	DataSources []DataSource  `json:"dataSources,omitempty"`
	Components  []Component   `json:"components,omitempty"`
}

// DefaultReportConfig is a single-column grid with nothing on it.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Layout: LayoutConfig{Type: LayoutGrid, Columns: 1},
	}
}

// Validate checks the structural constraints every stored config satisfies.
// An empty report is structurally valid; see IsValidForPublishing.
func (c ReportConfig) Validate() error {
	switch c.Layout.Type {
	case LayoutGrid, LayoutFlex, LayoutFreeform:
	default:
		return &validation.Error{Field: "config.layout.type", Message: "config.layout.type must be grid, flex or freeform"}
	}
	if err := validation.IntRange("config.layout.columns", c.Layout.Columns, 1, maxLayoutColumns); err != nil {
		return err
	}
	for _, source := range c.DataSources {
		if err := validation.NotBlank("config.dataSources.id", source.ID); err != nil {
			return err
		}
	}
	for _, component := range c.Components {
		if err := validation.NotBlank("config.components.id", component.ID); err != nil {
			return err
		}
		if err := validation.NotBlank("config.components.type", component.Type); err != nil {
			return err
		}
	}
	return nil
}

// IsValidForPublishing requires a valid layout, at least one component, unique
// data source ids and every component binding to a declared data source.
func (c ReportConfig) IsValidForPublishing() bool {
	if c.Validate() != nil || len(c.Components) == 0 {
		return false
	}
	sources := make(map[string]struct{}, len(c.DataSources))
	for _, source := range c.DataSources {
		if _, dup := sources[source.ID]; dup {
			return false
		}
		sources[source.ID] = struct{}{}
	}
	for _, component := range c.Components {
		if component.DataSourceID == "" {
			continue
		}
		if _, ok := sources[component.DataSourceID]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers cannot mutate aggregate state.
func (c ReportConfig) Clone() ReportConfig {
	clone := c
	clone.DataSources = make([]DataSource, len(c.DataSources))
	for i, source := range c.DataSources {
		source.Parameters = append(json.RawMessage(nil), source.Parameters...)
		clone.DataSources[i] = source
	}
	clone.Components = append([]Component(nil), c.Components...)
	if c.DataSources == nil {
		clone.DataSources = nil
	}
	return clone
}
