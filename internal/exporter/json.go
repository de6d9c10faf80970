package exporter

import (
	"context"
	"encoding/json"
	"time"
)

type jsonDocument struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Components  []jsonComponent   `json:"components"`
	Content     map[string]string `json:"content"`
}

type jsonComponent struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	DataSourceID string `json:"dataSourceId,omitempty"`
}

type JSONRenderer struct{}

func (JSONRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	out := jsonDocument{
		Title:       doc.Title,
		Description: doc.Description,
		Status:      doc.Status,
		GeneratedAt: doc.GeneratedAt,
		Components:  make([]jsonComponent, 0, len(doc.Components)),
		Content:     make(map[string]string),
	}
	for _, component := range doc.Components {
		out.Components = append(out.Components, jsonComponent{
			ID:           component.ID,
			Type:         component.Type,
			Title:        component.Title,
			DataSourceID: component.DataSourceID,
		})
	}
	for _, row := range doc.Rows {
		if row.Section == "content" {
			out.Content[row.Key] = row.Value
		}
	}
	return json.MarshalIndent(out, "", "  ")
}
