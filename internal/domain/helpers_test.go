package domain

import (
	"testing"
	"time"
)

// freezeClock pins nowFunc; advance the returned time to move the clock.
func freezeClock(t *testing.T, at time.Time) *time.Time {
	t.Helper()
	current := at
	previous := nowFunc
	nowFunc = func() time.Time { return current }
	t.Cleanup(func() { nowFunc = previous })
	return &current
}

func publishableConfig() ReportConfig {
	return ReportConfig{
		Layout:      LayoutConfig{Type: LayoutGrid, Columns: 12},
		Styling:     StylingConfig{Theme: "light"},
		DataSources: []DataSource{{ID: "sales", Type: "sql", Query: "select region, total from sales"}},
		Components: []Component{
			{ID: "c1", Type: "table", Title: "Sales", DataSourceID: "sales"},
			{ID: "c2", Type: "text", Title: "Notes"},
		},
	}
}

func intPtr(v int) *int {
	return &v
}

var (
	authorID = MustParseID("cauthor0000000000000000001")
	orgID    = MustParseID("corg000000000000000000001")
)
