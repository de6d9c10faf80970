package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/validation"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestNextExecution(t *testing.T) {
	tests := []struct {
		name string
		cfg  ScheduleConfig
		from string
		want string
	}{
		{
			name: "daily time already passed rolls to tomorrow",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Timezone: "UTC"},
			from: "2024-01-15T10:00:00Z",
			want: "2024-01-16T09:00:00Z",
		},
		{
			name: "daily later today",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Minute: 30, Timezone: "UTC"},
			from: "2024-01-15T08:00:00Z",
			want: "2024-01-15T09:30:00Z",
		},
		{
			name: "daily exactly at fire time is strictly after",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Timezone: "UTC"},
			from: "2024-01-15T09:00:00Z",
			want: "2024-01-16T09:00:00Z",
		},
		{
			name: "daily across month end",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 6, Timezone: "UTC"},
			from: "2024-01-31T23:00:00Z",
			want: "2024-02-01T06:00:00Z",
		},
		{
			name: "weekly later this week",
			cfg:  ScheduleConfig{Frequency: FrequencyWeekly, Hour: 9, Timezone: "UTC", DayOfWeek: intPtr(3)},
			from: "2024-01-15T10:00:00Z",
			want: "2024-01-17T09:00:00Z",
		},
		{
			name: "weekly same weekday time passed",
			cfg:  ScheduleConfig{Frequency: FrequencyWeekly, Hour: 9, Timezone: "UTC", DayOfWeek: intPtr(1)},
			from: "2024-01-15T10:00:00Z",
			want: "2024-01-22T09:00:00Z",
		},
		{
			name: "weekly same weekday time ahead",
			cfg:  ScheduleConfig{Frequency: FrequencyWeekly, Hour: 9, Timezone: "UTC", DayOfWeek: intPtr(1)},
			from: "2024-01-15T08:00:00Z",
			want: "2024-01-15T09:00:00Z",
		},
		{
			name: "weekly target weekday earlier in week",
			cfg:  ScheduleConfig{Frequency: FrequencyWeekly, Hour: 9, Timezone: "UTC", DayOfWeek: intPtr(0)},
			from: "2024-01-15T10:00:00Z",
			want: "2024-01-21T09:00:00Z",
		},
		{
			name: "monthly later this month",
			cfg:  ScheduleConfig{Frequency: FrequencyMonthly, Hour: 9, Timezone: "UTC", DayOfMonth: intPtr(15)},
			from: "2024-01-10T10:00:00Z",
			want: "2024-01-15T09:00:00Z",
		},
		{
			name: "monthly rolls into next year",
			cfg:  ScheduleConfig{Frequency: FrequencyMonthly, Hour: 9, Timezone: "UTC", DayOfMonth: intPtr(15)},
			from: "2024-12-20T10:00:00Z",
			want: "2025-01-15T09:00:00Z",
		},
		{
			name: "monthly day 31 clamps to february end",
			cfg:  ScheduleConfig{Frequency: FrequencyMonthly, Hour: 9, Timezone: "UTC", DayOfMonth: intPtr(31)},
			from: "2024-01-31T10:00:00Z",
			want: "2024-02-29T09:00:00Z",
		},
		{
			name: "quarterly next quarter start",
			cfg:  ScheduleConfig{Frequency: FrequencyQuarterly, Hour: 9, Timezone: "UTC"},
			from: "2024-02-10T10:00:00Z",
			want: "2024-04-01T09:00:00Z",
		},
		{
			name: "quarterly same day before fire time",
			cfg:  ScheduleConfig{Frequency: FrequencyQuarterly, Hour: 9, Timezone: "UTC"},
			from: "2024-01-01T08:00:00Z",
			want: "2024-01-01T09:00:00Z",
		},
		{
			name: "quarterly last quarter rolls to january",
			cfg:  ScheduleConfig{Frequency: FrequencyQuarterly, Hour: 9, Timezone: "UTC", DayOfMonth: intPtr(5)},
			from: "2024-11-05T10:00:00Z",
			want: "2025-01-05T09:00:00Z",
		},
		{
			name: "yearly next january",
			cfg:  ScheduleConfig{Frequency: FrequencyYearly, Hour: 9, Timezone: "UTC"},
			from: "2024-06-01T10:00:00Z",
			want: "2025-01-01T09:00:00Z",
		},
		{
			name: "yearly anchor later this january",
			cfg:  ScheduleConfig{Frequency: FrequencyYearly, Hour: 9, Timezone: "UTC", DayOfMonth: intPtr(15)},
			from: "2024-01-10T10:00:00Z",
			want: "2024-01-15T09:00:00Z",
		},
		{
			name: "zone ahead of UTC",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Timezone: "Asia/Tokyo"},
			from: "2024-01-15T10:00:00Z",
			want: "2024-01-16T00:00:00Z",
		},
		{
			name: "zone behind UTC before local fire time",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Timezone: "America/New_York"},
			from: "2024-01-15T13:00:00Z",
			want: "2024-01-15T14:00:00Z",
		},
		{
			name: "daylight saving start keeps local wall time",
			cfg:  ScheduleConfig{Frequency: FrequencyDaily, Hour: 9, Timezone: "America/New_York"},
			from: "2024-03-09T15:00:00Z",
			want: "2024-03-10T13:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextExecution(tt.cfg, mustTime(t, tt.from))
			require.NoError(t, err)
			assert.Equal(t, mustTime(t, tt.want), got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNextExecutionDailyProperty(t *testing.T) {
	from := mustTime(t, "2024-05-20T00:00:00Z")
	for step := 0; step < 24*60; step += 7 {
		ref := from.Add(time.Duration(step) * time.Minute)
		cfg := ScheduleConfig{Frequency: FrequencyDaily, Hour: 13, Minute: 45, Timezone: "UTC"}
		got, err := NextExecution(cfg, ref)
		require.NoError(t, err)

		today := time.Date(2024, 5, 20, 13, 45, 0, 0, time.UTC)
		if ref.Before(today) {
			assert.Equal(t, today, got)
		} else {
			assert.Equal(t, today.AddDate(0, 0, 1), got)
		}
	}
}

func TestNextExecutionRejectsInvalidConfig(t *testing.T) {
	from := mustTime(t, "2024-01-15T10:00:00Z")
	cases := []ScheduleConfig{
		{Frequency: FrequencyDaily, Hour: 24, Timezone: "UTC"},
		{Frequency: FrequencyDaily, Minute: 60, Timezone: "UTC"},
		{Frequency: FrequencyDaily, Timezone: " "},
		{Frequency: FrequencyDaily, Timezone: "Mars/Olympus"},
		{Frequency: FrequencyWeekly, Timezone: "UTC"},
		{Frequency: FrequencyWeekly, Timezone: "UTC", DayOfWeek: intPtr(7)},
		{Frequency: FrequencyMonthly, Timezone: "UTC"},
		{Frequency: FrequencyMonthly, Timezone: "UTC", DayOfMonth: intPtr(0)},
		{Frequency: "HOURLY", Timezone: "UTC"},
	}
	for _, cfg := range cases {
		_, err := NextExecution(cfg, from)
		var verr *validation.Error
		assert.True(t, errors.As(err, &verr), "%+v", cfg)
	}
}
