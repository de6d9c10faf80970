package domain

import (
	"slices"
	"strings"

	"github.com/iago/reportflow/internal/validation"
)

// ScheduleConfig says when a scheduled report fires. DayOfWeek (0 = Sunday) is
// required for WEEKLY and DayOfMonth for MONTHLY; QUARTERLY and YEARLY use
// DayOfMonth when set and the 1st otherwise.
type ScheduleConfig struct {
	Frequency  Frequency `json:"frequency"`
	Hour       int       `json:"hour"`
	Minute     int       `json:"minute"`
	Timezone   string    `json:"timezone"`
	DayOfWeek  *int      `json:"dayOfWeek,omitempty"`
	DayOfMonth *int      `json:"dayOfMonth,omitempty"`
}

func (c ScheduleConfig) Validate() error {
	if _, err := ParseFrequency(string(c.Frequency)); err != nil {
		return &validation.Error{Field: "scheduleConfig.frequency", Message: err.Error()}
	}
	if err := validation.IntRange("scheduleConfig.hour", c.Hour, 0, 23); err != nil {
		return err
	}
	if err := validation.IntRange("scheduleConfig.minute", c.Minute, 0, 59); err != nil {
		return err
	}
	if err := validation.NotBlank("scheduleConfig.timezone", c.Timezone); err != nil {
		return err
	}
	if c.Frequency == FrequencyWeekly {
		if c.DayOfWeek == nil {
			return &validation.Error{Field: "scheduleConfig.dayOfWeek", Message: "scheduleConfig.dayOfWeek is required for weekly schedules"}
		}
		if err := validation.IntRange("scheduleConfig.dayOfWeek", *c.DayOfWeek, 0, 6); err != nil {
			return err
		}
	}
	if c.Frequency == FrequencyMonthly && c.DayOfMonth == nil {
		return &validation.Error{Field: "scheduleConfig.dayOfMonth", Message: "scheduleConfig.dayOfMonth is required for monthly schedules"}
	}
	if c.DayOfMonth != nil {
		if err := validation.IntRange("scheduleConfig.dayOfMonth", *c.DayOfMonth, 1, 31); err != nil {
			return err
		}
	}
	return nil
}

func (c ScheduleConfig) clone() ScheduleConfig {
	clone := c
	if c.DayOfWeek != nil {
		day := *c.DayOfWeek
		clone.DayOfWeek = &day
	}
	if c.DayOfMonth != nil {
		day := *c.DayOfMonth
		clone.DayOfMonth = &day
	}
	return clone
}

// DeliveryConfig says how a scheduled run reaches its audience.
type DeliveryConfig struct {
	Method        DeliveryMethod `json:"method"`
	Format        DeliveryFormat `json:"format"`
	IncludeCharts bool           `json:"includeCharts"`
	Recipients    []string       `json:"recipients,omitempty"`
	WebhookURL    string         `json:"webhookUrl,omitempty"`
}

func (c DeliveryConfig) Validate() error {
	if _, err := ParseDeliveryMethod(string(c.Method)); err != nil {
		return &validation.Error{Field: "deliveryConfig.method", Message: err.Error()}
	}
	if _, err := ParseDeliveryFormat(string(c.Format)); err != nil {
		return &validation.Error{Field: "deliveryConfig.format", Message: err.Error()}
	}
	switch c.Method {
	case DeliveryMethodEmail:
		if err := validation.Emails("deliveryConfig.recipients", c.Recipients); err != nil {
			return err
		}
	case DeliveryMethodWebhook:
		if strings.TrimSpace(c.WebhookURL) == "" {
			return &validation.Error{Field: "deliveryConfig.webhookUrl", Message: "deliveryConfig.webhookUrl is required for webhook delivery"}
		}
		if err := validation.URL("deliveryConfig.webhookUrl", c.WebhookURL); err != nil {
			return err
		}
	}
	return nil
}

func (c DeliveryConfig) clone() DeliveryConfig {
	clone := c
	clone.Recipients = slices.Clone(c.Recipients)
	return clone
}
