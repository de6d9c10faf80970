package domain

import (
	"encoding/json"
	"time"
)

// JobType names the kind of work carried by a queue message.
type JobType string

const JobTypeExport JobType = "export"

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	QueueJobID     string          `json:"queue_job_id"`
	Type           JobType         `json:"type"`
	ExportJobID    string          `json:"export_job_id"`
	OrganizationID string          `json:"organization_id"`
	Payload        json.RawMessage `json:"payload"`
	Attempt        int             `json:"attempt"`
	RequestedAt    time.Time       `json:"requested_at"`
}

// ExportPayload is the body of a JobTypeExport message.
type ExportPayload struct {
	ReportID          string          `json:"report_id"`
	Format            ExportFormat    `json:"format"`
	ScheduledReportID string          `json:"scheduled_report_id,omitempty"`
	Options           json.RawMessage `json:"options,omitempty"`
}
