package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/reportflow/internal/domain"
)

var exportJobTable = versionedTable{
	name:   "export_jobs",
	entity: "export job",
	columns: []string{
		"id",
		"report_id",
		"scheduled_report_id",
		"format",
		"status",
		"user_id",
		"organization_id",
		"options",
		"file_path",
		"download_url",
		"file_url",
		"file_size",
		"error_message",
		"queue_job_id",
		"created_at",
		"updated_at",
		"completed_at",
	},
}

var exportJobColumns = exportJobTable.selectList()

type PostgresExportJobRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresExportJobRepository(pool *pgxpool.Pool) *PostgresExportJobRepository {
	return &PostgresExportJobRepository{pool: pool}
}

func (r *PostgresExportJobRepository) FindByID(ctx context.Context, id domain.ID) (*domain.ExportJob, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+exportJobColumns+" FROM export_jobs WHERE id = $1", id.String())
	job, err := scanExportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query export job: %w", err)
	}
	return job, nil
}

func (r *PostgresExportJobRepository) Save(ctx context.Context, job *domain.ExportJob) error {
	version, err := exportJobTable.save(ctx, r.pool, job.Version(), exportJobValues(job.Snapshot())...)
	if err != nil {
		return err
	}
	job.SetVersion(version)
	return nil
}

func exportJobValues(s domain.ExportJobSnapshot) []any {
	return []any{
		s.ID.String(),
		s.ReportID.String(),
		nullableID(s.ScheduledReportID),
		s.Format.String(),
		s.Status.String(),
		s.UserID.String(),
		nullableID(s.OrganizationID),
		nullableJSON(s.Options),
		s.FilePath,
		s.DownloadURL,
		s.FileURL,
		s.FileSize,
		s.ErrorMessage,
		s.QueueJobID,
		s.CreatedAt,
		s.UpdatedAt,
		s.CompletedAt,
	}
}

func (r *PostgresExportJobRepository) Delete(ctx context.Context, id domain.ID) error {
	return deleteByID(ctx, r.pool, "export_jobs", id)
}

func (r *PostgresExportJobRepository) ListByReport(ctx context.Context, reportID domain.ID) ([]*domain.ExportJob, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exportJobColumns+`
		FROM export_jobs
		WHERE report_id = $1
		ORDER BY created_at DESC
	`, reportID.String())
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.ExportJob, 0)
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job: %w", err)
		}
		items = append(items, job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate export jobs: %w", rows.Err())
	}
	return items, nil
}

func scanExportJob(row rowScanner) (*domain.ExportJob, error) {
	var (
		s                 domain.ExportJobSnapshot
		id                string
		reportID          string
		scheduledReportID *string
		format            string
		status            string
		userID            string
		organizationID    *string
		options           []byte
		completedAt       *time.Time
	)
	err := row.Scan(
		&id,
		&reportID,
		&scheduledReportID,
		&format,
		&status,
		&userID,
		&organizationID,
		&options,
		&s.FilePath,
		&s.DownloadURL,
		&s.FileURL,
		&s.FileSize,
		&s.ErrorMessage,
		&s.QueueJobID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&completedAt,
		&s.Version,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = parseStoredID(id); err != nil {
		return nil, err
	}
	if s.ReportID, err = parseStoredID(reportID); err != nil {
		return nil, err
	}
	if s.ScheduledReportID, err = parseOptionalID(scheduledReportID); err != nil {
		return nil, err
	}
	if s.UserID, err = parseStoredID(userID); err != nil {
		return nil, err
	}
	if s.OrganizationID, err = parseOptionalID(organizationID); err != nil {
		return nil, err
	}
	if s.Format, err = domain.ParseExportFormat(format); err != nil {
		return nil, err
	}
	if s.Status, err = domain.ParseExportJobStatus(status); err != nil {
		return nil, err
	}
	s.Options = json.RawMessage(options)
	s.CompletedAt = completedAt
	return domain.ReconstituteExportJob(s), nil
}
