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

var scheduledReportTable = versionedTable{
	name:   "scheduled_reports",
	entity: "scheduled report",
	columns: []string{
		"id",
		"name",
		"description",
		"report_id",
		"schedule_config",
		"delivery_config",
		"status",
		"execution_count",
		"failure_count",
		"last_executed_at",
		"next_execution_at",
		"created_by",
		"organization_id",
		"created_at",
		"updated_at",
	},
}

var scheduledReportColumns = scheduledReportTable.selectList()

type PostgresScheduledReportRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresScheduledReportRepository(pool *pgxpool.Pool) *PostgresScheduledReportRepository {
	return &PostgresScheduledReportRepository{pool: pool}
}

func (r *PostgresScheduledReportRepository) FindByID(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+scheduledReportColumns+" FROM scheduled_reports WHERE id = $1", id.String())
	scheduled, err := scanScheduledReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query scheduled report: %w", err)
	}
	return scheduled, nil
}

func (r *PostgresScheduledReportRepository) Save(ctx context.Context, scheduled *domain.ScheduledReport) error {
	values, err := scheduledReportValues(scheduled.Snapshot())
	if err != nil {
		return err
	}
	version, err := scheduledReportTable.save(ctx, r.pool, scheduled.Version(), values...)
	if err != nil {
		return err
	}
	scheduled.SetVersion(version)
	return nil
}

func scheduledReportValues(s domain.ScheduledReportSnapshot) ([]any, error) {
	scheduleConfig, err := json.Marshal(s.ScheduleConfig)
	if err != nil {
		return nil, fmt.Errorf("encode schedule config: %w", err)
	}
	deliveryConfig, err := json.Marshal(s.DeliveryConfig)
	if err != nil {
		return nil, fmt.Errorf("encode delivery config: %w", err)
	}
	return []any{
		s.ID.String(),
		s.Name,
		s.Description,
		s.ReportID.String(),
		scheduleConfig,
		deliveryConfig,
		s.Status.String(),
		s.ExecutionCount,
		s.FailureCount,
		s.LastExecutedAt,
		s.NextExecutionAt,
		s.CreatedBy.String(),
		nullableID(s.OrganizationID),
		s.CreatedAt,
		s.UpdatedAt,
	}, nil
}

func (r *PostgresScheduledReportRepository) Delete(ctx context.Context, id domain.ID) error {
	return deleteByID(ctx, r.pool, "scheduled_reports", id)
}

func (r *PostgresScheduledReportRepository) ExistsByName(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error) {
	return existsByName(ctx, r.pool, "scheduled_reports", "name", organizationID, name, excludeID)
}

func (r *PostgresScheduledReportRepository) List(ctx context.Context, filter ListFilter) ([]*domain.ScheduledReport, int, error) {
	filter = filter.Normalized()
	baseQuery, args := buildListFilters("scheduled_reports", filter, "name", "description")

	total, err := countRows(ctx, r.pool, baseQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count scheduled reports: %w", err)
	}

	page, listArgs := pageClause(args, filter)
	items, err := r.query(ctx, "SELECT "+scheduledReportColumns+" "+baseQuery+page, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresScheduledReportRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledReport, error) {
	if limit <= 0 {
		limit = maxPageSize
	}
	return r.query(ctx, `
		SELECT `+scheduledReportColumns+`
		FROM scheduled_reports
		WHERE status = $1 AND next_execution_at <= $2
		ORDER BY next_execution_at ASC
		LIMIT $3
	`, domain.ScheduledReportStatusActive.String(), now, limit)
}

func (r *PostgresScheduledReportRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.ScheduledReport, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled reports: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.ScheduledReport, 0)
	for rows.Next() {
		scheduled, err := scanScheduledReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled report: %w", err)
		}
		items = append(items, scheduled)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate scheduled reports: %w", rows.Err())
	}
	return items, nil
}

func scanScheduledReport(row rowScanner) (*domain.ScheduledReport, error) {
	var (
		s              domain.ScheduledReportSnapshot
		id             string
		reportID       string
		status         string
		createdBy      string
		organizationID *string
		scheduleConfig []byte
		deliveryConfig []byte
		lastExecutedAt *time.Time
	)
	err := row.Scan(
		&id,
		&s.Name,
		&s.Description,
		&reportID,
		&scheduleConfig,
		&deliveryConfig,
		&status,
		&s.ExecutionCount,
		&s.FailureCount,
		&lastExecutedAt,
		&s.NextExecutionAt,
		&createdBy,
		&organizationID,
		&s.CreatedAt,
		&s.UpdatedAt,
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
	if s.CreatedBy, err = parseStoredID(createdBy); err != nil {
		return nil, err
	}
	if s.OrganizationID, err = parseOptionalID(organizationID); err != nil {
		return nil, err
	}
	if s.Status, err = domain.ParseScheduledReportStatus(status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scheduleConfig, &s.ScheduleConfig); err != nil {
		return nil, fmt.Errorf("decode schedule config: %w", err)
	}
	if err := json.Unmarshal(deliveryConfig, &s.DeliveryConfig); err != nil {
		return nil, fmt.Errorf("decode delivery config: %w", err)
	}
	s.LastExecutedAt = lastExecutedAt
	s.NextExecutionAt = s.NextExecutionAt.UTC()
	return domain.ReconstituteScheduledReport(s), nil
}
