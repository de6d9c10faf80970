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

var reportTable = versionedTable{
	name:   "reports",
	entity: "report",
	columns: []string{
		"id",
		"title",
		"description",
		"config",
		"content",
		"status",
		"is_public",
		"template_id",
		"created_by",
		"organization_id",
		"metadata",
		"created_at",
		"updated_at",
		"published_at",
		"archived_at",
	},
}

var reportColumns = reportTable.selectList()

type PostgresReportRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresReportRepository(pool *pgxpool.Pool) *PostgresReportRepository {
	return &PostgresReportRepository{pool: pool}
}

func (r *PostgresReportRepository) FindByID(ctx context.Context, id domain.ID) (*domain.Report, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+reportColumns+" FROM reports WHERE id = $1", id.String())
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return report, nil
}

func (r *PostgresReportRepository) Save(ctx context.Context, report *domain.Report) error {
	values, err := reportValues(report.Snapshot())
	if err != nil {
		return err
	}
	version, err := reportTable.save(ctx, r.pool, report.Version(), values...)
	if err != nil {
		return err
	}
	report.SetVersion(version)
	return nil
}

func reportValues(s domain.ReportSnapshot) ([]any, error) {
	config, err := json.Marshal(s.Config)
	if err != nil {
		return nil, fmt.Errorf("encode report config: %w", err)
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode report metadata: %w", err)
	}
	return []any{
		s.ID.String(),
		s.Title,
		s.Description,
		config,
		nullableJSON(s.Content),
		s.Status.String(),
		s.IsPublic,
		nullableID(s.TemplateID),
		s.CreatedBy.String(),
		nullableID(s.OrganizationID),
		metadata,
		s.CreatedAt,
		s.UpdatedAt,
		s.PublishedAt,
		s.ArchivedAt,
	}, nil
}

func (r *PostgresReportRepository) Delete(ctx context.Context, id domain.ID) error {
	return deleteByID(ctx, r.pool, "reports", id)
}

func (r *PostgresReportRepository) ExistsByTitle(ctx context.Context, organizationID domain.ID, title string, excludeID domain.ID) (bool, error) {
	return existsByName(ctx, r.pool, "reports", "title", organizationID, title, excludeID)
}

func (r *PostgresReportRepository) List(ctx context.Context, filter ListFilter) ([]*domain.Report, int, error) {
	filter = filter.Normalized()
	baseQuery, args := buildListFilters("reports", filter, "title", "description")

	total, err := countRows(ctx, r.pool, baseQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	page, listArgs := pageClause(args, filter)
	rows, err := r.pool.Query(ctx, "SELECT "+reportColumns+" "+baseQuery+page, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, report)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate reports: %w", rows.Err())
	}
	return items, total, nil
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		s              domain.ReportSnapshot
		id             string
		status         string
		templateID     *string
		createdBy      string
		organizationID *string
		config         []byte
		content        []byte
		metadata       []byte
		publishedAt    *time.Time
		archivedAt     *time.Time
	)
	err := row.Scan(
		&id,
		&s.Title,
		&s.Description,
		&config,
		&content,
		&status,
		&s.IsPublic,
		&templateID,
		&createdBy,
		&organizationID,
		&metadata,
		&s.CreatedAt,
		&s.UpdatedAt,
		&publishedAt,
		&archivedAt,
		&s.Version,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = parseStoredID(id); err != nil {
		return nil, err
	}
	if s.CreatedBy, err = parseStoredID(createdBy); err != nil {
		return nil, err
	}
	if s.TemplateID, err = parseOptionalID(templateID); err != nil {
		return nil, err
	}
	if s.OrganizationID, err = parseOptionalID(organizationID); err != nil {
		return nil, err
	}
	if s.Status, err = domain.ParseReportStatus(status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &s.Config); err != nil {
		return nil, fmt.Errorf("decode report config: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode report metadata: %w", err)
		}
	}
	s.Content = json.RawMessage(content)
	s.PublishedAt = publishedAt
	s.ArchivedAt = archivedAt
	return domain.ReconstituteReport(s), nil
}
