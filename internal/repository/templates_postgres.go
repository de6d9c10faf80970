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

var templateTable = versionedTable{
	name:   "report_templates",
	entity: "template",
	columns: []string{
		"id",
		"name",
		"description",
		"type",
		"category",
		"config",
		"layout",
		"styling",
		"is_system",
		"is_active",
		"tags",
		"usage_count",
		"last_used_at",
		"created_by",
		"organization_id",
		"preview_image_url",
		"created_at",
		"updated_at",
	},
}

var templateColumns = templateTable.selectList()

type PostgresTemplateRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTemplateRepository(pool *pgxpool.Pool) *PostgresTemplateRepository {
	return &PostgresTemplateRepository{pool: pool}
}

func (r *PostgresTemplateRepository) FindByID(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+templateColumns+" FROM report_templates WHERE id = $1", id.String())
	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query template: %w", err)
	}
	return template, nil
}

func (r *PostgresTemplateRepository) Save(ctx context.Context, template *domain.ReportTemplate) error {
	values, err := templateValues(template.Snapshot())
	if err != nil {
		return err
	}
	version, err := templateTable.save(ctx, r.pool, template.Version(), values...)
	if err != nil {
		return err
	}
	template.SetVersion(version)
	return nil
}

func templateValues(s domain.ReportTemplateSnapshot) ([]any, error) {
	config, err := json.Marshal(s.Config)
	if err != nil {
		return nil, fmt.Errorf("encode template config: %w", err)
	}
	layout, err := json.Marshal(s.Layout)
	if err != nil {
		return nil, fmt.Errorf("encode template layout: %w", err)
	}
	styling, err := json.Marshal(s.Styling)
	if err != nil {
		return nil, fmt.Errorf("encode template styling: %w", err)
	}
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		s.ID.String(),
		s.Name,
		s.Description,
		string(s.Type),
		s.Category,
		config,
		layout,
		styling,
		s.IsSystem,
		s.IsActive,
		tags,
		s.UsageCount,
		s.LastUsedAt,
		s.CreatedBy.String(),
		nullableID(s.OrganizationID),
		s.PreviewImageURL,
		s.CreatedAt,
		s.UpdatedAt,
	}, nil
}

func (r *PostgresTemplateRepository) Delete(ctx context.Context, id domain.ID) error {
	return deleteByID(ctx, r.pool, "report_templates", id)
}

func (r *PostgresTemplateRepository) ExistsByName(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error) {
	return existsByName(ctx, r.pool, "report_templates", "name", organizationID, name, excludeID)
}

func (r *PostgresTemplateRepository) List(ctx context.Context, filter ListFilter) ([]*domain.ReportTemplate, int, error) {
	filter = filter.Normalized()
	baseQuery, args := buildListFilters("report_templates", filter, "name", "description", "category")

	total, err := countRows(ctx, r.pool, baseQuery, args)
	if err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	page, listArgs := pageClause(args, filter)
	items, err := r.query(ctx, "SELECT "+templateColumns+" "+baseQuery+page, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresTemplateRepository) ListActive(ctx context.Context, organizationID domain.ID) ([]*domain.ReportTemplate, error) {
	return r.query(ctx, `
		SELECT `+templateColumns+`
		FROM report_templates
		WHERE is_active AND (is_system OR organization_id IS NOT DISTINCT FROM $1)
		ORDER BY usage_count DESC, name ASC
	`, nullableID(organizationID))
}

func (r *PostgresTemplateRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.ReportTemplate, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.ReportTemplate, 0)
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, template)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate templates: %w", rows.Err())
	}
	return items, nil
}

func scanTemplate(row rowScanner) (*domain.ReportTemplate, error) {
	var (
		s              domain.ReportTemplateSnapshot
		id             string
		templateType   string
		createdBy      string
		organizationID *string
		config         []byte
		layout         []byte
		styling        []byte
		lastUsedAt     *time.Time
	)
	err := row.Scan(
		&id,
		&s.Name,
		&s.Description,
		&templateType,
		&s.Category,
		&config,
		&layout,
		&styling,
		&s.IsSystem,
		&s.IsActive,
		&s.Tags,
		&s.UsageCount,
		&lastUsedAt,
		&createdBy,
		&organizationID,
		&s.PreviewImageURL,
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
	if s.CreatedBy, err = parseStoredID(createdBy); err != nil {
		return nil, err
	}
	if s.OrganizationID, err = parseOptionalID(organizationID); err != nil {
		return nil, err
	}
	if s.Type, err = domain.ParseTemplateType(templateType); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &s.Config); err != nil {
		return nil, fmt.Errorf("decode template config: %w", err)
	}
	if err := json.Unmarshal(layout, &s.Layout); err != nil {
		return nil, fmt.Errorf("decode template layout: %w", err)
	}
	if err := json.Unmarshal(styling, &s.Styling); err != nil {
		return nil, fmt.Errorf("decode template styling: %w", err)
	}
	s.LastUsedAt = lastUsedAt
	return domain.ReconstituteReportTemplate(s), nil
}
