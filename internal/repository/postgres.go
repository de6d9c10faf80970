package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iago/reportflow/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schemaSQL
}

// NewPostgresPool opens and pings a pgx pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables and indexes when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// versionedTable renders the version-guarded writes for one aggregate table.
// The first column is the primary key; version is maintained by save.
type versionedTable struct {
	name    string
	entity  string
	columns []string
}

func (t versionedTable) selectList() string {
	return strings.Join(t.columns, ", ") + ", version"
}

func (t versionedTable) insertSQL() string {
	placeholders := make([]string, len(t.columns))
	for i := range t.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s, 1) RETURNING version",
		t.name, t.selectList(), strings.Join(placeholders, ", "))
}

func (t versionedTable) updateSQL() string {
	assignments := make([]string, 0, len(t.columns))
	for i, column := range t.columns[1:] {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, i+2))
	}
	return fmt.Sprintf("UPDATE %s SET %s, version = version + 1 WHERE %s = $1 AND version = $%d RETURNING version",
		t.name, strings.Join(assignments, ", "), t.columns[0], len(t.columns)+1)
}

// save inserts an aggregate that was never stored (version 0) and otherwise
// updates the row only while its version still matches. Rejected writes map
// to the same errors as the in-memory stores.
func (t versionedTable) save(ctx context.Context, pool *pgxpool.Pool, version int, values ...any) (int, error) {
	if len(values) != len(t.columns) {
		return 0, fmt.Errorf("save %s: %d values for %d columns", t.entity, len(values), len(t.columns))
	}

	var stored int
	if version == 0 {
		err := pool.QueryRow(ctx, t.insertSQL(), values...).Scan(&stored)
		if isPrimaryKeyViolation(err, t.name) {
			return 0, rejectedSave(version, true)
		}
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", t.entity, err)
		}
		return stored, nil
	}

	err := pool.QueryRow(ctx, t.updateSQL(), append(values, version)...).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)", t.name, t.columns[0])
		if err := pool.QueryRow(ctx, query, values[0]).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check %s: %w", t.entity, err)
		}
		return 0, rejectedSave(version, exists)
	}
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", t.entity, err)
	}
	return stored, nil
}

func isPrimaryKeyViolation(err error, table string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == table+"_pkey"
}

func deleteByID(ctx context.Context, pool *pgxpool.Pool, table string, id domain.ID) error {
	command, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id.String())
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func existsByName(ctx context.Context, pool *pgxpool.Pool, table, column string, organizationID domain.ID, name string, excludeID domain.ID) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE organization_id IS NOT DISTINCT FROM $1
				AND lower(%s) = lower($2)
				AND id <> $3
		)
	`, table, column), nullableID(organizationID), strings.TrimSpace(name), excludeID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", table, column, err)
	}
	return exists, nil
}

// buildListFilters renders the WHERE clause shared by list queries.
func buildListFilters(table string, filter ListFilter, searchColumns ...string) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM " + table + " WHERE TRUE")

	args := make([]any, 0, 6)
	argIndex := 1

	if !filter.OrganizationID.IsZero() {
		query.WriteString(fmt.Sprintf(" AND organization_id = $%d", argIndex))
		args = append(args, filter.OrganizationID.String())
		argIndex++
	}

	if !filter.CreatedBy.IsZero() {
		query.WriteString(fmt.Sprintf(" AND created_by = $%d", argIndex))
		args = append(args, filter.CreatedBy.String())
		argIndex++
	}

	if filter.Status != "" {
		column := "status"
		if table == "report_templates" {
			column = "type"
		}
		query.WriteString(fmt.Sprintf(" AND %s = $%d", column, argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	if filter.From != nil {
		query.WriteString(fmt.Sprintf(" AND created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		query.WriteString(fmt.Sprintf(" AND created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	if filter.Search != "" && len(searchColumns) > 0 {
		clauses := make([]string, 0, len(searchColumns))
		for _, column := range searchColumns {
			clauses = append(clauses, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", column, argIndex))
		}
		query.WriteString(" AND (" + strings.Join(clauses, " OR ") + ")")
		args = append(args, filter.Search)
		argIndex++
	}

	return query.String(), args
}

func countRows(ctx context.Context, pool *pgxpool.Pool, baseQuery string, args []any) (int, error) {
	var total int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func pageClause(args []any, filter ListFilter) (string, []any) {
	clause := fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	return clause, append(args, filter.PageSize, filter.offset())
}

func nullableID(id domain.ID) any {
	if id.IsZero() {
		return nil
	}
	return id.String()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func parseStoredID(raw string) (domain.ID, error) {
	id, err := domain.ParseID(raw)
	if err != nil {
		return domain.ID{}, fmt.Errorf("stored id %q: %w", raw, err)
	}
	return id, nil
}

func parseOptionalID(raw *string) (domain.ID, error) {
	if raw == nil || *raw == "" {
		return domain.ID{}, nil
	}
	return parseStoredID(*raw)
}
