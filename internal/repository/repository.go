package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/iago/reportflow/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrConcurrentModification means the aggregate was saved by someone else
	// after it was loaded.
	ErrConcurrentModification = errors.New("resource was modified concurrently")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListFilter narrows list queries. Zero values mean "any".
type ListFilter struct {
	OrganizationID domain.ID
	CreatedBy      domain.ID
	Status         string
	Search         string
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
}

// Normalized applies paging defaults and bounds.
func (f ListFilter) Normalized() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.PageSize
}

// ReportRepository persists Report aggregates.
type ReportRepository interface {
	FindByID(ctx context.Context, id domain.ID) (*domain.Report, error)
	Save(ctx context.Context, report *domain.Report) error
	Delete(ctx context.Context, id domain.ID) error
	// ExistsByTitle ignores excludeID so a report does not collide with itself.
	ExistsByTitle(ctx context.Context, organizationID domain.ID, title string, excludeID domain.ID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Report, int, error)
}

// TemplateRepository persists ReportTemplate aggregates.
type TemplateRepository interface {
	FindByID(ctx context.Context, id domain.ID) (*domain.ReportTemplate, error)
	Save(ctx context.Context, template *domain.ReportTemplate) error
	Delete(ctx context.Context, id domain.ID) error
	ExistsByName(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.ReportTemplate, int, error)
	// ListActive returns the organization's active templates plus every
	// active system template, ordered by usage.
	ListActive(ctx context.Context, organizationID domain.ID) ([]*domain.ReportTemplate, error)
}

// ScheduledReportRepository persists ScheduledReport aggregates.
type ScheduledReportRepository interface {
	FindByID(ctx context.Context, id domain.ID) (*domain.ScheduledReport, error)
	Save(ctx context.Context, scheduled *domain.ScheduledReport) error
	Delete(ctx context.Context, id domain.ID) error
	ExistsByName(ctx context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.ScheduledReport, int, error)
	// ListDue returns active schedules whose next execution is at or before
	// now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledReport, error)
}

// ExportJobRepository persists ExportJob aggregates.
type ExportJobRepository interface {
	FindByID(ctx context.Context, id domain.ID) (*domain.ExportJob, error)
	Save(ctx context.Context, job *domain.ExportJob) error
	Delete(ctx context.Context, id domain.ID) error
	ListByReport(ctx context.Context, reportID domain.ID) ([]*domain.ExportJob, error)
}

// nextVersion applies the optimistic concurrency check shared by all stores.
func nextVersion(stored int, exists bool, incoming int) (int, error) {
	if !exists {
		if incoming != 0 {
			return 0, rejectedSave(incoming, exists)
		}
		return 1, nil
	}
	if stored != incoming {
		return 0, rejectedSave(incoming, exists)
	}
	return stored + 1, nil
}

// rejectedSave is the error for a write whose version did not match the
// stored row. A versioned aggregate with no row left was deleted.
func rejectedSave(incoming int, exists bool) error {
	if !exists && incoming != 0 {
		return ErrNotFound
	}
	return ErrConcurrentModification
}

func paginate[T any](items []T, filter ListFilter) []T {
	total := len(items)
	start := filter.offset()
	if start >= total {
		return []T{}
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end]
}

func sortNewestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}

func matchesFilter(filter ListFilter, organizationID, createdBy domain.ID, status string, createdAt time.Time, text ...string) bool {
	if !filter.OrganizationID.IsZero() && !filter.OrganizationID.Equals(organizationID) {
		return false
	}
	if !filter.CreatedBy.IsZero() && !filter.CreatedBy.Equals(createdBy) {
		return false
	}
	if filter.Status != "" && filter.Status != status {
		return false
	}
	if filter.From != nil && createdAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && createdAt.After(*filter.To) {
		return false
	}
	if filter.Search == "" {
		return true
	}
	needle := strings.ToLower(filter.Search)
	for _, value := range text {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
