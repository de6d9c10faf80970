package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iago/reportflow/internal/domain"
)

// MemoryReportRepository stores reports in memory for local development.
// Snapshots are copied on the way in and out so callers never share state.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[string]domain.ReportSnapshot
}

func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{
		reports: make(map[string]domain.ReportSnapshot),
	}
}

func (r *MemoryReportRepository) FindByID(_ context.Context, id domain.ID) (*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.reports[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return domain.ReconstituteReport(snapshot), nil
}

func (r *MemoryReportRepository) Save(_ context.Context, report *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.reports[report.ID().String()]
	version, err := nextVersion(stored.Version, exists, report.Version())
	if err != nil {
		return err
	}
	snapshot := report.Snapshot()
	snapshot.Version = version
	r.reports[report.ID().String()] = snapshot
	report.SetVersion(version)
	return nil
}

func (r *MemoryReportRepository) Delete(_ context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[id.String()]; !ok {
		return ErrNotFound
	}
	delete(r.reports, id.String())
	return nil
}

func (r *MemoryReportRepository) ExistsByTitle(_ context.Context, organizationID domain.ID, title string, excludeID domain.ID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, snapshot := range r.reports {
		if snapshot.ID.Equals(excludeID) || !snapshot.OrganizationID.Equals(organizationID) {
			continue
		}
		if sameName(snapshot.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryReportRepository) List(_ context.Context, filter ListFilter) ([]*domain.Report, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalized()
	matched := make([]domain.ReportSnapshot, 0)
	for _, s := range r.reports {
		if matchesFilter(filter, s.OrganizationID, s.CreatedBy, s.Status.String(), s.CreatedAt, s.Title, s.Description) {
			matched = append(matched, s)
		}
	}
	sortNewestFirst(matched, func(s domain.ReportSnapshot) time.Time { return s.CreatedAt })

	page := paginate(matched, filter)
	items := make([]*domain.Report, 0, len(page))
	for _, s := range page {
		items = append(items, domain.ReconstituteReport(s))
	}
	return items, len(matched), nil
}

// MemoryTemplateRepository stores report templates in memory.
type MemoryTemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]domain.ReportTemplateSnapshot
}

func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{
		templates: make(map[string]domain.ReportTemplateSnapshot),
	}
}

func (r *MemoryTemplateRepository) FindByID(_ context.Context, id domain.ID) (*domain.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.templates[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return domain.ReconstituteReportTemplate(snapshot), nil
}

func (r *MemoryTemplateRepository) Save(_ context.Context, template *domain.ReportTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.templates[template.ID().String()]
	version, err := nextVersion(stored.Version, exists, template.Version())
	if err != nil {
		return err
	}
	snapshot := template.Snapshot()
	snapshot.Version = version
	r.templates[template.ID().String()] = snapshot
	template.SetVersion(version)
	return nil
}

func (r *MemoryTemplateRepository) Delete(_ context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[id.String()]; !ok {
		return ErrNotFound
	}
	delete(r.templates, id.String())
	return nil
}

func (r *MemoryTemplateRepository) ExistsByName(_ context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, snapshot := range r.templates {
		if snapshot.ID.Equals(excludeID) || !snapshot.OrganizationID.Equals(organizationID) {
			continue
		}
		if sameName(snapshot.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryTemplateRepository) List(_ context.Context, filter ListFilter) ([]*domain.ReportTemplate, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalized()
	matched := make([]domain.ReportTemplateSnapshot, 0)
	for _, s := range r.templates {
		if matchesFilter(filter, s.OrganizationID, s.CreatedBy, string(s.Type), s.CreatedAt, s.Name, s.Description, s.Category) {
			matched = append(matched, s)
		}
	}
	sortNewestFirst(matched, func(s domain.ReportTemplateSnapshot) time.Time { return s.CreatedAt })

	page := paginate(matched, filter)
	items := make([]*domain.ReportTemplate, 0, len(page))
	for _, s := range page {
		items = append(items, domain.ReconstituteReportTemplate(s))
	}
	return items, len(matched), nil
}

func (r *MemoryTemplateRepository) ListActive(_ context.Context, organizationID domain.ID) ([]*domain.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.ReportTemplateSnapshot, 0)
	for _, s := range r.templates {
		if !s.IsActive {
			continue
		}
		if s.IsSystem || s.OrganizationID.Equals(organizationID) {
			matched = append(matched, s)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].UsageCount != matched[j].UsageCount {
			return matched[i].UsageCount > matched[j].UsageCount
		}
		return matched[i].Name < matched[j].Name
	})

	items := make([]*domain.ReportTemplate, 0, len(matched))
	for _, s := range matched {
		items = append(items, domain.ReconstituteReportTemplate(s))
	}
	return items, nil
}

// MemoryScheduledReportRepository stores scheduled reports in memory.
type MemoryScheduledReportRepository struct {
	mu        sync.RWMutex
	schedules map[string]domain.ScheduledReportSnapshot
}

func NewMemoryScheduledReportRepository() *MemoryScheduledReportRepository {
	return &MemoryScheduledReportRepository{
		schedules: make(map[string]domain.ScheduledReportSnapshot),
	}
}

func (r *MemoryScheduledReportRepository) FindByID(_ context.Context, id domain.ID) (*domain.ScheduledReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.schedules[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return domain.ReconstituteScheduledReport(snapshot), nil
}

func (r *MemoryScheduledReportRepository) Save(_ context.Context, scheduled *domain.ScheduledReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.schedules[scheduled.ID().String()]
	version, err := nextVersion(stored.Version, exists, scheduled.Version())
	if err != nil {
		return err
	}
	snapshot := scheduled.Snapshot()
	snapshot.Version = version
	r.schedules[scheduled.ID().String()] = snapshot
	scheduled.SetVersion(version)
	return nil
}

func (r *MemoryScheduledReportRepository) Delete(_ context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.schedules[id.String()]; !ok {
		return ErrNotFound
	}
	delete(r.schedules, id.String())
	return nil
}

func (r *MemoryScheduledReportRepository) ExistsByName(_ context.Context, organizationID domain.ID, name string, excludeID domain.ID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, snapshot := range r.schedules {
		if snapshot.ID.Equals(excludeID) || !snapshot.OrganizationID.Equals(organizationID) {
			continue
		}
		if sameName(snapshot.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryScheduledReportRepository) List(_ context.Context, filter ListFilter) ([]*domain.ScheduledReport, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter = filter.Normalized()
	matched := make([]domain.ScheduledReportSnapshot, 0)
	for _, s := range r.schedules {
		if matchesFilter(filter, s.OrganizationID, s.CreatedBy, s.Status.String(), s.CreatedAt, s.Name, s.Description) {
			matched = append(matched, s)
		}
	}
	sortNewestFirst(matched, func(s domain.ScheduledReportSnapshot) time.Time { return s.CreatedAt })

	page := paginate(matched, filter)
	items := make([]*domain.ScheduledReport, 0, len(page))
	for _, s := range page {
		items = append(items, domain.ReconstituteScheduledReport(s))
	}
	return items, len(matched), nil
}

func (r *MemoryScheduledReportRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*domain.ScheduledReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]domain.ScheduledReportSnapshot, 0)
	for _, s := range r.schedules {
		if s.Status.IsActive() && !s.NextExecutionAt.After(now) {
			due = append(due, s)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextExecutionAt.Before(due[j].NextExecutionAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	items := make([]*domain.ScheduledReport, 0, len(due))
	for _, s := range due {
		items = append(items, domain.ReconstituteScheduledReport(s))
	}
	return items, nil
}

// MemoryExportJobRepository stores export jobs in memory.
type MemoryExportJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]domain.ExportJobSnapshot
}

func NewMemoryExportJobRepository() *MemoryExportJobRepository {
	return &MemoryExportJobRepository{
		jobs: make(map[string]domain.ExportJobSnapshot),
	}
}

func (r *MemoryExportJobRepository) FindByID(_ context.Context, id domain.ID) (*domain.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.jobs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return domain.ReconstituteExportJob(snapshot), nil
}

func (r *MemoryExportJobRepository) Save(_ context.Context, job *domain.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobs[job.ID().String()]
	version, err := nextVersion(stored.Version, exists, job.Version())
	if err != nil {
		return err
	}
	snapshot := job.Snapshot()
	snapshot.Version = version
	r.jobs[job.ID().String()] = snapshot
	job.SetVersion(version)
	return nil
}

func (r *MemoryExportJobRepository) Delete(_ context.Context, id domain.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id.String()]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id.String())
	return nil
}

func (r *MemoryExportJobRepository) ListByReport(_ context.Context, reportID domain.ID) ([]*domain.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.ExportJobSnapshot, 0)
	for _, s := range r.jobs {
		if s.ReportID.Equals(reportID) {
			matched = append(matched, s)
		}
	}
	sortNewestFirst(matched, func(s domain.ExportJobSnapshot) time.Time { return s.CreatedAt })

	items := make([]*domain.ExportJob, 0, len(matched))
	for _, s := range matched {
		items = append(items, domain.ReconstituteExportJob(s))
	}
	return items, nil
}
