package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/validation"
)

var (
	testAuthor = domain.MustParseID("cauthor0000000000000000001")
	testOrg    = domain.MustParseID("corg000000000000000000001")
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Publish(_ context.Context, events []domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, event := range s.events {
		names = append(names, event.Name)
	}
	return names
}

type fakeQueue struct {
	mu        sync.Mutex
	messages  []domain.QueueMessage
	cancelled []string
	addErr    error
	nextID    int
}

func (q *fakeQueue) AddJob(_ context.Context, jobType domain.JobType, message domain.QueueMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.addErr != nil {
		return "", q.addErr
	}
	q.nextID++
	message.Type = jobType
	if message.QueueJobID == "" {
		message.QueueJobID = fmt.Sprintf("q-%d", q.nextID)
	}
	q.messages = append(q.messages, message)
	return message.QueueJobID, nil
}

func (q *fakeQueue) CancelJob(_ context.Context, queueJobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, queueJobID)
	return true, nil
}

type fixture struct {
	reportRepo   *repository.MemoryReportRepository
	templateRepo *repository.MemoryTemplateRepository
	scheduleRepo *repository.MemoryScheduledReportRepository
	exportRepo   *repository.MemoryExportJobRepository
	queue        *fakeQueue
	sink         *recordingSink

	reports   *ReportService
	templates *TemplateService
	schedules *ScheduleService
	exports   *ExportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reportRepo:   repository.NewMemoryReportRepository(),
		templateRepo: repository.NewMemoryTemplateRepository(),
		scheduleRepo: repository.NewMemoryScheduledReportRepository(),
		exportRepo:   repository.NewMemoryExportJobRepository(),
		queue:        &fakeQueue{},
		sink:         &recordingSink{},
	}
	events := FanOut(f.sink, NewLogEventSink(zaptest.NewLogger(t)))
	f.reports = NewReportService(f.reportRepo, events)
	f.templates = NewTemplateService(f.templateRepo, f.reports, events)
	f.schedules = NewScheduleService(f.scheduleRepo, f.reportRepo, events)
	f.exports = NewExportService(f.exportRepo, f.reportRepo, f.queue, events).WithExecutionRecorder(f.schedules)
	return f
}

func (f *fixture) createReport(t *testing.T, title string) *domain.Report {
	t.Helper()
	report, err := f.reports.Create(context.Background(), CreateReportInput{
		Title:          title,
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	return report
}

func publishableConfig() domain.ReportConfig {
	return domain.ReportConfig{
		Layout:      domain.LayoutConfig{Type: domain.LayoutGrid, Columns: 12},
		DataSources: []domain.DataSource{{ID: "sales", Type: "sql", Query: "select region, total from sales"}},
		Components: []domain.Component{
			{ID: "c1", Type: "table", Title: "Sales", DataSourceID: "sales"},
		},
	}
}

func requireRule(t *testing.T, err error, code domain.RuleCode) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.RuleViolation(code))
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *validation.Error
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	require.Equal(t, field, verr.Field)
}
