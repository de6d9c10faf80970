package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/repository"
)

func dailySchedule() domain.ScheduleConfig {
	return domain.ScheduleConfig{Frequency: domain.FrequencyDaily, Hour: 8, Minute: 30, Timezone: "UTC"}
}

func emailDelivery() domain.DeliveryConfig {
	return domain.DeliveryConfig{
		Method:     domain.DeliveryMethodEmail,
		Format:     domain.DeliveryFormatCSV,
		Recipients: []string{"finance@example.com"},
	}
}

func createSchedule(t *testing.T, f *fixture, reportID domain.ID, name string) *domain.ScheduledReport {
	t.Helper()
	schedule, err := f.schedules.Create(context.Background(), CreateScheduleInput{
		Name:           name,
		ReportID:       reportID,
		ScheduleConfig: dailySchedule(),
		DeliveryConfig: emailDelivery(),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	return schedule
}

func TestScheduleServiceCreateRequiresLiveReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.schedules.Create(ctx, CreateScheduleInput{
		Name:           "Daily",
		ReportID:       domain.NewID(),
		ScheduleConfig: dailySchedule(),
		DeliveryConfig: emailDelivery(),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.Error(t, err)

	report := f.createReport(t, "Sales")
	config := publishableConfig()
	_, err = f.reports.Update(ctx, report.ID(), UpdateReportInput{Config: &config})
	require.NoError(t, err)
	_, err = f.reports.Publish(ctx, report.ID())
	require.NoError(t, err)
	_, err = f.reports.Archive(ctx, report.ID())
	require.NoError(t, err)

	_, err = f.schedules.Create(ctx, CreateScheduleInput{
		Name:           "Daily",
		ReportID:       report.ID(),
		ScheduleConfig: dailySchedule(),
		DeliveryConfig: emailDelivery(),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleArchivedReportImmutable)
}

func TestScheduleServiceRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Sales")
	createSchedule(t, f, report.ID(), "Daily sales")

	_, err := f.schedules.Create(context.Background(), CreateScheduleInput{
		Name:           "DAILY SALES",
		ReportID:       report.ID(),
		ScheduleConfig: dailySchedule(),
		DeliveryConfig: emailDelivery(),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	requireRule(t, err, domain.RuleScheduledReportNameTaken)
}

func TestScheduleServiceStatusChangesAndDueList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	later := schedule.NextExecutionAt().Add(time.Minute)
	due, err := f.schedules.ListDue(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	paused, err := f.schedules.Pause(ctx, schedule.ID())
	require.NoError(t, err)
	assert.True(t, paused.Status().IsPaused())

	due, err = f.schedules.ListDue(ctx, later, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	resumed, err := f.schedules.Resume(ctx, schedule.ID())
	require.NoError(t, err)
	assert.True(t, resumed.Status().IsActive())

	inactive, err := f.schedules.Deactivate(ctx, schedule.ID())
	require.NoError(t, err)
	assert.True(t, inactive.Status().IsInactive())

	active, err := f.schedules.Activate(ctx, schedule.ID())
	require.NoError(t, err)
	assert.True(t, active.Status().IsActive())
}

func TestScheduleServiceRecordExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	_, err := f.schedules.RecordExecution(ctx, schedule.ID(), true)
	require.NoError(t, err)
	updated, err := f.schedules.RecordExecution(ctx, schedule.ID(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, updated.ExecutionCount())
	assert.Equal(t, 1, updated.FailureCount())
	assert.InDelta(t, 0.5, updated.SuccessRate(), 0.0001)
	assert.True(t, updated.NextExecutionAt().After(*updated.LastExecutedAt()))
}

func TestScheduleServiceUpdateValidatesDelivery(t *testing.T) {
	f := newFixture(t)
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	delivery := domain.DeliveryConfig{Method: domain.DeliveryMethodWebhook, Format: domain.DeliveryFormatPDF}
	_, err := f.schedules.Update(context.Background(), schedule.ID(), UpdateScheduleInput{DeliveryConfig: &delivery})
	requireValidation(t, err, "deliveryConfig.webhookUrl")

	delivery.WebhookURL = "https://hooks.example.com/reports"
	updated, err := f.schedules.Update(context.Background(), schedule.ID(), UpdateScheduleInput{DeliveryConfig: &delivery})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryMethodWebhook, updated.DeliveryConfig().Method)
}

// contendedScheduleRepo lets another writer save the stored schedule right
// before the next contended Save goes through.
type contendedScheduleRepo struct {
	*repository.MemoryScheduledReportRepository
	contended int
}

func (r *contendedScheduleRepo) Save(ctx context.Context, scheduled *domain.ScheduledReport) error {
	if r.contended > 0 {
		r.contended--
		current, err := r.MemoryScheduledReportRepository.FindByID(ctx, scheduled.ID())
		if err != nil {
			return err
		}
		if err := r.MemoryScheduledReportRepository.Save(ctx, current); err != nil {
			return err
		}
	}
	return r.MemoryScheduledReportRepository.Save(ctx, scheduled)
}

func TestScheduleServiceRecordExecutionRetriesConcurrentEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	repo := &contendedScheduleRepo{MemoryScheduledReportRepository: f.scheduleRepo, contended: 1}
	schedules := NewScheduleService(repo, f.reportRepo, f.sink)

	updated, err := schedules.RecordExecution(ctx, schedule.ID(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ExecutionCount())

	stored, err := f.scheduleRepo.FindByID(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ExecutionCount())
	assert.NotNil(t, stored.LastExecutedAt())
}

func TestScheduleServiceRecordExecutionGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.createReport(t, "Sales")
	schedule := createSchedule(t, f, report.ID(), "Daily sales")

	repo := &contendedScheduleRepo{MemoryScheduledReportRepository: f.scheduleRepo, contended: recordExecutionAttempts}
	schedules := NewScheduleService(repo, f.reportRepo, f.sink)

	_, err := schedules.RecordExecution(ctx, schedule.ID(), true)
	require.ErrorIs(t, err, repository.ErrConcurrentModification)

	stored, err := f.scheduleRepo.FindByID(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutionCount())
}
