package worker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iago/reportflow/internal/delivery"
	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/exporter"
	"github.com/iago/reportflow/internal/metrics"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/service"
	"github.com/iago/reportflow/internal/storage"
)

var (
	testAuthor = domain.MustParseID("cauthor0000000000000000001")
	testOrg    = domain.MustParseID("corg000000000000000000001")
)

type capturingDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery.Delivery
	err        error
}

func (d *capturingDeliverer) Deliver(_ context.Context, in delivery.Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, in)
	return d.err
}

type harness struct {
	local        *queue.LocalQueue
	scheduleRepo *repository.MemoryScheduledReportRepository
	reports      *service.ReportService
	schedules    *service.ScheduleService
	exports      *service.ExportService
	deliverer    *capturingDeliverer
	metrics      *metrics.Metrics
	processor    *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reportRepo := repository.NewMemoryReportRepository()
	events := service.NewLogEventSink(logger)

	local := queue.NewLocalQueue(16, 2, logger)
	store, err := storage.NewLocalStore(t.TempDir(), "http://files.test", logger)
	require.NoError(t, err)

	scheduleRepo := repository.NewMemoryScheduledReportRepository()
	schedules := service.NewScheduleService(scheduleRepo, reportRepo, events)
	h := &harness{
		local:        local,
		scheduleRepo: scheduleRepo,
		reports:      service.NewReportService(reportRepo, events),
		schedules:    schedules,
		exports: service.NewExportService(repository.NewMemoryExportJobRepository(), reportRepo, queue.NewClient(local, local), events).
			WithExecutionRecorder(schedules),
		deliverer: &capturingDeliverer{},
		metrics:   metrics.New(),
	}
	h.processor = NewProcessor(Dependencies{
		Consumer:  local,
		Exports:   h.exports,
		Schedules: h.schedules,
		Reports:   reportRepo,
		Renderer:  exporter.NewRegistry(nil),
		Store:     store,
		Deliverer: h.deliverer,
		Metrics:   h.metrics,
		Logger:    logger,
	})
	return h
}

func (h *harness) createReport(t *testing.T) *domain.Report {
	t.Helper()
	report, err := h.reports.Create(context.Background(), service.CreateReportInput{
		Title:          "Regional sales",
		Content:        []byte(`{"north":120,"south":80}`),
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	return report
}

func (h *harness) message(job *domain.ExportJob) domain.QueueMessage {
	return domain.QueueMessage{
		QueueJobID:  job.QueueJobID(),
		Type:        domain.JobTypeExport,
		ExportJobID: job.ID().String(),
	}
}

func TestProcessMessageCompletesExport(t *testing.T) {
	h := newHarness(t)
	report := h.createReport(t)
	job, err := h.exports.Request(context.Background(), service.RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatCSV,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)

	require.NoError(t, h.processor.processMessage(context.Background(), h.message(job)))

	done, err := h.exports.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusCompleted, done.Status())
	assert.Equal(t, "exports/"+testOrg.String()+"/"+job.ID().String()+".csv", done.FilePath())
	assert.Equal(t, "http://files.test/"+done.FilePath(), done.DownloadURL())
	assert.Positive(t, done.FileSize())

	data, err := os.ReadFile(done.FileURL()[len("file://"):])
	require.NoError(t, err)
	assert.Contains(t, string(data), "content,north,120")
	assert.Empty(t, h.deliverer.deliveries)
}

func TestProcessMessageMarksUnsupportedFormatFailed(t *testing.T) {
	h := newHarness(t)
	report := h.createReport(t)
	job, err := h.exports.Request(context.Background(), service.RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatPDF,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)

	require.NoError(t, h.processor.processMessage(context.Background(), h.message(job)))

	failed, err := h.exports.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusFailed, failed.Status())
	assert.Contains(t, failed.ErrorMessage(), "unsupported format")

	retried, err := h.exports.Retry(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusPending, retried.Status())
}

func TestProcessMessageSkipsCancelledJob(t *testing.T) {
	h := newHarness(t)
	report := h.createReport(t)
	job, err := h.exports.Request(context.Background(), service.RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatJSON,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	_, err = h.exports.Cancel(context.Background(), job.ID())
	require.NoError(t, err)

	require.NoError(t, h.processor.processMessage(context.Background(), h.message(job)))

	stored, err := h.exports.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.ExportJobStatusCancelled, stored.Status())
}

func TestProcessMessageDeliversScheduledRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	report := h.createReport(t)
	schedule, err := h.schedules.Create(ctx, service.CreateScheduleInput{
		Name:           "Daily sales",
		ReportID:       report.ID(),
		ScheduleConfig: domain.ScheduleConfig{Frequency: domain.FrequencyDaily, Hour: 6, Timezone: "UTC"},
		DeliveryConfig: domain.DeliveryConfig{
			Method:     domain.DeliveryMethodEmail,
			Format:     domain.DeliveryFormatExcel,
			Recipients: []string{"finance@example.com"},
		},
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)
	job, err := h.exports.RequestScheduled(ctx, schedule)
	require.NoError(t, err)

	require.NoError(t, h.processor.processMessage(ctx, h.message(job)))

	require.Len(t, h.deliverer.deliveries, 1)
	sent := h.deliverer.deliveries[0]
	assert.Equal(t, "regional-sales.xlsx", sent.FileName)
	assert.Equal(t, domain.DeliveryMethodEmail, sent.Config.Method)
	assert.NotEmpty(t, sent.Data)

	updated, err := h.schedules.Get(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ExecutionCount())
	assert.Zero(t, updated.FailureCount())
}

// overdueSchedule stores a daily schedule whose next run is already in the past.
func (h *harness) overdueSchedule(t *testing.T, reportID domain.ID) *domain.ScheduledReport {
	t.Helper()
	ctx := context.Background()
	created, err := h.schedules.Create(ctx, service.CreateScheduleInput{
		Name:           "Daily sales",
		ReportID:       reportID,
		ScheduleConfig: domain.ScheduleConfig{Frequency: domain.FrequencyDaily, Hour: 6, Timezone: "UTC"},
		DeliveryConfig: domain.DeliveryConfig{Method: domain.DeliveryMethodDownload, Format: domain.DeliveryFormatCSV},
		CreatedBy:      testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)

	snapshot := created.Snapshot()
	snapshot.NextExecutionAt = time.Now().UTC().Add(-time.Hour)
	overdue := domain.ReconstituteScheduledReport(snapshot)
	require.NoError(t, h.scheduleRepo.Save(ctx, overdue))
	return overdue
}

func TestCancelledScheduledExportRearmsSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	report := h.createReport(t)
	schedule := h.overdueSchedule(t, report.ID())
	overdueAt := schedule.NextExecutionAt()

	job, err := h.exports.RequestScheduled(ctx, schedule)
	require.NoError(t, err)
	_, err = h.exports.Cancel(ctx, job.ID())
	require.NoError(t, err)

	require.NoError(t, h.processor.processMessage(ctx, h.message(job)))

	updated, err := h.schedules.Get(ctx, schedule.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ExecutionCount(), "a cancelled run is counted once")
	assert.Equal(t, 1, updated.FailureCount())
	assert.True(t, updated.NextExecutionAt().After(overdueAt))
	assert.True(t, updated.NextExecutionAt().After(time.Now().UTC()))
	assert.Empty(t, h.deliverer.deliveries)
}

func TestStartConsumesUntilCancelled(t *testing.T) {
	h := newHarness(t)
	report := h.createReport(t)
	job, err := h.exports.Request(context.Background(), service.RequestExportInput{
		ReportID:       report.ID(),
		Format:         domain.ExportFormatHTML,
		UserID:         testAuthor,
		OrganizationID: testOrg,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.processor.Start(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		stored, err := h.exports.Get(context.Background(), job.ID())
		return err == nil && stored.Status() == domain.ExportJobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "q1-sales-north.pdf", fileName(" Q1 Sales: North ", domain.ExportFormatPDF))
	assert.Equal(t, "report.csv", fileName("!!!", domain.ExportFormatCSV))
}
