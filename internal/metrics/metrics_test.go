package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/reportflow/internal/domain"
)

func TestPublishCountsEventsByAggregate(t *testing.T) {
	m := New()
	m.Publish(context.Background(), []domain.Event{
		{Name: "report.created", AggregateType: "report"},
		{Name: "report.published", AggregateType: "report"},
		{Name: "report.published", AggregateType: "report"},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DomainEvents.WithLabelValues("report", "report.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DomainEvents.WithLabelValues("report", "report.published")))
}

func TestObserveExportAndDelivery(t *testing.T) {
	m := New()
	m.ObserveExport(domain.ExportFormatCSV, domain.ExportJobStatusCompleted, 120*time.Millisecond, 2048)
	m.ObserveExport(domain.ExportFormatCSV, domain.ExportJobStatusFailed, time.Second, 0)
	m.ObserveDelivery(domain.DeliveryMethodWebhook, errors.New("timeout"))
	m.ObserveScheduleFired(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsFinished.WithLabelValues("CSV", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsFinished.WithLabelValues("CSV", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("WEBHOOK", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulesFired.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExportDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/v1/reports", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reportflow_http_requests_total{method="GET",route="/v1/reports",status="200"} 1`)
}

func TestWatchQueueBacklogSamplesUntilCancelled(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.WatchQueueBacklog(ctx, 5*time.Millisecond, func(context.Context) (int64, error) {
			if calls.Add(1) > 2 {
				return 0, errors.New("redis down")
			}
			return 7, nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueBacklogSize))
}
