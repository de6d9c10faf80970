package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/delivery"
	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/exporter"
	httpserver "github.com/iago/reportflow/internal/http"
	"github.com/iago/reportflow/internal/http/handlers"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/metrics"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/service"
	"github.com/iago/reportflow/internal/storage"
	"github.com/iago/reportflow/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type benchResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchOptions struct {
	createTotal       int
	createConcurrency int
	listTotal         int
	listConcurrency   int
	exportTotal       int
	exportConcurrency int
	output            string
}

type benchEnv struct {
	server  *httptest.Server
	cancel  context.CancelFunc
	done    chan struct{}
	tempDir string
	userID  domain.ID
	orgID   domain.ID
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run an in-process load test against the HTTP API",
		Long: "Starts the API on an httptest server backed by in-memory repositories, " +
			"a local queue and a worker, then measures latency for report and export endpoints.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal bench result: %w", err)
			}
			if opts.output != "" {
				if err := os.WriteFile(opts.output, encoded, 0o644); err != nil {
					return fmt.Errorf("write output file: %w", err)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}
	cmd.Flags().IntVar(&opts.createTotal, "create-total", 200, "total report create requests")
	cmd.Flags().IntVar(&opts.createConcurrency, "create-concurrency", 24, "concurrency for report create requests")
	cmd.Flags().IntVar(&opts.listTotal, "list-total", 120, "total report list requests")
	cmd.Flags().IntVar(&opts.listConcurrency, "list-concurrency", 20, "concurrency for report list requests")
	cmd.Flags().IntVar(&opts.exportTotal, "export-total", 180, "total export requests")
	cmd.Flags().IntVar(&opts.exportConcurrency, "export-concurrency", 28, "concurrency for export requests")
	cmd.Flags().StringVar(&opts.output, "output", "", "optional path to persist bench results JSON")
	return cmd
}

func runBench(ctx context.Context, opts benchOptions) (benchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := startBenchEnvironment(ctx)
	if err != nil {
		return benchResult{}, fmt.Errorf("start bench environment: %w", err)
	}
	defer env.close()

	client := &http.Client{Timeout: 10 * time.Second}
	headers := map[string]string{
		middleware.UserIDHeader:         env.userID.String(),
		middleware.OrganizationIDHeader: env.orgID.String(),
	}

	var reportIDs sync.Map
	var created int64
	createScenario := runScenario("reports_create", opts.createTotal, opts.createConcurrency, func(index int) error {
		var body struct {
			ID string `json:"id"`
		}
		payload := map[string]any{
			"title":       fmt.Sprintf("Load report %d", index),
			"description": "generated by reportctl bench",
			"metadata":    map[string]any{"region": fmt.Sprintf("r%d", index%8)},
		}
		if err := postJSON(client, env.server.URL+"/v1/reports", payload, headers, http.StatusCreated, &body); err != nil {
			return err
		}
		reportIDs.Store(atomic.AddInt64(&created, 1)-1, body.ID)
		return nil
	})

	listScenario := runScenario("reports_list", opts.listTotal, opts.listConcurrency, func(index int) error {
		url := fmt.Sprintf("%s/v1/reports?page=%d&pageSize=20&search=load", env.server.URL, (index%6)+1)
		return getJSON(client, url, headers, http.StatusOK)
	})

	exportScenario := runScenario("exports_request", opts.exportTotal, opts.exportConcurrency, func(index int) error {
		count := atomic.LoadInt64(&created)
		if count == 0 {
			return fmt.Errorf("no reports available to export")
		}
		value, _ := reportIDs.Load(int64(index) % count)
		reportID, _ := value.(string)
		requestHeaders := map[string]string{
			"Idempotency-Key": fmt.Sprintf("bench-export-%06d", index),
		}
		for key, value := range headers {
			requestHeaders[key] = value
		}
		payload := map[string]any{"format": []string{"CSV", "JSON", "HTML", "EXCEL"}[index%4]}
		return postJSON(client, env.server.URL+"/v1/reports/"+reportID+"/exports", payload, requestHeaders, http.StatusAccepted, nil)
	})

	return benchResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        []scenarioResult{createScenario, listScenario, exportScenario},
		SLOEvaluation: map[string]bool{
			"reports_create_p95_le_500ms":   createScenario.P95MS <= 500,
			"reports_list_p95_le_500ms":     listScenario.P95MS <= 500,
			"exports_request_p95_le_1000ms": exportScenario.P95MS <= 1000,
			"no_errors":                     createScenario.Errors+listScenario.Errors+exportScenario.Errors == 0,
		},
	}, nil
}

func startBenchEnvironment(parent context.Context) (*benchEnv, error) {
	tempDir, err := os.MkdirTemp("", "reportflow-bench-*")
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	store, err := storage.NewLocalStore(tempDir, "/files", logger)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	m := metrics.New()
	events := service.FanOut(service.NewLogEventSink(logger), m)
	reportRepo := repository.NewMemoryReportRepository()
	local := queue.NewLocalQueue(4096, 3, logger)

	reports := service.NewReportService(reportRepo, events)
	templates := service.NewTemplateService(repository.NewMemoryTemplateRepository(), reports, events)
	schedules := service.NewScheduleService(repository.NewMemoryScheduledReportRepository(), reportRepo, events)
	exports := service.NewExportService(repository.NewMemoryExportJobRepository(), reportRepo, queue.NewClient(local, local), events).
		WithExecutionRecorder(schedules)

	processor := worker.NewProcessor(worker.Dependencies{
		Consumer:  local,
		Exports:   exports,
		Schedules: schedules,
		Reports:   reportRepo,
		Renderer:  exporter.NewRegistry(nil),
		Store:     store,
		Deliverer: delivery.NewRouter(logger),
		Metrics:   m,
		Logger:    logger,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Start(ctx)
	}()

	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API: handlers.NewAPI(handlers.Dependencies{
			Reports:   reports,
			Templates: templates,
			Schedules: schedules,
			Exports:   exports,
			Logger:    logger,
		}),
		Logger:      logger,
		Metrics:     m,
		RateLimiter: middleware.NewRateLimiter(20000, 20000),
		FilesDir:    tempDir,
	})

	return &benchEnv{
		server:  httptest.NewServer(router),
		cancel:  cancel,
		done:    done,
		tempDir: tempDir,
		userID:  domain.NewID(),
		orgID:   domain.NewID(),
	}, nil
}

func (e *benchEnv) close() {
	e.server.Close()
	e.cancel()
	<-e.done
	_ = os.RemoveAll(e.tempDir)
}

func runScenario(name string, total, concurrency int, requestFn func(index int) error) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(client *http.Client, url string, payload any, headers map[string]string, expectedStatus int, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	return doJSON(client, request, headers, expectedStatus, out)
}

func getJSON(client *http.Client, url string, headers map[string]string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return doJSON(client, request, headers, expectedStatus, nil)
}

func doJSON(client *http.Client, request *http.Request, headers map[string]string, expectedStatus int, out any) error {
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	if out != nil {
		return json.NewDecoder(response.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
