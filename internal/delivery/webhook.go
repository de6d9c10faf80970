package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type webhookPayload struct {
	Event             string    `json:"event"`
	ScheduledReportID string    `json:"scheduledReportId"`
	ScheduleName      string    `json:"scheduleName"`
	ReportTitle       string    `json:"reportTitle"`
	ExportJobID       string    `json:"exportJobId"`
	Format            string    `json:"format"`
	DownloadURL       string    `json:"downloadUrl"`
	FileSize          int       `json:"fileSize"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

type WebhookConfig struct {
	Timeout time.Duration
	// FailureThreshold consecutive failures open the breaker for a host.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// WebhookSender posts a JSON notification to the configured URL. Each target
// host gets its own circuit breaker.
type WebhookSender struct {
	client *http.Client
	cfg    WebhookConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewWebhookSender(cfg WebhookConfig, logger *zap.Logger) *WebhookSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSender{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *WebhookSender) Send(ctx context.Context, delivery Delivery) error {
	target, err := url.Parse(delivery.Config.WebhookURL)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	body, err := json.Marshal(webhookPayload{
		Event:             "report.delivered",
		ScheduledReportID: delivery.ScheduledReportID.String(),
		ScheduleName:      delivery.ScheduleName,
		ReportTitle:       delivery.ReportTitle,
		ExportJobID:       delivery.ExportJobID.String(),
		Format:            string(delivery.Config.Format),
		DownloadURL:       delivery.DownloadURL,
		FileSize:          len(delivery.Data),
		GeneratedAt:       delivery.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	_, err = s.breaker(target.Host).Execute(func() (interface{}, error) {
		return nil, s.post(ctx, target.String(), body)
	})
	return err
}

func (s *WebhookSender) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "reportflow-webhook/1")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

func (s *WebhookSender) breaker(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[host]; ok {
		return cb
	}
	threshold := s.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook:" + host,
		MaxRequests: 1,
		Timeout:     s.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("webhook breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	s.breakers[host] = cb
	return cb
}
