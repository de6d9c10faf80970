package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iago/reportflow/internal/domain"
)

func sampleDelivery(method domain.DeliveryMethod) Delivery {
	return Delivery{
		ScheduledReportID: domain.MustParseID("cschedule00000000000000001"),
		ScheduleName:      "Daily sales",
		ReportTitle:       "Regional sales",
		ExportJobID:       domain.MustParseID("cexport0000000000000000001"),
		Config: domain.DeliveryConfig{
			Method:     method,
			Format:     domain.DeliveryFormatCSV,
			Recipients: []string{"finance@example.com", "ops@example.com"},
		},
		FileName:    "regional-sales.csv",
		ContentType: "text/csv",
		DownloadURL: "http://localhost:8080/files/exports/regional-sales.csv",
		Data:        []byte("section,key,value\ncontent,north,120\n"),
		GeneratedAt: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestWebhookSenderPostsNotification(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	delivery := sampleDelivery(domain.DeliveryMethodWebhook)
	delivery.Config.WebhookURL = server.URL + "/hooks/reports"

	sender := NewWebhookSender(WebhookConfig{}, zaptest.NewLogger(t))
	require.NoError(t, sender.Send(context.Background(), delivery))

	assert.Equal(t, "report.delivered", received.Event)
	assert.Equal(t, "Regional sales", received.ReportTitle)
	assert.Equal(t, delivery.DownloadURL, received.DownloadURL)
	assert.Equal(t, len(delivery.Data), received.FileSize)
}

func TestWebhookSenderOpensBreakerAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	delivery := sampleDelivery(domain.DeliveryMethodWebhook)
	delivery.Config.WebhookURL = server.URL

	sender := NewWebhookSender(WebhookConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, zaptest.NewLogger(t))
	for i := 0; i < 2; i++ {
		err := sender.Send(context.Background(), delivery)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	}

	err := sender.Send(context.Background(), delivery)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmailSenderBuildsMultipartMessage(t *testing.T) {
	var (
		gotAddr string
		gotAuth sasl.Client
		gotFrom string
		gotTo   []string
		gotBody string
	)
	sender := NewEmailSender(EmailConfig{Addr: "smtp.example.com:587", Username: "reports", Password: "secret", From: "reports@example.com"})
	sender.send = func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error {
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		gotAddr, gotAuth, gotFrom, gotTo, gotBody = addr, auth, from, to, string(body)
		return nil
	}

	require.NoError(t, sender.Send(context.Background(), sampleDelivery(domain.DeliveryMethodEmail)))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "reports@example.com", gotFrom)
	assert.Equal(t, []string{"finance@example.com", "ops@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: Daily sales: Regional sales")
	assert.Contains(t, gotBody, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, gotBody, `filename=regional-sales.csv`)
	assert.Contains(t, gotBody, "http://localhost:8080/files/exports/regional-sales.csv")
}

func TestEmailSenderRequiresRecipients(t *testing.T) {
	delivery := sampleDelivery(domain.DeliveryMethodEmail)
	delivery.Config.Recipients = nil
	assert.Error(t, NewEmailSender(EmailConfig{}).Send(context.Background(), delivery))
}

type capturedMail struct {
	from string
	to   []string
	data string
}

type mailBackend struct {
	mu    sync.Mutex
	mails []capturedMail
}

func (b *mailBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &mailSession{backend: b}, nil
}

type mailSession struct {
	backend *mailBackend
	current capturedMail
}

func (s *mailSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *mailSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *mailSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(data)
	s.backend.mu.Lock()
	s.backend.mails = append(s.backend.mails, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *mailSession) Reset() {
	s.current = capturedMail{}
}

func (s *mailSession) Logout() error {
	return nil
}

func TestEmailSenderAgainstSMTPServer(t *testing.T) {
	backend := &mailBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(listener) }()
	defer server.Close()

	sender := NewEmailSender(EmailConfig{Addr: listener.Addr().String(), From: "reports@example.com"})
	require.NoError(t, sender.Send(context.Background(), sampleDelivery(domain.DeliveryMethodEmail)))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.mails, 1)
	mail := backend.mails[0]
	assert.Equal(t, "reports@example.com", mail.from)
	assert.Equal(t, []string{"finance@example.com", "ops@example.com"}, mail.to)
	assert.True(t, strings.Contains(mail.data, "regional-sales.csv"))
}

type recordingSender struct {
	calls int
	err   error
}

func (s *recordingSender) Send(context.Context, Delivery) error {
	s.calls++
	return s.err
}

func TestRouterDispatchesByMethod(t *testing.T) {
	router := NewRouter(zaptest.NewLogger(t))
	webhook := &recordingSender{}
	email := &recordingSender{err: errors.New("mailbox full")}
	router.Register(domain.DeliveryMethodWebhook, webhook)
	router.Register(domain.DeliveryMethodEmail, email)

	require.NoError(t, router.Deliver(context.Background(), sampleDelivery(domain.DeliveryMethodWebhook)))
	require.NoError(t, router.Deliver(context.Background(), sampleDelivery(domain.DeliveryMethodDownload)))

	err := router.Deliver(context.Background(), sampleDelivery(domain.DeliveryMethodEmail))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")

	assert.Equal(t, 1, webhook.calls)
	assert.Equal(t, 1, email.calls)
}

func TestRouterWithoutSender(t *testing.T) {
	router := NewRouter(nil)
	err := router.Deliver(context.Background(), sampleDelivery(domain.DeliveryMethodEmail))
	assert.ErrorIs(t, err, ErrNoSender)
}
