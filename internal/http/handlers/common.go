package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/queue"
	"github.com/iago/reportflow/internal/repository"
	"github.com/iago/reportflow/internal/service"
	"github.com/iago/reportflow/internal/validation"
)

const maxBodyBytes = 1 << 20

var errInvalidPayload = errors.New("invalid payload")

// Dependencies are the collaborators the API needs. ReadinessChecks are run
// by /readyz, keyed by component name.
type Dependencies struct {
	Reports         *service.ReportService
	Templates       *service.TemplateService
	Schedules       *service.ScheduleService
	Exports         *service.ExportService
	ReadinessChecks map[string]ReadinessCheck
	Logger          *zap.Logger
}

type API struct {
	reports     *service.ReportService
	templates   *service.TemplateService
	schedules   *service.ScheduleService
	exports     *service.ExportService
	checks      map[string]ReadinessCheck
	validate    *validator.Validate
	idempotency *idempotencyStore
	logger      *zap.Logger
}

func NewAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		reports:     deps.Reports,
		templates:   deps.Templates,
		schedules:   deps.Schedules,
		exports:     deps.Exports,
		checks:      deps.ReadinessChecks,
		validate:    newValidator(),
		idempotency: newIdempotencyStore(defaultIdempotencyTTL),
		logger:      logger.Named("http"),
	}
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

type errorPayload struct {
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id"`
}

type listPayload[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeErrorDetail(w, r, statusCode, errorDetail{Code: code, Message: message})
}

func writeErrorDetail(w http.ResponseWriter, r *http.Request, statusCode int, detail errorDetail) {
	writeJSON(w, statusCode, errorPayload{Error: detail, RequestID: middleware.GetRequestID(r.Context())})
}

// NotFound and MethodNotAllowed keep chi's fallbacks inside the JSON envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "not_found", "route not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// conflictRules are violations caused by competing state rather than by the
// request itself.
var conflictRules = map[domain.RuleCode]bool{
	domain.RuleReportTitleTaken:           true,
	domain.RuleTemplateNameTaken:          true,
	domain.RuleScheduledReportNameTaken:   true,
	domain.RuleInvalidExportJobTransition: true,
}

func (api *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *validation.Error
	var ruleErr *domain.BusinessRuleViolationError
	switch {
	case errors.As(err, &validationErr):
		writeErrorDetail(w, r, http.StatusBadRequest, errorDetail{
			Code:    "validation_failed",
			Message: validationErr.Error(),
			Field:   validationErr.Field,
		})
	case errors.As(err, &ruleErr):
		status := http.StatusUnprocessableEntity
		if conflictRules[ruleErr.Code] {
			status = http.StatusConflict
		}
		writeErrorDetail(w, r, status, errorDetail{
			Code:    "business_rule_violation",
			Message: ruleErr.Message,
			Rule:    string(ruleErr.Code),
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, repository.ErrConcurrentModification):
		writeError(w, r, http.StatusConflict, "concurrent_modification", "resource was modified concurrently; reload and retry")
	case errors.Is(err, queue.ErrQueueBackpressure), errors.Is(err, queue.ErrBatchingClosed):
		w.Header().Set("Retry-After", "5")
		writeError(w, r, http.StatusServiceUnavailable, "queue_unavailable", "export queue is unavailable")
	default:
		api.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decode reads a JSON body into value and runs its validate tags.
func (api *API) decode(w http.ResponseWriter, r *http.Request, value any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		message := "invalid JSON payload"
		if errors.Is(err, io.EOF) {
			message = "request body is required"
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", message)
		return false
	}
	if err := api.validate.Struct(value); err != nil {
		writeErrorDetail(w, r, http.StatusBadRequest, describeValidation(err))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (domain.ID, bool) {
	id, err := domain.ParseID(chi.URLParam(r, param))
	if err != nil {
		writeErrorDetail(w, r, http.StatusBadRequest, errorDetail{
			Code:    "validation_failed",
			Message: param + " has an invalid format",
			Field:   param,
		})
		return domain.ID{}, false
	}
	return id, true
}

// requireUser returns the calling user, answering 400 when it is unknown.
func requireUser(w http.ResponseWriter, r *http.Request) (middleware.Actor, bool) {
	actor := middleware.GetActor(r.Context())
	if actor.UserID.IsZero() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", middleware.UserIDHeader+" header is required")
		return actor, false
	}
	return actor, true
}

// listFilter builds a repository filter from the query string. parseStatus
// validates the optional status parameter for the listed resource.
func listFilter(r *http.Request, parseStatus func(string) error) (repository.ListFilter, error) {
	query := r.URL.Query()
	filter := repository.ListFilter{
		OrganizationID: middleware.GetActor(r.Context()).OrganizationID,
		Status:         strings.TrimSpace(query.Get("status")),
		Search:         query.Get("search"),
	}

	var err error
	if filter.Page, err = optionalInt(query.Get("page")); err != nil {
		return filter, fmt.Errorf("page: %w", errInvalidPayload)
	}
	if filter.PageSize, err = optionalInt(query.Get("pageSize")); err != nil {
		return filter, fmt.Errorf("pageSize: %w", errInvalidPayload)
	}
	if filter.Status != "" && parseStatus != nil {
		if err := parseStatus(filter.Status); err != nil {
			return filter, fmt.Errorf("status: %w", errInvalidPayload)
		}
	}
	if raw := strings.TrimSpace(query.Get("createdBy")); raw != "" {
		if filter.CreatedBy, err = domain.ParseID(raw); err != nil {
			return filter, fmt.Errorf("createdBy: %w", errInvalidPayload)
		}
	}
	if filter.From, err = parseOptionalDateTime(query.Get("from")); err != nil {
		return filter, fmt.Errorf("from: %w", err)
	}
	if filter.To, err = parseOptionalDateTime(query.Get("to")); err != nil {
		return filter, fmt.Errorf("to: %w", err)
	}
	return filter.Normalized(), nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errInvalidPayload
	}
	return value, nil
}

func parseOptionalDateTime(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errInvalidPayload
	}
	return &parsed, nil
}

func writeFilterError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid query parameter "+strings.TrimSuffix(err.Error(), ": "+errInvalidPayload.Error()))
}

func parseStatusWith[T any](parse func(string) (T, error)) func(string) error {
	return func(raw string) error {
		_, err := parse(raw)
		return err
	}
}
