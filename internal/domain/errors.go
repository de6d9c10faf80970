package domain

import "fmt"

// RuleCode identifies which business rule rejected a mutation.
type RuleCode string

const (
	RuleArchivedReportImmutable         RuleCode = "ARCHIVED_REPORT_IMMUTABLE"
	RulePublishedReportConfigImmutable  RuleCode = "PUBLISHED_REPORT_CONFIG_IMMUTABLE"
	RulePublishedReportContentImmutable RuleCode = "PUBLISHED_REPORT_CONTENT_IMMUTABLE"
	RuleInvalidStatusForPublish         RuleCode = "INVALID_STATUS_FOR_PUBLISH"
	RuleInvalidConfigForPublish         RuleCode = "INVALID_CONFIG_FOR_PUBLISH"
	RuleReportAlreadyArchived           RuleCode = "REPORT_ALREADY_ARCHIVED"
	RuleInvalidStatusForRestore         RuleCode = "INVALID_STATUS_FOR_RESTORE"
	RuleReportTitleTaken                RuleCode = "REPORT_TITLE_TAKEN"

	RuleSystemTemplateImmutable    RuleCode = "SYSTEM_TEMPLATE_IMMUTABLE"
	RuleSystemTemplateDeactivation RuleCode = "SYSTEM_TEMPLATE_CANNOT_BE_DEACTIVATED"
	RuleTemplateTagLimitExceeded   RuleCode = "TEMPLATE_TAG_LIMIT_EXCEEDED"
	RuleTemplateInactive           RuleCode = "TEMPLATE_INACTIVE"
	RuleTemplateNameTaken          RuleCode = "TEMPLATE_NAME_TAKEN"
	RuleNotSystemTemplate          RuleCode = "NOT_SYSTEM_TEMPLATE"
	RuleScheduledReportNameTaken   RuleCode = "SCHEDULED_REPORT_NAME_TAKEN"
	RuleInvalidExportJobTransition RuleCode = "INVALID_EXPORT_JOB_TRANSITION"
	RuleExportOfArchivedReport     RuleCode = "ARCHIVED_REPORT_NOT_EXPORTABLE"
)

// BusinessRuleViolationError is returned when a well-formed mutation is not
// allowed in the aggregate's current state.
type BusinessRuleViolationError struct {
	Code    RuleCode
	Message string
}

func (e *BusinessRuleViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any BusinessRuleViolationError carrying the same code.
func (e *BusinessRuleViolationError) Is(target error) bool {
	other, ok := target.(*BusinessRuleViolationError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// NewRuleViolation builds a violation for rules enforced outside a single
// aggregate, such as name uniqueness checked by services.
func NewRuleViolation(code RuleCode, format string, args ...any) *BusinessRuleViolationError {
	return &BusinessRuleViolationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func violation(code RuleCode, format string, args ...any) *BusinessRuleViolationError {
	return NewRuleViolation(code, format, args...)
}

// RuleViolation builds a comparable sentinel for errors.Is checks.
func RuleViolation(code RuleCode) *BusinessRuleViolationError {
	return &BusinessRuleViolationError{Code: code}
}
