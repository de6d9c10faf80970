package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxContentFieldLength bounds any single text value inside report content.
const MaxContentFieldLength = 20000

var ErrContentPolicyViolation = errors.New("content policy violation")

type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Evaluation struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
}

type PolicyViolationError struct {
	Violations []Violation
}

func (e *PolicyViolationError) Error() string {
	if len(e.Violations) == 0 {
		return ErrContentPolicyViolation.Error()
	}
	return "content policy violation: " + e.Violations[0].Message
}

func (e *PolicyViolationError) Unwrap() error {
	return ErrContentPolicyViolation
}

// EnforceContentPolicy rejects report content that cannot be rendered safely
// by the HTML based exporters.
func EnforceContentPolicy(content json.RawMessage) error {
	evaluation := EvaluateContentPolicy(content)
	if evaluation.Allowed {
		return nil
	}
	return &PolicyViolationError{Violations: evaluation.Violations}
}

func EvaluateContentPolicy(content json.RawMessage) Evaluation {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return Evaluation{Allowed: true}
	}

	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return Evaluation{
			Allowed:    false,
			Violations: []Violation{{Code: "invalid_json", Message: "content must be valid JSON"}},
		}
	}

	values := collectStringValues(decoded, nil)
	violations := make([]Violation, 0, 2)
	if hasOversizedField(values) {
		violations = append(violations, Violation{
			Code:    "field_too_large",
			Message: fmt.Sprintf("text fields must be at most %d bytes", MaxContentFieldLength),
		})
	}

	for _, value := range values {
		lowered := strings.ToLower(value)
		for _, token := range blockedMarkup {
			if strings.Contains(lowered, token) {
				violations = append(violations, Violation{
					Code:    "active_content",
					Message: "content contains scripts or active markup",
				})
				break
			}
		}
	}

	if len(violations) == 0 {
		return Evaluation{Allowed: true}
	}
	return Evaluation{
		Allowed:    false,
		Violations: dedupeViolations(violations),
	}
}

var blockedMarkup = []string{
	"<script",
	"javascript:",
	"<iframe",
	"<object",
	"<embed",
	"onerror=",
	"onload=",
}

func collectStringValues(value any, current []string) []string {
	switch typed := value.(type) {
	case map[string]any:
		for _, child := range typed {
			current = collectStringValues(child, current)
		}
	case []any:
		for _, child := range typed {
			current = collectStringValues(child, current)
		}
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed != "" {
			current = append(current, trimmed)
		}
	}
	return current
}

func hasOversizedField(values []string) bool {
	for _, value := range values {
		if len(value) > MaxContentFieldLength {
			return true
		}
	}
	return false
}

func dedupeViolations(values []Violation) []Violation {
	seen := make(map[string]struct{}, len(values))
	result := make([]Violation, 0, len(values))
	for _, value := range values {
		key := value.Code + "|" + value.Message
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, value)
	}
	return result
}
