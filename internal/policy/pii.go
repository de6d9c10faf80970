package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?\d[\d()\-\s.]{7,}\d)`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
)

// MaskEmail keeps the first character of the local part and the domain,
// e.g. "j***@example.com".
func MaskEmail(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return "[email_redacted]"
	}
	return address[:1] + "***" + address[at:]
}

func MaskEmails(addresses []string) []string {
	masked := make([]string, 0, len(addresses))
	for _, address := range addresses {
		masked = append(masked, MaskEmail(address))
	}
	return masked
}

// MaskPIIString redacts email addresses, card numbers and phone numbers.
// Cards go first so they keep their last four digits.
func MaskPIIString(value string) string {
	masked := emailPattern.ReplaceAllStringFunc(value, MaskEmail)
	masked = cardPattern.ReplaceAllStringFunc(masked, maskCardNumber)
	return phonePattern.ReplaceAllString(masked, "[phone_redacted]")
}

func MaskPIIJSON(payload json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(MaskPIIString(string(payload)))
	}

	encoded, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			cloned[key] = maskValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, 0, len(typed))
		for _, child := range typed {
			cloned = append(cloned, maskValue(child))
		}
		return cloned
	case string:
		return MaskPIIString(typed)
	default:
		return value
	}
}

func maskCardNumber(value string) string {
	digits := make([]rune, 0, len(value))
	for _, char := range value {
		if char >= '0' && char <= '9' {
			digits = append(digits, char)
		}
	}
	if len(digits) < 13 {
		return value
	}
	return "**** **** **** " + string(digits[len(digits)-4:])
}
