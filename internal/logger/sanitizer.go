package logger

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMask replaces sensitive values in logged bind variables.
const DefaultMask = "***REDACTED***"

// Sanitizer masks sensitive bind values before statements are logged.
// Values bound to a known column or parameter name are masked individually;
// when names are unknown, every value of a statement that mentions a
// sensitive column is masked.
type Sanitizer struct {
	sensitiveFields map[string]bool
	maskValue       string
	patterns        []*regexp.Regexp
}

// NewSanitizer creates a sanitizer for the given field names.
// An empty list selects the common credential and payment column names.
func NewSanitizer(sensitiveFields []string) *Sanitizer {
	if len(sensitiveFields) == 0 {
		sensitiveFields = []string{
			"password", "passwd", "pwd",
			"token", "api_key", "apikey", "api_token",
			"secret", "auth", "authorization",
			"credit_card", "card_number", "cvv", "cvc",
			"ssn", "social_security",
			"private_key", "priv_key",
		}
	}

	fields := make(map[string]bool, len(sensitiveFields))
	patterns := make([]*regexp.Regexp, 0, len(sensitiveFields))
	for _, field := range sensitiveFields {
		field = strings.ToLower(field)
		fields[field] = true
		patterns = append(patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(field)+`\b`))
	}

	return &Sanitizer{
		sensitiveFields: fields,
		maskValue:       DefaultMask,
		patterns:        patterns,
	}
}

// IsSensitive reports whether name is one of the sensitive fields or ends
// with "_" and one of them, as refresh_token does. Quotes and a leading table
// qualifier are ignored.
func (s *Sanitizer) IsSensitive(name string) bool {
	name = strings.Trim(strings.ToLower(name), "`\"[]")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = strings.Trim(name[i+1:], "`\"[]")
	}
	if s.sensitiveFields[name] {
		return true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '_' && s.sensitiveFields[name[i+1:]] {
			return true
		}
	}
	return false
}

// Mask returns a copy of params with sensitive values replaced.
// names, when it has one entry per param, gives the column or parameter
// each value is bound to; values with an empty name are masked when the SQL
// mentions a sensitive field. Original params are not modified.
func (s *Sanitizer) Mask(sql string, names []string, params []any) []any {
	if len(params) == 0 {
		return params
	}
	if len(names) == len(params) {
		sqlSensitive := s.containsSensitivePattern(sql)
		masked := make([]any, len(params))
		for i, p := range params {
			if s.IsSensitive(names[i]) || (names[i] == "" && sqlSensitive) {
				masked[i] = s.maskValue
			} else {
				masked[i] = p
			}
		}
		return masked
	}
	return s.MaskParams(sql, params)
}

// MaskParams masks every parameter when the SQL mentions a sensitive field.
func (s *Sanitizer) MaskParams(sql string, params []any) []any {
	if len(params) == 0 || !s.containsSensitivePattern(sql) {
		return params
	}
	masked := make([]any, len(params))
	for i := range params {
		masked[i] = s.maskValue
	}
	return masked
}

func (s *Sanitizer) containsSensitivePattern(sql string) bool {
	for _, pattern := range s.patterns {
		if pattern.MatchString(sql) {
			return true
		}
	}
	return false
}

// FormatParams converts parameters to a string for logging.
// Sensitive values should be masked before calling this.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}

	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = s.formatValue(p)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// formatValue truncates long values.
func (s *Sanitizer) formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("<%d bytes>", len(b))
	}

	str := fmt.Sprintf("%v", v)

	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}

	return str
}
