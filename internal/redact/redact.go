// Package redact masks sensitive values before they leave the page.
// Uses RE2 (Go's regexp package) so matching stays linear in the input.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaskChar replaces every character of a sensitive value
const MaskChar = "*"

// PasswordPlaceholder stands in for password controls in submitted forms
const PasswordPlaceholder = "********"

// sensitiveKeywords mark a field as sensitive when found in its name, id or class
var sensitiveKeywords = []string{"password", "credit", "card", "cvv", "ssn", "secret"}

// emailPattern captures the first local-part character and the domain
var emailPattern = regexp.MustCompile(`([A-Za-z0-9._%+\-])[A-Za-z0-9._%+\-]*@([A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)

// Field identifies the control a value came from
type Field struct {
	Tag   string
	Type  string
	Name  string
	ID    string
	Class string
}

// IsPassword reports whether the field is a password input
func (f Field) IsPassword() bool {
	return strings.EqualFold(f.Type, "password")
}

// IsSensitive reports whether values of this field must be fully masked
func IsSensitive(f Field) bool {
	if f.IsPassword() {
		return true
	}
	haystack := strings.ToLower(f.Name + f.ID + f.Class)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// MaskValue masks a captured value. Sensitive fields become a run of MaskChar of
// the same length; anything else only has email addresses redacted.
func MaskValue(f Field, value string) string {
	if value == "" {
		return value
	}
	if IsSensitive(f) {
		return strings.Repeat(MaskChar, utf8.RuneCountInString(value))
	}
	return MaskEmails(value)
}

// MaskEmails rewrites jane.doe@example.com as j***@example.com and leaves the rest alone
func MaskEmails(s string) string {
	return emailPattern.ReplaceAllString(s, "${1}***@${2}")
}

// Control is the live state of one form control at submit time
type Control struct {
	Field
	Value    string
	Checked  bool
	Disabled bool
}

// MaskForm builds the submitted field map: named, enabled controls only;
// checkboxes and radios count only when checked; passwords are replaced by a
// fixed placeholder. Repeated names are joined with ", ".
func MaskForm(controls []Control) map[string]string {
	fields := make(map[string]string)
	for _, c := range controls {
		if c.Name == "" || c.Disabled {
			continue
		}
		var value string
		switch strings.ToLower(c.Type) {
		case "checkbox", "radio":
			if !c.Checked {
				continue
			}
			value = MaskValue(c.Field, c.Value)
		case "password":
			value = PasswordPlaceholder
		default:
			value = MaskValue(c.Field, c.Value)
		}
		if prev, ok := fields[c.Name]; ok {
			value = prev + ", " + value
		}
		fields[c.Name] = value
	}
	return fields
}

// IsMasked reports whether a recorded value lost information to masking and
// can no longer be typed back verbatim.
func IsMasked(value string) bool {
	if value == "" {
		return false
	}
	if strings.Trim(value, MaskChar) == "" {
		return true
	}
	return strings.Contains(value, "***@")
}
