package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value string
		want  string
	}{
		{"password input", Field{Tag: "input", Type: "password"}, "hunter2", "*******"},
		{"password type is case insensitive", Field{Type: "PASSWORD"}, "abc", "***"},
		{"keyword in name", Field{Name: "cc_card_number"}, "4111111111111111", strings.Repeat("*", 16)},
		{"keyword in id", Field{ID: "userSSN"}, "123-45-6789", "***********"},
		{"keyword in class", Field{Class: "form-control secret-answer"}, "blue", "****"},
		{"cvv", Field{Name: "cvv"}, "123", "***"},
		{"multibyte runes counted once", Field{Type: "password"}, "pässwörd", "********"},
		{"email in free text", Field{Name: "message"}, "contact jane.doe@example.com please", "contact j***@example.com please"},
		{"several emails", Field{Name: "cc"}, "a@x.io,bob@y.org", "a***@x.io,b***@y.org"},
		{"plain text untouched", Field{Name: "q"}, "hello world", "hello world"},
		{"empty", Field{Type: "password"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskValue(tt.field, tt.value))
		})
	}
}

func TestMaskValue_Idempotent(t *testing.T) {
	fields := []Field{
		{Type: "password"},
		{Name: "comment"},
		{Class: "credit"},
	}
	inputs := []string{"*", "*******", "contact j***@example.com please"}

	for _, f := range fields {
		for _, in := range inputs {
			once := MaskValue(f, in)
			assert.Equal(t, once, MaskValue(f, once), "field %+v input %q", f, in)
		}
		assert.Equal(t, "*****", MaskValue(f, "*****"))
	}
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive(Field{Type: "password"}))
	assert.True(t, IsSensitive(Field{Name: "Credit"}))
	assert.True(t, IsSensitive(Field{Name: "pass", ID: "word"}), "name and id are concatenated before matching")
	assert.False(t, IsSensitive(Field{Name: "email", Type: "email"}))
}

func TestMaskForm(t *testing.T) {
	controls := []Control{
		{Field: Field{Tag: "input", Type: "text", Name: "user"}, Value: "jane@corp.com"},
		{Field: Field{Tag: "input", Type: "password", Name: "pw"}, Value: "x"},
		{Field: Field{Tag: "input", Type: "checkbox", Name: "remember"}, Value: "on", Checked: true},
		{Field: Field{Tag: "input", Type: "checkbox", Name: "newsletter"}, Value: "on"},
		{Field: Field{Tag: "input", Type: "radio", Name: "plan"}, Value: "free"},
		{Field: Field{Tag: "input", Type: "radio", Name: "plan"}, Value: "pro", Checked: true},
		{Field: Field{Tag: "input", Type: "checkbox", Name: "tags"}, Value: "a", Checked: true},
		{Field: Field{Tag: "input", Type: "checkbox", Name: "tags"}, Value: "b", Checked: true},
		{Field: Field{Tag: "input", Type: "text", Name: "card_holder"}, Value: "Jane Doe"},
		{Field: Field{Tag: "input", Type: "text", Name: "locked"}, Value: "v", Disabled: true},
		{Field: Field{Tag: "input", Type: "text"}, Value: "unnamed"},
		{Field: Field{Tag: "select", Name: "country"}, Value: "NZ"},
	}

	got := MaskForm(controls)

	assert.Equal(t, map[string]string{
		"user":        "j***@corp.com",
		"pw":          PasswordPlaceholder,
		"remember":    "on",
		"plan":        "pro",
		"tags":        "a, b",
		"card_holder": "********",
		"country":     "NZ",
	}, got)
}

func TestIsMasked(t *testing.T) {
	assert.True(t, IsMasked("*****"))
	assert.True(t, IsMasked(PasswordPlaceholder))
	assert.True(t, IsMasked("mail j***@corp.com"))
	assert.False(t, IsMasked(""))
	assert.False(t, IsMasked("hello"))
	assert.False(t, IsMasked("a*b"))
}
