package capture

import (
	"strings"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/redact"
)

// RawEvent is one interaction as reported by the page probe, before any filtering
type RawEvent struct {
	Type      string             `json:"type"` // DOM event type
	URL       string             `json:"url"`
	Snapshot  string             `json:"snapshot,omitempty"` // documentElement.outerHTML at event time
	Ordinal   int                `json:"ordinal"`            // target position in getElementsByTagName('*'), -1 for none
	InputType string             `json:"inputType,omitempty"`
	Value     string             `json:"value,omitempty"`
	Checked   bool               `json:"checked,omitempty"`
	Key       string             `json:"key,omitempty"`
	ScrollX   float64            `json:"scrollX,omitempty"`
	ScrollY   float64            `json:"scrollY,omitempty"`
	Box       action.BoundingBox `json:"rect"`
	Modifiers action.Modifiers   `json:"modifiers"`
	Controls  []FormControl      `json:"controls,omitempty"` // submit only
}

// FormControl is the live state of a form control sent with submit events
type FormControl struct {
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	ID       string `json:"id"`
	Class    string `json:"class"`
	Value    string `json:"value"`
	Checked  bool   `json:"checked"`
	Disabled bool   `json:"disabled"`
}

func (c FormControl) control() redact.Control {
	return redact.Control{
		Field:    redact.Field{Tag: c.Tag, Type: c.Type, Name: c.Name, ID: c.ID, Class: c.Class},
		Value:    c.Value,
		Checked:  c.Checked,
		Disabled: c.Disabled,
	}
}

// recordedKeys are the only keys that produce keypress records
var recordedKeys = map[string]bool{
	"Tab":    true,
	"Enter":  true,
	"Escape": true,
}

// kindOf maps a DOM event type onto an action kind
func kindOf(ev RawEvent) (action.Kind, bool) {
	switch strings.ToLower(ev.Type) {
	case "click":
		return action.KindClick, true
	case "dblclick":
		return action.KindDoubleClick, true
	case "input":
		return action.KindInput, true
	case "change":
		return action.KindChange, true
	case "submit":
		return action.KindSubmit, true
	case "keydown", "keypress":
		if !recordedKeys[ev.Key] {
			return "", false
		}
		return action.KindKeyPress, true
	case "scroll":
		return action.KindScroll, true
	case "mouseover", "mouseenter":
		return action.KindHover, true
	case "focus", "focusin":
		return action.KindFocus, true
	case "blur", "focusout":
		return action.KindBlur, true
	default:
		return "", false
	}
}

// nonContentTags never produce records
var nonContentTags = map[string]bool{
	"head":   true,
	"meta":   true,
	"title":  true,
	"script": true,
	"style":  true,
	"link":   true,
}
