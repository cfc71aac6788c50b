package action

import "time"

// Kind tags a normalized user interaction
type Kind string

const (
	KindClick       Kind = "click"
	KindDoubleClick Kind = "dblclick"
	KindInput       Kind = "input"
	KindChange      Kind = "change"
	KindSubmit      Kind = "submit"
	KindKeyPress    Kind = "keypress"
	KindScroll      Kind = "scroll"
	KindHover       Kind = "hover"
	KindFocus       Kind = "focus"
	KindBlur        Kind = "blur"
)

// ViewportOnly reports whether records of this kind may omit a target
func (k Kind) ViewportOnly() bool {
	return k == KindScroll
}

// BoundingBox is the target's client rect at event time
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the box in viewport pixels
func (b BoundingBox) Center() (int, int) {
	return int(b.X + b.Width/2), int(b.Y + b.Height/2)
}

// Empty reports whether the box has no area
func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Target describes the element an action was performed on
type Target struct {
	Selector        string            `json:"selector,omitempty"`        // Short CSS-like locator
	FallbackLocator string            `json:"fallbackLocator,omitempty"` // Positional XPath locator
	Tag             string            `json:"tag"`
	Text            string            `json:"text,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	Box             BoundingBox       `json:"boundingBox"`
}

// Modifiers holds the modifier-key state of a pointer or key event
type Modifiers struct {
	Alt   bool `json:"alt,omitempty"`
	Ctrl  bool `json:"ctrl,omitempty"`
	Meta  bool `json:"meta,omitempty"`
	Shift bool `json:"shift,omitempty"`
}

// Any reports whether at least one modifier was held
func (m Modifiers) Any() bool {
	return m.Alt || m.Ctrl || m.Meta || m.Shift
}

// Payload carries the kind-specific part of a record
type Payload struct {
	Value     string            `json:"value,omitempty"`     // input, change
	InputType string            `json:"inputType,omitempty"` // type attribute of the control
	Key       string            `json:"key,omitempty"`       // keypress
	Checked   *bool             `json:"checked,omitempty"`   // checkbox, radio
	Fields    map[string]string `json:"fields,omitempty"`    // submit
	ScrollX   float64           `json:"scrollX,omitempty"`   // scroll
	ScrollY   float64           `json:"scrollY,omitempty"`   // scroll
	Tooltip   string            `json:"tooltip,omitempty"`   // hover
	Modifiers Modifiers         `json:"modifiers"`
}

// Screenshot is the image captured once the page settled after the action
type Screenshot struct {
	Format string `json:"format"` // png, jpeg
	Data   []byte `json:"data"`
}

// Record is one entry of a recording session. It is built by the normalizer,
// stamped by the session buffer on append and never mutated afterwards.
type Record struct {
	Kind       Kind        `json:"kind"`
	Target     *Target     `json:"target,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	URL        string      `json:"url,omitempty"`
	Payload    Payload     `json:"payload"`
	Screenshot *Screenshot `json:"screenshot,omitempty"`
}

// Valid reports whether the record satisfies the target invariant
func (r Record) Valid() bool {
	if r.Kind == "" {
		return false
	}
	return r.Target != nil || r.Kind.ViewportOnly()
}
