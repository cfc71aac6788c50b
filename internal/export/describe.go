// Package export renders archived sessions as JSON, Markdown, annotated HTML
// and annotated GIF replays.
package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/session"
)

// Options configures the renderers
type Options struct {
	Title          string        // defaults to the page title
	Summary        string        // optional prose shown above the steps
	ThumbnailWidth uint          // HTML screenshot width, 0 keeps the original
	FrameDelay     time.Duration // GIF time per step
	MaxColors      int           // GIF palette size
	MaxWidth       uint          // GIF width
}

func (o Options) title(exp session.Export) string {
	switch {
	case o.Title != "":
		return o.Title
	case exp.Metadata.Title != "":
		return exp.Metadata.Title
	default:
		return exp.URL
	}
}

// Describe returns a one-line, human readable account of rec
func Describe(rec action.Record) string {
	p := rec.Payload
	switch rec.Kind {
	case action.KindClick:
		return "Click " + subject(rec.Target)
	case action.KindDoubleClick:
		return "Double-click " + subject(rec.Target)
	case action.KindInput:
		if p.Checked != nil {
			return toggle(rec)
		}
		return fmt.Sprintf("Type %q into %s", p.Value, subject(rec.Target))
	case action.KindChange:
		if p.Checked != nil {
			return toggle(rec)
		}
		return fmt.Sprintf("Set %s to %q", subject(rec.Target), p.Value)
	case action.KindSubmit:
		s := "Submit " + subject(rec.Target)
		if len(p.Fields) > 0 {
			s += " with " + fields(p.Fields)
		}
		return s
	case action.KindKeyPress:
		return "Press " + p.Key
	case action.KindScroll:
		return fmt.Sprintf("Scroll to %.0f, %.0f", p.ScrollX, p.ScrollY)
	case action.KindHover:
		s := "Hover over " + subject(rec.Target)
		if p.Tooltip != "" {
			s += fmt.Sprintf(" (tooltip %q)", p.Tooltip)
		}
		return s
	case action.KindFocus:
		return "Focus " + subject(rec.Target)
	case action.KindBlur:
		return "Leave " + subject(rec.Target)
	}
	return string(rec.Kind)
}

func toggle(rec action.Record) string {
	if *rec.Payload.Checked {
		return "Check " + subject(rec.Target)
	}
	return "Uncheck " + subject(rec.Target)
}

// subject names a target by its text when it has one, its locator otherwise
func subject(t *action.Target) string {
	if t == nil {
		return "the page"
	}
	loc := t.Selector
	if loc == "" {
		loc = t.FallbackLocator
	}
	if t.Text != "" {
		return fmt.Sprintf("%q (%s)", t.Text, loc)
	}
	if loc == "" {
		return t.Tag
	}
	return loc
}

func fields(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// offset formats the time from session start to rec as m:ss.t
func offset(exp session.Export, rec action.Record) string {
	d := rec.Timestamp.Sub(exp.StartTime)
	if d < 0 {
		d = 0
	}
	d = d.Round(100 * time.Millisecond)
	m := int(d / time.Minute)
	s := d - time.Duration(m)*time.Minute
	return fmt.Sprintf("%d:%04.1f", m, s.Seconds())
}
