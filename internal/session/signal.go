package session

import (
	"fmt"
	"strings"
)

// SignalKind is an external lifecycle event
type SignalKind string

const (
	SignalStart  SignalKind = "start"
	SignalStop   SignalKind = "stop"
	SignalPause  SignalKind = "pause"
	SignalResume SignalKind = "resume"
)

// ParseSignalKind accepts the full names and their first letters
func ParseSignalKind(s string) (SignalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return SignalStart, nil
	case "s", "stop":
		return SignalStop, nil
	case "p", "pause":
		return SignalPause, nil
	case "r", "resume":
		return SignalResume, nil
	default:
		return "", fmt.Errorf("unknown signal %q", s)
	}
}

// Signal drives a tab's session state machine
type Signal struct {
	Kind     SignalKind
	TabID    string
	URL      string   // start only
	Metadata Metadata // start only
}

// HandleSignal applies sig. Stop signals return the finished export.
func (r *Registry) HandleSignal(sig Signal) (*Export, error) {
	switch sig.Kind {
	case SignalStart:
		_, err := r.Start(sig.TabID, sig.URL, sig.Metadata, nil)
		return nil, err
	case SignalPause:
		return nil, r.Pause(sig.TabID)
	case SignalResume:
		return nil, r.Resume(sig.TabID)
	case SignalStop:
		exp, err := r.Stop(sig.TabID)
		if err != nil {
			return nil, err
		}
		return &exp, nil
	default:
		return nil, fmt.Errorf("unknown signal %q", sig.Kind)
	}
}
