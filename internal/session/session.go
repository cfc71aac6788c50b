// Package session buffers normalized actions per tab between start and stop.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
)

var (
	ErrSessionActive = errors.New("session already active for tab")
	ErrNoSession     = errors.New("no active session for tab")
	ErrNotRecording  = errors.New("session is not recording")
	ErrNotPaused     = errors.New("session is not paused")
)

// State of a session. Stopped sessions are gone from the registry and
// cannot be restarted.
type State int

const (
	StateRecording State = iota
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Subscription is a resource the session owns while it records, such as an
// event binding on the page. Subscriptions are released once, on stop.
type Subscription interface {
	Release() error
}

// ReleaseFunc adapts a function to Subscription
type ReleaseFunc func() error

func (f ReleaseFunc) Release() error { return f() }

// Viewport is the page's layout viewport size in CSS pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metadata describes the recorded page
type Metadata struct {
	Title     string   `json:"title"`
	Viewport  Viewport `json:"viewport"`
	UserAgent string   `json:"userAgent"`
	Tags      []string `json:"tags,omitempty"`
}

// Export is the frozen result of a stopped session
type Export struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Duration  int64           `json:"duration"` // milliseconds
	Actions   []action.Record `json:"actions"`
	Metadata  Metadata        `json:"metadata"`
}

// Elapsed returns the session duration
func (e Export) Elapsed() time.Duration {
	return time.Duration(e.Duration) * time.Millisecond
}

// Session is the ordered action log of one recording on one tab
type Session struct {
	id        string
	tabID     string
	url       string
	startTime time.Time
	clock     clockwork.Clock
	logger    *zap.Logger
	journal   func(sessionID string, rec action.Record)

	mu       sync.Mutex
	state    State
	metadata Metadata
	actions  []action.Record
	subs     []Subscription
}

func (s *Session) ID() string           { return s.id }
func (s *Session) TabID() string        { return s.tabID }
func (s *Session) URL() string          { return s.url }
func (s *Session) StartTime() time.Time { return s.startTime }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether new actions are accepted. Event sources use it
// as their gate so nothing is built while paused.
func (s *Session) Recording() bool {
	return s.State() == StateRecording
}

// Len returns the number of recorded actions
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Actions returns a copy of the recorded actions
func (s *Session) Actions() []action.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]action.Record(nil), s.actions...)
}

// SetMetadata replaces the page metadata reported in the export
func (s *Session) SetMetadata(m Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = m
}

// Append stamps rec and adds it to the log. It reports false, leaving the log
// unchanged, when the session is not recording or rec has no target.
func (s *Session) Append(rec action.Record) bool {
	if !rec.Valid() {
		s.logger.Debug("rejected record without target", zap.String("kind", string(rec.Kind)))
		return false
	}

	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("append rejected", zap.String("session", s.id), zap.Stringer("state", state))
		return false
	}
	rec.Timestamp = s.clock.Now()
	s.actions = append(s.actions, rec)
	s.mu.Unlock()

	if s.journal != nil {
		s.journal(s.id, rec)
	}
	return true
}

// Publish implements the normalizer's publisher on top of Append
func (s *Session) Publish(_ context.Context, rec action.Record) bool {
	return s.Append(rec)
}

func (s *Session) pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return ErrNotRecording
	}
	s.state = StatePaused
	return nil
}

func (s *Session) resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return ErrNotPaused
	}
	s.state = StateRecording
	return nil
}

// stop freezes the log, releases subscriptions newest first and builds the export
func (s *Session) stop() Export {
	s.mu.Lock()
	s.state = StateStopped
	end := s.clock.Now()
	subs := s.subs
	s.subs = nil
	exp := Export{
		ID:        s.id,
		URL:       s.url,
		StartTime: s.startTime,
		EndTime:   end,
		Duration:  end.Sub(s.startTime).Milliseconds(),
		Actions:   append([]action.Record(nil), s.actions...),
		Metadata:  s.metadata,
	}
	s.mu.Unlock()

	releaseAll(subs, s.logger)
	return exp
}

func releaseAll(subs []Subscription, logger *zap.Logger) {
	for i := len(subs) - 1; i >= 0; i-- {
		if err := subs[i].Release(); err != nil {
			logger.Warn("release subscription", zap.Error(err))
		}
	}
}
