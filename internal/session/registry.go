package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
)

// Attacher wires event sources to a freshly started session and returns the
// handles to release on stop. It runs before the session becomes visible to
// other callers of the registry.
type Attacher func(s *Session) ([]Subscription, error)

// Option configures a Registry
type Option func(*Registry)

func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithIDGenerator overrides the uuid session ids
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// WithAttacher sets the attacher used by start signals
func WithAttacher(a Attacher) Option {
	return func(r *Registry) { r.attach = a }
}

// WithJournal installs a hook called after every accepted append
func WithJournal(fn func(sessionID string, rec action.Record)) Option {
	return func(r *Registry) { r.journal = fn }
}

// Registry holds the active session of each tab
type Registry struct {
	clock   clockwork.Clock
	logger  *zap.Logger
	newID   func() string
	attach  Attacher
	journal func(sessionID string, rec action.Record)

	mu       sync.Mutex
	sessions map[string]*Session
	starting map[string]bool
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock:    clockwork.NewRealClock(),
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
		starting: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Start creates a recording session for tabID. attach may be nil, in which
// case the registry's default attacher (if any) is used.
func (r *Registry) Start(tabID, url string, meta Metadata, attach Attacher) (*Session, error) {
	r.mu.Lock()
	if _, ok := r.sessions[tabID]; ok || r.starting[tabID] {
		r.mu.Unlock()
		return nil, fmt.Errorf("start %s: %w", tabID, ErrSessionActive)
	}
	r.starting[tabID] = true
	r.mu.Unlock()

	s := &Session{
		id:        r.newID(),
		tabID:     tabID,
		url:       url,
		startTime: r.clock.Now(),
		clock:     r.clock,
		logger:    r.logger,
		journal:   r.journal,
		state:     StateRecording,
		metadata:  meta,
	}

	if attach == nil {
		attach = r.attach
	}
	if attach != nil {
		subs, err := attach(s)
		if err != nil {
			releaseAll(subs, r.logger)
			r.mu.Lock()
			delete(r.starting, tabID)
			r.mu.Unlock()
			return nil, fmt.Errorf("attach %s: %w", tabID, err)
		}
		s.subs = subs
	}

	r.mu.Lock()
	delete(r.starting, tabID)
	r.sessions[tabID] = s
	r.mu.Unlock()

	r.logger.Info("session started", zap.String("tab", tabID), zap.String("session", s.id), zap.String("url", url))
	return s, nil
}

// Get returns the active session of tabID
func (r *Registry) Get(tabID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tabID]
	return s, ok
}

// Active lists the tabs with an active session
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tabs := make([]string, 0, len(r.sessions))
	for tab := range r.sessions {
		tabs = append(tabs, tab)
	}
	sort.Strings(tabs)
	return tabs
}

// Append adds rec to the tab's session. It reports false when there is no
// session or it is not recording.
func (r *Registry) Append(tabID string, rec action.Record) bool {
	s, ok := r.Get(tabID)
	if !ok {
		return false
	}
	return s.Append(rec)
}

func (r *Registry) Pause(tabID string) error {
	s, ok := r.Get(tabID)
	if !ok {
		return fmt.Errorf("pause %s: %w", tabID, ErrNoSession)
	}
	if err := s.pause(); err != nil {
		return fmt.Errorf("pause %s: %w", tabID, err)
	}
	r.logger.Info("session paused", zap.String("session", s.id))
	return nil
}

func (r *Registry) Resume(tabID string) error {
	s, ok := r.Get(tabID)
	if !ok {
		return fmt.Errorf("resume %s: %w", tabID, ErrNoSession)
	}
	if err := s.resume(); err != nil {
		return fmt.Errorf("resume %s: %w", tabID, err)
	}
	r.logger.Info("session resumed", zap.String("session", s.id))
	return nil
}

// Stop removes the tab's session, releases its subscriptions and returns the export
func (r *Registry) Stop(tabID string) (Export, error) {
	r.mu.Lock()
	s, ok := r.sessions[tabID]
	delete(r.sessions, tabID)
	r.mu.Unlock()
	if !ok {
		return Export{}, fmt.Errorf("stop %s: %w", tabID, ErrNoSession)
	}

	exp := s.stop()
	r.logger.Info("session stopped",
		zap.String("session", exp.ID),
		zap.Int("actions", len(exp.Actions)),
		zap.Int64("duration_ms", exp.Duration))
	return exp, nil
}

// StopAll stops every active session
func (r *Registry) StopAll() []Export {
	var out []Export
	for _, tab := range r.Active() {
		if exp, err := r.Stop(tab); err == nil {
			out = append(out, exp)
		}
	}
	return out
}
