package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/session"
)

const sessionsKey = "sessions"

func sessionKey(id string) string { return "session:" + id }
func actionsKey(id string) string { return "actions:" + id }

// Summary is one line of the archive listing
type Summary struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Actions   int           `json:"actions"`
}

// SaveSession archives a finished session and adds it to the listing
func (s *Store) SaveSession(ctx context.Context, exp session.Export) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", exp.ID, err)
	}
	if err := s.Set(ctx, sessionKey(exp.ID), data); err != nil {
		return err
	}

	sum, err := json.Marshal(Summary{
		ID:        exp.ID,
		URL:       exp.URL,
		Title:     exp.Metadata.Title,
		StartTime: exp.StartTime,
		Duration:  exp.Elapsed(),
		Actions:   len(exp.Actions),
	})
	if err != nil {
		return fmt.Errorf("marshal summary %s: %w", exp.ID, err)
	}
	return s.Append(ctx, sessionsKey, sum)
}

// LoadSession reads an archived session
func (s *Store) LoadSession(ctx context.Context, id string) (session.Export, error) {
	var exp session.Export
	data, err := s.Get(ctx, sessionKey(id))
	if err != nil {
		return exp, err
	}
	if err := json.Unmarshal(data, &exp); err != nil {
		return exp, fmt.Errorf("decode session %s: %w", id, err)
	}
	return exp, nil
}

// ListSessions returns archived sessions, oldest first
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	items, err := s.List(ctx, sessionsKey)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(items))
	for _, item := range items {
		var sum Summary
		if err := json.Unmarshal(item, &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// JournalAction records one accepted action while the session is still running.
// The journal lets a crashed recording be recovered with RecoverActions.
func (s *Store) JournalAction(ctx context.Context, sessionID string, rec action.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	return s.Append(ctx, actionsKey(sessionID), data)
}

// RecoverActions returns the journal of a session
func (s *Store) RecoverActions(ctx context.Context, sessionID string) ([]action.Record, error) {
	items, err := s.List(ctx, actionsKey(sessionID))
	if err != nil {
		return nil, err
	}
	out := make([]action.Record, 0, len(items))
	for _, item := range items {
		var rec action.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// FindSession resolves a full id or unique prefix
func (s *Store) FindSession(ctx context.Context, idOrPrefix string) (session.Export, error) {
	exp, err := s.LoadSession(ctx, idOrPrefix)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return exp, err
	}

	sums, err := s.ListSessions(ctx)
	if err != nil {
		return exp, err
	}
	var match string
	for _, sum := range sums {
		if len(sum.ID) >= len(idOrPrefix) && sum.ID[:len(idOrPrefix)] == idOrPrefix {
			if match != "" && match != sum.ID {
				return exp, fmt.Errorf("session prefix %q is ambiguous", idOrPrefix)
			}
			match = sum.ID
		}
	}
	if match == "" {
		return exp, fmt.Errorf("session %s: %w", idOrPrefix, ErrNotFound)
	}
	return s.LoadSession(ctx, match)
}
