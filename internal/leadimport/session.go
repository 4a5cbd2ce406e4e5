package leadimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound means no import session exists under the given ID,
// or it has expired.
var ErrSessionNotFound = errors.New("import session not found")

// SessionTTL bounds how long an import session stays pollable.
const SessionTTL = 24 * time.Hour

// ImportSession mirrors one import's state-machine position to Redis so
// the browser can poll progress while the authoritative server pass runs.
type ImportSession struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Filename       string    `json:"filename"`
	State          State     `json:"state"`
	TotalRows      int       `json:"total_rows"`
	AcceptedCount  int       `json:"accepted_count"`
	RejectedCount  int       `json:"rejected_count"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionTracker stores import sessions in Redis. It implements
// ProgressReporter; all write paths are best-effort because progress
// visibility must never fail an import.
type SessionTracker struct {
	rdb *redis.Client
}

// NewSessionTracker creates a Redis-backed session tracker.
func NewSessionTracker(rdb *redis.Client) *SessionTracker {
	return &SessionTracker{rdb: rdb}
}

// Create registers a new session before the pipeline starts.
func (t *SessionTracker) Create(ctx context.Context, id, orgID, filename string) error {
	now := time.Now().UTC()
	s := &ImportSession{
		ID:             id,
		OrganizationID: orgID,
		Filename:       filename,
		State:          StateUploaded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return t.put(ctx, s)
}

// Get retrieves a session by ID.
func (t *SessionTracker) Get(ctx context.Context, id string) (*ImportSession, error) {
	data, err := t.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s ImportSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReportState records a state-machine transition.
func (t *SessionTracker) ReportState(ctx context.Context, id string, state State) {
	t.update(ctx, id, func(s *ImportSession) { s.State = state })
}

// ReportCounts records row counts once filtering has run.
func (t *SessionTracker) ReportCounts(ctx context.Context, id string, total, accepted, rejected int) {
	t.update(ctx, id, func(s *ImportSession) {
		s.TotalRows = total
		s.AcceptedCount = accepted
		s.RejectedCount = rejected
	})
}

// ReportError records a user-facing failure message.
func (t *SessionTracker) ReportError(ctx context.Context, id string, msg string) {
	t.update(ctx, id, func(s *ImportSession) { s.Error = msg })
}

func (t *SessionTracker) update(ctx context.Context, id string, fn func(*ImportSession)) {
	if id == "" {
		return
	}
	s, err := t.Get(ctx, id)
	if err != nil {
		return
	}
	fn(s)
	s.UpdatedAt = time.Now().UTC()
	// Best effort: a lost progress update is invisible staleness, not an
	// import failure.
	_ = t.put(ctx, s)
}

func (t *SessionTracker) put(ctx context.Context, s *ImportSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return t.rdb.Set(ctx, sessionKey(s.ID), data, SessionTTL).Err()
}

func sessionKey(id string) string {
	return fmt.Sprintf("import:session:%s", id)
}
