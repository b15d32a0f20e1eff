package usecase

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"tutor-dispatch/internal/domain"
)

// Session store defaults.
const (
	DefaultMaxHistory    = 5
	DefaultSessionExpiry = time.Hour
)

type tutorSession struct {
	history     []domain.Turn
	agentsUsed  []string
	lastUpdated time.Time
}

// SessionStore keeps a bounded, expiring history of turns per session id.
// It is in-memory only; a restart loses every session.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*tutorSession
	maxHistory int
	expiry     time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewSessionStore creates a store. Non-positive limits fall back to defaults.
func NewSessionStore(maxHistory int, expiry time.Duration, logger *slog.Logger) *SessionStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	return &SessionStore{
		sessions:   make(map[string]*tutorSession),
		maxHistory: maxHistory,
		expiry:     expiry,
		now:        time.Now,
		logger:     logger,
	}
}

// live returns the session for id, deleting it first if it has expired.
// Caller holds s.mu.
func (s *SessionStore) live(id string) *tutorSession {
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.lastUpdated) > s.expiry {
		delete(s.sessions, id)
		s.logger.Info("session expired", "session_id", id)
		return nil
	}
	return sess
}

// GetContext formats the session history as prompt context. It returns ""
// for an empty, unknown or expired id.
func (s *SessionStore) GetContext(id string) string {
	if id == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil || len(sess.history) == 0 {
		return ""
	}
	turns := make([]string, len(sess.history))
	for i, t := range sess.history {
		turns[i] = "User: " + t.Query + "\nAI: " + t.Response + "\n"
	}
	return strings.Join(turns, "\n")
}

// AddInteraction appends a turn, creating the session on first use.
func (s *SessionStore) AddInteraction(id, query, response, agent string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.live(id)
	if sess == nil {
		sess = &tutorSession{}
		s.sessions[id] = sess
	}
	sess.history = append(sess.history, domain.Turn{
		Query:     query,
		Response:  response,
		AgentUsed: agent,
		Timestamp: now,
	})
	if len(sess.history) > s.maxHistory {
		sess.history = slices.Clone(sess.history[len(sess.history)-s.maxHistory:])
	}
	if !slices.Contains(sess.agentsUsed, agent) {
		sess.agentsUsed = append(sess.agentsUsed, agent)
	}
	sess.lastUpdated = now
}

// Info returns a snapshot of the session, applying the same lazy expiry as
// GetContext.
func (s *SessionStore) Info(id string) domain.SessionInfo {
	if id == "" {
		return domain.SessionInfo{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.live(id)
	if sess == nil {
		return domain.SessionInfo{}
	}
	info := domain.SessionInfo{
		Exists:      true,
		TurnCount:   len(sess.history),
		AgentsUsed:  slices.Clone(sess.agentsUsed),
		LastUpdated: sess.lastUpdated,
	}
	if len(sess.history) > 0 {
		info.Duration = s.now().Sub(sess.history[0].Timestamp)
	}
	return info
}

// CleanupExpired removes every expired session and returns how many it removed.
func (s *SessionStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUpdated) > s.expiry {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed, "remaining", len(s.sessions))
	}
	return removed
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
