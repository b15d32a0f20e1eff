package domain

import "time"

// Turn is one stored question/answer exchange.
type Turn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	AgentUsed string    `json:"agent_used"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	Exists      bool          `json:"exists"`
	TurnCount   int           `json:"turn_count"`
	AgentsUsed  []string      `json:"agents_used"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}
