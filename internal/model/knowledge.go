package model

import "time"

// Knowledge is a single stored unit of agent-produced text with a lifecycle.
// Exactly one of the KnowledgeStatus values applies at any instant (I1).
type Knowledge struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"session_id"`
	Type          KnowledgeType   `json:"type"`
	Content       string          `json:"content"`
	Context       string          `json:"context,omitempty"`
	Project       string          `json:"project"`
	Tags          []string        `json:"tags,omitempty"`
	Status        KnowledgeStatus `json:"status"`
	SupersededBy  *int64          `json:"superseded_by,omitempty"`
	Confidence    float64         `json:"confidence"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"created_at"`
	LastConfirmed time.Time       `json:"last_confirmed"`
	RecallCount   int             `json:"recall_count"`
	LastRecalled  *time.Time      `json:"last_recalled,omitempty"`
	Branch        string          `json:"branch,omitempty"`
}

// Relation is a typed directed edge between two knowledge items.
// (FromID, ToID, Type) is unique and both endpoints must exist.
type Relation struct {
	ID        int64        `json:"id"`
	FromID    int64        `json:"from_id"`
	ToID      int64        `json:"to_id"`
	Type      RelationType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is an identified run of an upstream agent.
type Session struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Project   string        `json:"project"`
	Status    SessionStatus `json:"status"`
	Summary   string        `json:"summary,omitempty"`
	Branch    string        `json:"branch,omitempty"`
	LogCount  int           `json:"log_count"`
}

// TimelineEvent is an append-only audit record within a session.
type TimelineEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	Project   string    `json:"project"`
	Files     []string  `json:"files,omitempty"`
}

// Observation is a lightweight auto-capture row; it never participates in
// retrieval and is purged on a TTL (see internal/lifecycle).
type Observation struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ToolName        string    `json:"tool_name"`
	ObservationType string    `json:"observation_type"`
	Summary         string    `json:"summary"`
	FilesAffected   []string  `json:"files_affected,omitempty"`
	Project         string    `json:"project"`
	Branch          string    `json:"branch,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
