package serve

import "time"

// --- API Request Types ---

// SourceRequest carries convo source text.
type SourceRequest struct {
	Source string `json:"source"`
}

// --- API Response Types ---

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`

	// Parse holds location details when the source failed to parse.
	Parse *ParseErrorResponse `json:"parse,omitempty"`
}

// ParseErrorResponse locates a parse failure.
type ParseErrorResponse struct {
	Message    string `json:"message"`
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
	Near       string `json:"near"`
}

// SnapshotResponse is the API representation of a saved snapshot.
type SnapshotResponse struct {
	ID        int64          `json:"id"`
	Vars      map[string]any `json:"vars"`
	Setters   []string       `json:"setters"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// StatsResponse reports server activity.
type StatsResponse struct {
	Runs        int64  `json:"runs"`
	Failures    int64  `json:"failures"`
	Subscribers int    `json:"subscribers"`
	Uptime      string `json:"uptime"`
}

// --- Broker Event Types ---

// BrokerEvent is published to SSE subscribers after each run.
type BrokerEvent struct {
	Type         string    `json:"type"`
	Conversation string    `json:"conversation,omitempty"`
	SnapshotID   int64     `json:"snapshot_id,omitempty"`
	Setters      []string  `json:"setters,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
