package storage

import (
	"errors"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	// ErrMalformedRow marks a single record that cannot be interpreted.
	// Fetches skip such rows; they never fail the whole batch.
	ErrMalformedRow = errors.New("malformed violation row")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (Path required)
//   - "memory": process-local store, used for dry runs and tests
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Timezone stamps synthetic records. Empty means UTC.
	Timezone string
}

// Violation is one detected violation event.
//
// SequenceIndex is the 1-based position inside a single fetch result and is
// recomputed on every fetch. Durable references must use ID.
type Violation struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	CreationTimezone  string `json:"creation_timezone"`
	FactoryArea       string `json:"factory_area"`
	InspectionSection string `json:"inspection_section"`
	ViolationType     string `json:"violation_type"`
	ImageURL          string `json:"image_url,omitempty"`
	Resolved          bool   `json:"resolved"`
	SequenceIndex     int    `json:"sequence_index"`
}

// Subscriber is a chat endpoint registered to receive alerts.
type Subscriber struct {
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records an operator or monitor action.
type AuditEntry struct {
	At     time.Time
	Actor  string
	Action string
	Target string
	OK     bool
	Detail string
}
