package chunkstore

import (
	"strings"
	"time"
)

// State represents the delivery lifecycle of a chunk.
type State string

const (
	StatePending   State = "pending"
	StateUploading State = "uploading"
	StateUploaded  State = "uploaded"
	StateFailed    State = "failed"
)

var allStates = []State{
	StatePending,
	StateUploading,
	StateUploaded,
	StateFailed,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known delivery states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// SessionState represents the recording lifecycle of a session.
type SessionState string

const (
	SessionRecording SessionState = "recording"
	SessionStopped   SessionState = "stopped"
	SessionCompleted SessionState = "completed"
)

// Session represents one continuous recording.
type Session struct {
	ID             string
	OwnerID        string
	State          SessionState
	ChunksTotal    int
	ChunksUploaded int
	ChunksFailed   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is the unit of durable storage and upload. The payload is immutable
// once stored; only delivery-state fields mutate afterwards.
//
// List queries return chunks without payload bytes; Get loads them.
type Chunk struct {
	SessionID     string
	Seq           int64
	Payload       []byte
	SizeBytes     int64
	ContentType   string
	DurationMs    int64
	CapturedAt    time.Time
	State         State
	AttemptCount  int
	Terminal      bool
	LastError     string
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time
	RemoteKey     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Stats aggregates chunk counts and payload volume.
type Stats struct {
	TotalChunks int
	TotalBytes  int64
	ByState     map[State]int
}

// DatabaseHealth captures diagnostic information about the chunk database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalChunks      int
	Error            string
}
