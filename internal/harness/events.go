package harness

import "github.com/spboyer/rmbsgrade/internal/models"

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventRunStart          EventType = "run_start"
	EventRunComplete       EventType = "run_complete"
	EventCandidateStart    EventType = "candidate_start"
	EventCandidateResolved EventType = "candidate_resolved"
	EventCandidateComplete EventType = "candidate_complete"
	EventCandidateCached   EventType = "candidate_cached"
	EventFixtureComplete   EventType = "fixture_complete"
	EventTierComplete      EventType = "tier_complete"
)

// ProgressEvent represents a progress update. Events for different
// candidates may interleave.
type ProgressEvent struct {
	EventType       EventType
	Candidate       string
	CandidateNum    int
	TotalCandidates int
	// Name is the fixture or tier name for fixture/tier events.
	Name       string
	ErrorKind  models.ErrorKind
	DurationMs int64
	Details    map[string]any
}
