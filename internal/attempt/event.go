package attempt

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// EventType names a machine notification.
type EventType string

const (
	EventStarted   EventType = "started"
	EventTick      EventType = "tick"
	EventWarning   EventType = "warning"
	EventSubmitted EventType = "submitted"
	EventAbandoned EventType = "abandoned"
	EventViolation EventType = "violation"
)

// Event is published for every notable change of the current attempt. Notify
// hooks are called from timer and request goroutines and must not block or
// call back into the Machine.
type Event struct {
	Type      EventType
	AttemptID string
	ExamID    string
	Remaining time.Duration
	Attempt   *model.Attempt
	Violation *model.Violation
}
