package model

import "time"

// ViolationKind enumerates proctoring events worth reviewing.
type ViolationKind string

const (
	ViolationTabHidden        ViolationKind = "tab_hidden"
	ViolationExitedFullscreen ViolationKind = "exited_fullscreen"
)

// Violation is one entry of the append-only proctoring log.
type Violation struct {
	AttemptID string        `json:"attempt_id"`
	ExamID    string        `json:"exam_id"`
	Kind      ViolationKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
}
