package model

import "errors"

// Domain errors shared by the engine packages. Callers match with errors.Is.
var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrAttemptInProgress    = errors.New("an attempt is already in progress")
	ErrNoActiveAttempt      = errors.New("no active attempt")
	ErrQuestionNotFound     = errors.New("question not found in current exam")
	ErrInvalidAnswer        = errors.New("invalid answer")
	ErrRunAlreadyInProgress = errors.New("a run is already in progress for this question")
	ErrJudgeUnavailable     = errors.New("judge unavailable")
	ErrStaleResult          = errors.New("run result no longer matches the current attempt")
	ErrBlobNotFound         = errors.New("blob not found")
	ErrUnsupportedSchema    = errors.New("unsupported schema version")
)
