package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-engine/internal/model"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrQuestionNotFound ErrCode = "QUESTION_NOT_FOUND"
	ErrNoResults        ErrCode = "NO_RESULTS"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptLimitExceeded ErrCode = "ATTEMPT_LIMIT_EXCEEDED"
	ErrAttemptInProgress    ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrNoActiveAttempt      ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrRunInProgress        ErrCode = "RUN_ALREADY_IN_PROGRESS"
	ErrStaleResult          ErrCode = "STALE_RESULT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrStorage  ErrCode = "STORAGE_UNAVAILABLE"
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer does not fit this question."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrQuestionNotFound:
		return "Question not found in the current exam."
	case ErrNoResults:
		return "No finished attempts yet."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptLimitExceeded:
		return "You have used every attempt allowed for this exam."
	case ErrAttemptInProgress:
		return "Another attempt is already in progress."
	case ErrNoActiveAttempt:
		return "There is no attempt in progress."
	case ErrRunInProgress:
		return "Code for this question is already running."
	case ErrStaleResult:
		return "The attempt ended before the run finished."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrStorage:
		return "Attempt history storage is unavailable."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// errorMapping pairs a domain sentinel with its HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   ErrCode
}

var domainErrors = []errorMapping{
	{model.ErrExamNotFound, http.StatusNotFound, ErrExamNotFound},
	{model.ErrQuestionNotFound, http.StatusNotFound, ErrQuestionNotFound},
	{model.ErrAttemptLimitExceeded, http.StatusConflict, ErrAttemptLimitExceeded},
	{model.ErrAttemptInProgress, http.StatusConflict, ErrAttemptInProgress},
	{model.ErrNoActiveAttempt, http.StatusConflict, ErrNoActiveAttempt},
	{model.ErrRunAlreadyInProgress, http.StatusConflict, ErrRunInProgress},
	{model.ErrStaleResult, http.StatusConflict, ErrStaleResult},
	{model.ErrInvalidAnswer, http.StatusBadRequest, ErrInvalidAnswer},
	{model.ErrUnsupportedSchema, http.StatusInternalServerError, ErrStorage},
}

// FromError maps a domain error onto an HTTP status and error code. Unknown
// errors map to 500 INTERNAL_ERROR.
func FromError(err error) (int, ErrCode) {
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrInternal
}
