package model

// OutcomeStatus is the judge state of a single test case.
type OutcomeStatus string

const (
	OutcomeQueued  OutcomeStatus = "queued"
	OutcomeRunning OutcomeStatus = "running"
	OutcomePassed  OutcomeStatus = "passed"
	OutcomeFailed  OutcomeStatus = "failed"
)

// OverallStatus is the reduced status of one code run.
type OverallStatus string

const (
	OverallPending OverallStatus = "pending"
	OverallRunning OverallStatus = "running"
	OverallPassed  OverallStatus = "passed"
	OverallFailed  OverallStatus = "failed"
	OverallPartial OverallStatus = "partial"
)

// ExecutionOutcome is the judged result of one test case.
type ExecutionOutcome struct {
	TestCaseID      int           `json:"test_case_id"`
	Name            string        `json:"name"`
	Status          OutcomeStatus `json:"status"`
	ActualOutput    string        `json:"actual_output"`
	ExecutionTimeMs float64       `json:"execution_time_ms"`
	MemoryMB        float64       `json:"memory_mb"`
}

// ExecutionResult is one question's run reduced to a single status. It is
// ephemeral and never persisted with the attempt.
type ExecutionResult struct {
	QuestionID           string             `json:"question_id"`
	Language             string             `json:"language,omitempty"`
	OverallStatus        OverallStatus      `json:"overall_status"`
	TotalExecutionTimeMs float64            `json:"total_execution_time_ms"`
	TotalMemoryMB        float64            `json:"total_memory_mb"`
	PassedCount          int                `json:"passed_count"`
	TotalCount           int                `json:"total_count"`
	Outcomes             []ExecutionOutcome `json:"outcomes"`
	Error                string             `json:"error,omitempty"`
}
