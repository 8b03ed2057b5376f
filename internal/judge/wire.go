// Package judge talks to the remote code execution service over HTTP or NATS.
package judge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/model"
)

type runRequest struct {
	ExamID    string `json:"examId"`
	ProblemID string `json:"problemId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

func newRunRequest(req execution.RunRequest) runRequest {
	return runRequest{
		ExamID:    req.ExamID,
		ProblemID: req.QuestionID,
		Code:      req.Code,
		Language:  req.Language,
	}
}

type testCaseResult struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	ActualOutput  string  `json:"actualOutput"`
	ExecutionTime float64 `json:"executionTime"`
	MemoryUsed    float64 `json:"memoryUsed"`
	Status        string  `json:"status"`
}

type runResponse struct {
	TestCases          []testCaseResult `json:"testCases"`
	OverallStatus      string           `json:"overallStatus"`
	TotalExecutionTime float64          `json:"totalExecutionTime"`
	TotalMemoryUsed    float64          `json:"totalMemoryUsed"`
}

func outcomeStatus(wire string) model.OutcomeStatus {
	switch wire {
	case "passed":
		return model.OutcomePassed
	case "running":
		return model.OutcomeRunning
	case "queued", "pending":
		return model.OutcomeQueued
	default:
		return model.OutcomeFailed
	}
}

// decodeResponse accepts the bare result or a {"data": {...}} envelope.
func decodeResponse(raw []byte) ([]model.ExecutionOutcome, error) {
	raw = bytes.TrimSpace(raw)

	var env struct {
		Data *runResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", model.ErrJudgeUnavailable, err)
	}
	resp := env.Data
	if resp == nil {
		resp = &runResponse{}
		if err := json.Unmarshal(raw, resp); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", model.ErrJudgeUnavailable, err)
		}
	}

	out := make([]model.ExecutionOutcome, 0, len(resp.TestCases))
	for _, tc := range resp.TestCases {
		out = append(out, model.ExecutionOutcome{
			TestCaseID:      tc.ID,
			Name:            tc.Name,
			Status:          outcomeStatus(tc.Status),
			ActualOutput:    tc.ActualOutput,
			ExecutionTimeMs: tc.ExecutionTime,
			MemoryMB:        tc.MemoryUsed,
		})
	}
	return out, nil
}
