package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-engine/internal/model"
)

func outcomes(statuses ...model.OutcomeStatus) []model.ExecutionOutcome {
	out := make([]model.ExecutionOutcome, len(statuses))
	for i, s := range statuses {
		out[i] = model.ExecutionOutcome{TestCaseID: i + 1, Status: s, ExecutionTimeMs: 10, MemoryMB: 1.5}
	}
	return out
}

func TestAggregateOverallStatusPrecedence(t *testing.T) {
	testCases := []struct {
		name     string
		in       []model.ExecutionOutcome
		expected model.OverallStatus
	}{
		{"passed and failed is partial", outcomes(model.OutcomePassed, model.OutcomeFailed), model.OverallPartial},
		{"all passed", outcomes(model.OutcomePassed, model.OutcomePassed), model.OverallPassed},
		{"all failed", outcomes(model.OutcomeFailed, model.OutcomeFailed), model.OverallFailed},
		{"running wins over passed", outcomes(model.OutcomeRunning, model.OutcomePassed), model.OverallRunning},
		{"queued wins over failed", outcomes(model.OutcomeFailed, model.OutcomeQueued), model.OverallRunning},
		{"empty is failed", nil, model.OverallFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Aggregate(tc.in).OverallStatus)
		})
	}
}

func TestAggregateSumsResources(t *testing.T) {
	res := Aggregate(outcomes(model.OutcomePassed, model.OutcomeFailed, model.OutcomePassed))

	require.InDelta(t, 30.0, res.TotalExecutionTimeMs, 1e-9)
	require.InDelta(t, 4.5, res.TotalMemoryMB, 1e-9)
	require.Equal(t, 2, res.PassedCount)
	require.Equal(t, 3, res.TotalCount)
	require.Len(t, res.Outcomes, 3)
}

func TestRedactHidesHiddenOutput(t *testing.T) {
	q := &model.Question{
		ID: "code-1", Kind: model.QuestionKindCoding, Points: 10,
		TestCases: []model.TestCase{{ID: 1, Name: "visible"}, {ID: 2, Name: "hidden", Hidden: true}},
	}
	res := Aggregate([]model.ExecutionOutcome{
		{TestCaseID: 1, Status: model.OutcomePassed, ActualOutput: "3"},
		{TestCaseID: 2, Status: model.OutcomeFailed, ActualOutput: "secret"},
	})

	redacted := Redact(q, res)
	require.Equal(t, "3", redacted.Outcomes[0].ActualOutput)
	require.Empty(t, redacted.Outcomes[1].ActualOutput)
	require.Equal(t, "secret", res.Outcomes[1].ActualOutput, "original result is untouched")
}
