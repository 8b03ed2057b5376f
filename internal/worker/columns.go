package worker

import "time"

// resultColumns is a batch of ResultRecords split into UNNEST arrays.
type resultColumns struct {
	attemptIDs  []string
	examIDs     []string
	userIDs     []string
	scores      []float64
	maxScores   []float64
	answered    []int
	totals      []int
	reasons     []string
	startedAts  []time.Time
	finishedAts []time.Time
}

// resultColumnsOf keeps the last record per attempt so one statement never
// upserts the same row twice.
func resultColumnsOf(batch []*ResultRecord) resultColumns {
	last := make(map[string]int, len(batch))
	for i, r := range batch {
		last[r.AttemptID] = i
	}

	var c resultColumns
	for i, r := range batch {
		if last[r.AttemptID] != i {
			continue
		}
		c.attemptIDs = append(c.attemptIDs, r.AttemptID)
		c.examIDs = append(c.examIDs, r.ExamID)
		c.userIDs = append(c.userIDs, r.UserID)
		c.scores = append(c.scores, r.Score)
		c.maxScores = append(c.maxScores, r.MaxScore)
		c.answered = append(c.answered, r.Answered)
		c.totals = append(c.totals, r.TotalQuestions)
		c.reasons = append(c.reasons, r.SubmitReason)
		c.startedAts = append(c.startedAts, r.StartedAt)
		c.finishedAts = append(c.finishedAts, r.FinishedAt)
	}
	return c
}
