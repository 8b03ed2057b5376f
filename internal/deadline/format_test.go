package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	testCases := []struct {
		in       time.Duration
		expected string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{5 * time.Minute, "5:00"},
		{59*time.Minute + 59*time.Second + 900*time.Millisecond, "59:59"},
		{time.Hour, "1:00:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{-5 * time.Second, "0:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, Format(tc.in))
		})
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, UrgencyNormal, Classify(10*time.Minute, DefaultWarnAt))
	require.Equal(t, UrgencyWarning, Classify(5*time.Minute, DefaultWarnAt))
	require.Equal(t, UrgencyWarning, Classify(61*time.Second, DefaultWarnAt))
	require.Equal(t, UrgencyCritical, Classify(time.Minute, DefaultWarnAt))
	require.Equal(t, UrgencyCritical, Classify(0, DefaultWarnAt))
}
