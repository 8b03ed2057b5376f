package deadline

import (
	"fmt"
	"time"
)

// CriticalAt is the remaining time below which the timer is shown as critical.
const CriticalAt = time.Minute

// Urgency is a presentation hint for the countdown.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Classify maps the remaining time onto an Urgency given the warning threshold.
func Classify(remaining, warnAt time.Duration) Urgency {
	switch {
	case remaining <= CriticalAt:
		return UrgencyCritical
	case remaining <= warnAt:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Format renders d as H:MM:SS from one hour up, M:SS below. Fractions of a
// second are dropped and negative values print as zero.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
