package service

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-engine/internal/attempt"
)

func TestEventHubFansOut(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	a, unsubA := hub.Subscribe(4)
	b, unsubB := hub.Subscribe(4)
	defer unsubB()

	hub.Publish(attempt.Event{Type: attempt.EventStarted, AttemptID: "a-1"})
	require.Equal(t, attempt.EventStarted, (<-a).Type)
	require.Equal(t, attempt.EventStarted, (<-b).Type)

	unsubA()
	unsubA()
	_, open := <-a
	require.False(t, open)

	hub.Publish(attempt.Event{Type: attempt.EventTick})
	require.Equal(t, attempt.EventTick, (<-b).Type)
}

func TestEventHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewEventHub(zerolog.Nop())
	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	hub.Publish(attempt.Event{Type: attempt.EventTick})
	hub.Publish(attempt.Event{Type: attempt.EventWarning})

	require.Len(t, ch, 1)
	require.Equal(t, attempt.EventTick, (<-ch).Type)
}
