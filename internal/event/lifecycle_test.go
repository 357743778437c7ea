package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublish_AppendsToTail(t *testing.T) {
	Reset()
	defer Reset()

	Publish(Event{Type: CycleStarted})
	Publish(Event{Type: CycleCompleted, Data: map[string]int{"groups": 2}})

	recent := Recent()
	if assert.Len(t, recent, 2) {
		assert.Equal(t, CycleStarted, recent[0].Type)
		assert.Equal(t, CycleCompleted, recent[1].Type)
	}
}

func TestPublish_TailIsBoundedToMostRecent(t *testing.T) {
	Reset()
	defer Reset()

	for i := 0; i < tailSize+5; i++ {
		Publish(Event{Type: GroupEnriched})
	}

	assert.Len(t, Recent(), tailSize)
}

func TestConsecutiveFailures_TracksStreakAndResetsOnSuccess(t *testing.T) {
	Reset()
	defer Reset()

	Publish(Event{Type: CycleFailed})
	Publish(Event{Type: CycleFailed})
	assert.Equal(t, 2, ConsecutiveFailures())

	Publish(Event{Type: CycleCompleted})
	assert.Equal(t, 0, ConsecutiveFailures())
}

func TestConsecutiveFailures_UnrelatedEventsDoNotResetStreak(t *testing.T) {
	Reset()
	defer Reset()

	Publish(Event{Type: CycleFailed})
	Publish(Event{Type: GuardDenied})
	Publish(Event{Type: GroupEnriched})
	assert.Equal(t, 1, ConsecutiveFailures())
}

func TestReset_ClearsTailAndStreak(t *testing.T) {
	Publish(Event{Type: CycleFailed})
	Publish(Event{Type: GroupEnriched})

	Reset()

	assert.Empty(t, Recent())
	assert.Equal(t, 0, ConsecutiveFailures())
}
