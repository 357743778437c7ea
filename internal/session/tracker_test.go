package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemosyne/brain/internal/model"
)

func ev(process, title string, unixTime int64, intensity int) model.Event {
	return model.Event{ProcessName: process, WindowTitle: title, UnixTime: unixTime, InputIntensity: intensity}
}

func TestTracker_FirstEventStartsSessionNoClose(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	closed := tr.Ingest(ev("code", "main.go", 100, 50))
	assert.Nil(t, closed)
	require.NotNil(t, tr.Active())
	assert.Equal(t, "code", tr.Active().PrimaryProcess)
}

func TestTracker_WindowChangeClosesAndStartsNew(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 50))

	closed := tr.Ingest(ev("chrome", "docs", 110, 20))
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseWindowChange, closed.CloseReason)
	assert.Equal(t, int64(110), closed.EndTime)
	assert.Equal(t, "chrome", tr.Active().PrimaryProcess)
}

func TestTracker_IdleTimeoutCloses(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 50))

	closed := tr.Ingest(ev("code", "main.go", 500, 50))
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseIdleTimeout, closed.CloseReason)
	assert.Equal(t, int64(100), closed.EndTime)
	assert.Equal(t, int64(0), closed.DurationSeconds())
}

func TestTracker_MaxDurationCloses(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 50))

	// Events every 60 s stay under the idle threshold; the first one more
	// than 1800 s after the start (t=1960) closes the session.
	var closed *model.Session
	for ts := int64(160); ts <= 2100 && closed == nil; ts += 60 {
		closed = tr.Ingest(ev("code", "main.go", ts, 50))
	}
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseMaxDuration, closed.CloseReason)
}

func TestTracker_AppendsEventsAndTracksTransitions(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 10))
	tr.Ingest(ev("code", "main.go", 110, 30))

	active := tr.Active()
	assert.Equal(t, 2, active.EventCount())
	assert.Equal(t, []string{"code:main.go"}, active.WindowTransitions)
}

func TestTracker_AvgInputIntensityComputedOnClose(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 10))
	tr.Ingest(ev("code", "main.go", 110, 30))

	closed := tr.Ingest(ev("chrome", "docs", 120, 0))
	require.NotNil(t, closed)
	assert.InDelta(t, 20.0, closed.AvgInputIntensity, 0.001)
}

func TestTracker_ForceCloseDoesNotStartNewSession(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	tr.Ingest(ev("code", "main.go", 100, 10))

	closed := tr.ForceClose(150)
	require.NotNil(t, closed)
	assert.Equal(t, model.CloseForced, closed.CloseReason)
	assert.Equal(t, int64(150), closed.EndTime)
	assert.Nil(t, tr.Active())
}

func TestTracker_ForceCloseWithNoActiveSessionIsNil(t *testing.T) {
	tr := NewTracker(300*time.Second, 1800*time.Second)
	assert.Nil(t, tr.ForceClose(100))
}

func TestTracker_DurationNeverNegative(t *testing.T) {
	s := &model.Session{StartTime: 100, EndTime: 50}
	assert.Equal(t, int64(0), s.DurationSeconds())
}
