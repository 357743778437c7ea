// Package session implements the single Session state machine (spec
// section 4.7) and the session archival pipeline (spec section 4.8).
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/mnemosyne/brain/internal/model"
)

// Tracker is the single-threaded finite state machine with exactly one
// active Session at a time (spec section 4.7). It holds NoSession implicit
// in a nil active session.
type Tracker struct {
	idleThreshold time.Duration
	maxDuration   time.Duration

	active        *model.Session
	lastEventTime int64
}

// NewTracker builds a Tracker with the given idle-timeout and
// max-duration thresholds.
func NewTracker(idleThreshold, maxDuration time.Duration) *Tracker {
	return &Tracker{idleThreshold: idleThreshold, maxDuration: maxDuration}
}

// Ingest feeds one event into the tracker. It returns the session that was
// closed as a side effect of this event (window change, idle timeout, or
// max duration), or nil if the event was simply appended to the active
// session (or started a new one from NoSession).
func (t *Tracker) Ingest(e model.Event) *model.Session {
	if t.active == nil {
		t.startSession(e)
		return nil
	}

	s := t.active

	switch {
	case e.ProcessName != s.PrimaryProcess || e.WindowTitle != s.PrimaryWindow:
		closed := t.closeActive(e.UnixTime, model.CloseWindowChange)
		t.startSession(e)
		return closed

	case e.UnixTime-t.lastEventTime > int64(t.idleThreshold.Seconds()):
		closed := t.closeActive(t.lastEventTime, model.CloseIdleTimeout)
		t.startSession(e)
		return closed

	case e.UnixTime-s.StartTime > int64(t.maxDuration.Seconds()):
		closed := t.closeActive(e.UnixTime, model.CloseMaxDuration)
		t.startSession(e)
		return closed

	default:
		t.appendEvent(e)
		return nil
	}
}

// ForceClose emits the active session, if any, with end time now and
// reason forced_close. Unlike the transition-triggered closes, no new
// session starts afterward (spec section 4.7).
func (t *Tracker) ForceClose(now int64) *model.Session {
	if t.active == nil {
		return nil
	}
	closed := t.closeActive(now, model.CloseForced)
	t.active = nil
	return closed
}

// Active reports the current in-progress session, or nil if NoSession.
func (t *Tracker) Active() *model.Session {
	return t.active
}

func (t *Tracker) startSession(e model.Event) {
	s := &model.Session{
		ID:             uuid.NewString(),
		StartTime:      e.UnixTime,
		EndTime:        e.UnixTime,
		PrimaryProcess: e.ProcessName,
		PrimaryWindow:  e.WindowTitle,
	}
	t.active = s
	t.lastEventTime = e.UnixTime
	t.appendEvent(e)
}

func (t *Tracker) appendEvent(e model.Event) {
	s := t.active
	s.Events = append(s.Events, e)
	t.lastEventTime = e.UnixTime

	key := model.WindowKey(e.ProcessName, e.WindowTitle)
	found := false
	for _, existing := range s.WindowTransitions {
		if existing == key {
			found = true
			break
		}
	}
	if !found {
		s.WindowTransitions = append(s.WindowTransitions, key)
	}
}

func (t *Tracker) closeActive(endTime int64, reason model.CloseReason) *model.Session {
	s := t.active
	s.EndTime = endTime
	s.CloseReason = reason

	var sum int64
	for _, e := range s.Events {
		sum += int64(e.InputIntensity)
	}
	if len(s.Events) > 0 {
		s.AvgInputIntensity = float64(sum) / float64(len(s.Events))
	}

	t.active = nil
	return s
}
