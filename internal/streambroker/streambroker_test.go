package streambroker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_ToEvent(t *testing.T) {
	m := Message{
		ID: "1-0",
		Fields: map[string]string{
			"session_uuid": "abc-123",
			"unix_time":    "1700000000",
			"process_name": "chrome.exe",
			"window_title": "Inbox",
			"window_hwnd":  "4567",
			"input_idle":   "1200",
			"intensity":    "42",
		},
	}

	e := m.ToEvent()
	assert.Equal(t, "abc-123", e.SessionUUID)
	assert.Equal(t, int64(1700000000), e.UnixTime)
	assert.Equal(t, "chrome.exe", e.ProcessName)
	assert.Equal(t, "Inbox", e.WindowTitle)
	assert.Equal(t, int64(1200), e.InputIdleMS)
	assert.Equal(t, 42, e.InputIntensity)
	if assert.NotNil(t, e.WindowHandle) {
		assert.Equal(t, int64(4567), *e.WindowHandle)
	}
}

func TestMessage_ToEvent_MissingFieldsDefaultRatherThanFail(t *testing.T) {
	m := Message{ID: "2-0", Fields: map[string]string{}}
	e := m.ToEvent()
	assert.Equal(t, "unknown", e.ProcessName)
	assert.Equal(t, "unknown", e.WindowTitle)
	assert.Nil(t, e.WindowHandle)
}

func TestIsBusyGroupErr(t *testing.T) {
	assert.False(t, isBusyGroupErr(nil))
}
