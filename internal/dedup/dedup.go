// Package dedup implements the deduplication batcher from spec section
// 4.3: in stream mode it groups raw events in-memory by fingerprint
// (process, title), computing the same aggregates the store-mode SQL
// grouping produces, and sorts the result so the most active windows are
// processed first within the cycle budget. It also implements the
// short-horizon duplicate-fingerprint suppressor the orchestrator
// maintains across cycles.
package dedup

import (
	"sort"
	"time"

	"github.com/mnemosyne/brain/internal/model"
)

// RawEvent pairs a transient event with its broker acknowledgment id (empty
// in store mode, where there is no broker to acknowledge).
type RawEvent struct {
	Event model.Event
	AckID string
}

// GroupEvents groups raw events by (process, title), computing count,
// first/last timestamp and mean intensity, then sorts the result
// descending by event count (spec section 4.3).
func GroupEvents(raws []RawEvent) []model.EventGroup {
	type acc struct {
		group         model.EventGroup
		intensitySum  int64
	}

	index := make(map[model.Fingerprint]*acc)
	var order []model.Fingerprint

	for _, r := range raws {
		fp := model.Fingerprint{ProcessName: r.Event.ProcessName, WindowTitle: r.Event.WindowTitle}
		a, ok := index[fp]
		if !ok {
			a = &acc{group: model.EventGroup{
				Fingerprint: fp,
				FirstSeen:   r.Event.UnixTime,
				LastSeen:    r.Event.UnixTime,
			}}
			index[fp] = a
			order = append(order, fp)
		}

		a.group.Count++
		a.intensitySum += int64(r.Event.InputIntensity)
		if r.Event.UnixTime < a.group.FirstSeen {
			a.group.FirstSeen = r.Event.UnixTime
		}
		if r.Event.UnixTime > a.group.LastSeen {
			a.group.LastSeen = r.Event.UnixTime
		}
		if r.Event.ID != 0 {
			a.group.EventIDs = append(a.group.EventIDs, r.Event.ID)
		}
		if r.AckID != "" {
			a.group.AckIDs = append(a.group.AckIDs, r.AckID)
		}
		if a.group.ScreenshotHash == "" && r.Event.ScreenshotHash != "" {
			a.group.ScreenshotHash = r.Event.ScreenshotHash
		}
	}

	groups := make([]model.EventGroup, 0, len(order))
	for _, fp := range order {
		a := index[fp]
		if a.group.Count > 0 {
			a.group.MeanIntensity = float64(a.intensitySum) / float64(a.group.Count)
		}
		groups = append(groups, a.group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	return groups
}

// Suppressor implements the short-horizon duplicate-fingerprint
// suppressor: a process_name -> last_seen_wallclock map. A group whose
// process was last processed within the horizon is skipped.
type Suppressor struct {
	horizon  time.Duration
	maxAge   time.Duration
	lastSeen map[string]time.Time
}

// NewSuppressor creates a suppressor with the given suppression horizon
// (spec default 15s) and prune age (spec default 60s).
func NewSuppressor(horizon, maxAge time.Duration) *Suppressor {
	return &Suppressor{
		horizon:  horizon,
		maxAge:   maxAge,
		lastSeen: make(map[string]time.Time),
	}
}

// ShouldSuppress reports whether process was processed within the
// suppression horizon of now. If not suppressed, it records now as the
// process's last-seen time.
func (s *Suppressor) ShouldSuppress(process string, now time.Time) bool {
	if last, ok := s.lastSeen[process]; ok {
		if now.Sub(last) <= s.horizon {
			return true
		}
	}
	s.lastSeen[process] = now
	return false
}

// Prune removes entries older than maxAge relative to now. The
// orchestrator calls this once per cycle.
func (s *Suppressor) Prune(now time.Time) {
	for process, last := range s.lastSeen {
		if now.Sub(last) > s.maxAge {
			delete(s.lastSeen, process)
		}
	}
}
