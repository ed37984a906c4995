// CLAUDE:SUMMARY Public data types shared by the pilot, its store and every transport: Settings, Stats, Snapshot, Event, Report.
// Package state holds the data model of a course pilot: per-page settings,
// click statistics, pushed events and status reports.
package state

import (
	"errors"
	"fmt"
	"time"
)

// DefaultClickDelay is the minimum spacing between two activations.
const DefaultClickDelay = 10 * time.Second

// ClockLayout renders instants the way the status report shows them.
const ClockLayout = "3:04:05 PM"

var (
	// ErrInvalidSettings is returned when an update carries out-of-range values.
	ErrInvalidSettings = errors.New("coursepilot: invalid settings")
	// ErrPageNotFound is returned when a command targets an unknown page id.
	ErrPageNotFound = errors.New("coursepilot: page not found")
)

// Settings is the per-page configuration persisted under the "settings" key.
type Settings struct {
	ClickDelay     int64 `json:"clickDelay" yaml:"click_delay_ms"`
	MarkAsComplete bool  `json:"markAsComplete" yaml:"mark_as_complete"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() Settings {
	return Settings{ClickDelay: DefaultClickDelay.Milliseconds(), MarkAsComplete: true}
}

// Delay returns ClickDelay as a duration.
func (s Settings) Delay() time.Duration {
	return time.Duration(s.ClickDelay) * time.Millisecond
}

// Validate rejects negative delays.
func (s Settings) Validate() error {
	if s.ClickDelay < 0 {
		return fmt.Errorf("%w: click delay %dms is negative", ErrInvalidSettings, s.ClickDelay)
	}
	return nil
}

// SettingsUpdate is a partial settings change. Nil fields are left as is.
type SettingsUpdate struct {
	DelaySeconds   *int  `json:"delaySeconds,omitempty"`
	MarkAsComplete *bool `json:"markAsComplete,omitempty"`
}

// Apply resolves the update over cur.
func (u SettingsUpdate) Apply(cur Settings) (Settings, error) {
	next := cur
	if u.DelaySeconds != nil {
		if *u.DelaySeconds < 0 {
			return cur, fmt.Errorf("%w: delay %ds is negative", ErrInvalidSettings, *u.DelaySeconds)
		}
		next.ClickDelay = int64(*u.DelaySeconds) * 1000
	}
	if u.MarkAsComplete != nil {
		next.MarkAsComplete = *u.MarkAsComplete
	}
	return next, nil
}

// Stats counts successful activations.
type Stats struct {
	ClicksToday        int    `json:"clicksToday"`
	LastAction         string `json:"lastAction,omitempty"`
	LastActionTime     string `json:"lastActionTime,omitempty"`
	LastClickTimestamp int64  `json:"lastClickTimestamp,omitempty"`
}

// Record accounts one activation at now. The counter restarts when the
// previous click happened on another local calendar day.
func (s Stats) Record(action string, now time.Time) Stats {
	if s.LastClickTimestamp > 0 && !sameDay(time.UnixMilli(s.LastClickTimestamp).In(now.Location()), now) {
		s.ClicksToday = 0
	}
	s.ClicksToday++
	s.LastAction = action
	s.LastActionTime = now.Format(ClockLayout)
	s.LastClickTimestamp = now.UnixMilli()
	return s
}

// LastClick returns the instant of the last recorded click, zero if none.
func (s Stats) LastClick() time.Time {
	if s.LastClickTimestamp <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastClickTimestamp)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Snapshot is everything persisted for one page.
type Snapshot struct {
	Enabled  bool     `json:"enabled"`
	Settings Settings `json:"settings"`
	Stats    Stats    `json:"stats"`
}

// Mode is the activation loop state.
type Mode string

const (
	Idle       Mode = "idle"
	Monitoring Mode = "monitoring"
)

// Report answers the "get status" command.
type Report struct {
	PageID           string   `json:"pageId,omitempty"`
	Enabled          bool     `json:"enabled"`
	State            Mode     `json:"state"`
	SecondsUntilNext int      `json:"secondsUntilNext"`
	Settings         Settings `json:"settings"`
	LastClick        string   `json:"lastClick"`
	Stats            Stats    `json:"stats"`
}

// EventType distinguishes pushed events.
type EventType string

const (
	EventStatus EventType = "status"
	EventStats  EventType = "stats"
)

// Event is a fire-and-forget push to observers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	PageID    string    `json:"pageId"`
	Status    string    `json:"status,omitempty"`
	Stats     *Stats    `json:"stats,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
