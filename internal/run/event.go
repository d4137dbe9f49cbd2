// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package run

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventLog carries one log line.
	EventLog EventKind = iota
	// EventStatus carries a short status text for display.
	EventStatus
	// EventProgress carries the overall progress, 0 to 100.
	EventProgress
	// EventFinished is the last event of a run and carries its Result.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventStatus:
		return "status"
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is a notification from a run to its caller. Which fields are set
// depends on Kind.
type Event struct {
	Kind EventKind
	Time time.Time

	// Level, Message and Attrs are set for EventLog. Message is also the
	// status text of EventStatus.
	Level   slog.Level
	Message string
	Attrs   []slog.Attr

	// Percent is set for EventProgress.
	Percent int

	// Result is set for EventFinished.
	Result *Result
}

// LogTimeLayout is the timestamp layout of formatted log lines.
const LogTimeLayout = "2006-01-02 15:04:05"

// FormatLog renders a log event as "[time] [LEVEL] message key=value ...".
func FormatLog(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", e.Time.Format(LogTimeLayout), e.Level, e.Message)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	return b.String()
}

func statusEvent(msg string) Event {
	return Event{Kind: EventStatus, Time: time.Now(), Message: msg}
}

func progressEvent(pct int) Event {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return Event{Kind: EventProgress, Time: time.Now(), Percent: pct}
}

func finishedEvent(res Result) Event {
	return Event{Kind: EventFinished, Time: time.Now(), Result: &res}
}
