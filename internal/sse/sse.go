// Package sse parses Server-Sent Events records.
package sse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ai-gateway/chatstream-go/internal/splitter"
)

const (
	ContentType = "text/event-stream"

	// DoneData is the conventional end-of-stream payload.
	DoneData = "[DONE]"
)

// Separator splits a byte stream into records on blank lines.
var Separator = splitter.Pattern(regexp.MustCompile(`\r?\n\r?\n`))

// Event is one SSE record.
type Event struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  string `json:"data,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// Done reports whether the event carries the end-of-stream sentinel.
func (e Event) Done() bool { return strings.TrimSpace(e.Data) == DoneData }

// Empty reports whether no field was set, e.g. a comment-only record.
func (e Event) Empty() bool { return e == Event{} }

// Parse decodes one record. Unknown fields and comment lines are ignored,
// multiple data lines are joined with a newline.
func Parse(record string) (Event, error) {
	var (
		ev   Event
		data []string
	)
	for _, line := range strings.Split(record, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
		case "retry":
			// non-numeric retry values are ignored
			if n, err := strconv.Atoi(value); err == nil {
				ev.Retry = n
			}
		}
	}
	ev.Data = strings.Join(data, "\n")
	return ev, nil
}

// Format renders an event in wire form, terminated by a blank line.
func Format(ev Event) string {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Event != "" {
		b.WriteString("event: " + ev.Event + "\n")
	}
	if ev.Retry > 0 {
		b.WriteString("retry: " + strconv.Itoa(ev.Retry) + "\n")
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	return b.String()
}
