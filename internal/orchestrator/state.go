package orchestrator

import (
	"mime"
	"strings"

	"github.com/ai-gateway/chatstream-go/internal/sse"
)

// State of a request.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateBuffering
	StateSucceeded
	StateFailed
	StateTimedOut
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateBuffering:
		return "buffering"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether s is a settled state.
func (s State) Terminal() bool { return s >= StateSucceeded }

// Dispatch is how a response body is interpreted, decided once per response.
type Dispatch int

const (
	DispatchUnsupported Dispatch = iota
	DispatchEventStream
	DispatchJSON
	DispatchCustom
)

func (d Dispatch) String() string {
	switch d {
	case DispatchEventStream:
		return "event-stream"
	case DispatchJSON:
		return "json"
	case DispatchCustom:
		return "custom"
	}
	return "unsupported"
}

const contentTypeJSON = "application/json"

// Classify picks the body handling for a response content type. A custom
// transform takes every content type.
func Classify(contentType string, custom bool) Dispatch {
	if custom {
		return DispatchCustom
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mt == sse.ContentType:
		return DispatchEventStream
	case mt == contentTypeJSON, strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"):
		return DispatchJSON
	}
	return DispatchUnsupported
}
