package transform

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ai-gateway/chatstream-go/internal/sse"
)

// Func maps one raw text segment to an output value.
type Func[T any] func(segment string) (T, error)

// Identity returns segments unchanged.
func Identity(segment string) (string, error) { return segment, nil }

// Chain runs a, then b on its result.
func Chain[A, B any](a Func[A], b func(A) (B, error)) Func[B] {
	return func(segment string) (B, error) {
		v, err := a(segment)
		if err != nil {
			var zero B
			return zero, err
		}
		return b(v)
	}
}

// JSON decodes every segment as a JSON document, as used for NDJSON bodies.
func JSON[T any](segment string) (T, error) {
	return Bytes[T]([]byte(segment))
}

// Bytes converts a whole body into T. A string target receives the raw
// text; anything else is JSON-decoded.
func Bytes[T any](body []byte) (T, error) {
	var v T
	switch p := any(&v).(type) {
	case *string:
		*p = string(body)
		return v, nil
	case *[]byte:
		*p = append([]byte(nil), body...)
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, errors.Wrap(err, "decode json")
	}
	return v, nil
}

// Event converts a parsed SSE record into T: the event itself, its data
// as a string, or its data decoded as JSON.
func Event[T any](ev sse.Event) (T, error) {
	var v T
	switch p := any(&v).(type) {
	case *sse.Event:
		*p = ev
		return v, nil
	case *string:
		*p = ev.Data
		return v, nil
	}
	if err := json.Unmarshal([]byte(ev.Data), &v); err != nil {
		return v, errors.Wrapf(err, "decode event data %q", ev.Data)
	}
	return v, nil
}
