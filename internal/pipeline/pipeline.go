// Package pipeline turns a byte source into a lazy, pull-based sequence of
// transformed segments.
package pipeline

import (
	"io"
	"iter"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/ai-gateway/chatstream-go/internal/reqerr"
	"github.com/ai-gateway/chatstream-go/internal/splitter"
	"github.com/ai-gateway/chatstream-go/internal/transform"
)

// ErrInvalidUTF8 is returned when the source is not valid UTF-8.
var ErrInvalidUTF8 = &reqerr.Error{Name: reqerr.NameDecode, Message: "invalid utf-8 in stream"}

const readSize = 4 << 10

// Stream is single-pass: once Next returns an error, including io.EOF,
// every later call returns the same error.
type Stream[T any] struct {
	r     io.Reader
	split *splitter.Splitter
	fn    transform.Func[T]

	buf     []byte
	carry   []byte
	queue   []string
	flushed bool
	err     error
}

// New reads from r, splits on sep and maps every segment through fn.
func New[T any](r io.Reader, sep splitter.Separator, fn transform.Func[T]) *Stream[T] {
	return &Stream[T]{
		r:     r,
		split: splitter.New(sep),
		fn:    fn,
		buf:   make([]byte, readSize),
	}
}

// Text is a Stream that yields the raw segments.
func Text(r io.Reader, sep splitter.Separator) *Stream[string] {
	return New(r, sep, transform.Identity)
}

// Next returns the next value, reading from the source only when no
// complete segment is queued.
func (s *Stream[T]) Next() (T, error) {
	var zero T
	if s.err != nil {
		return zero, s.err
	}
	for len(s.queue) == 0 {
		if s.flushed {
			s.err = io.EOF
			return zero, s.err
		}
		if err := s.fill(); err != nil {
			s.err = err
			return zero, err
		}
	}
	seg := s.queue[0]
	s.queue = s.queue[1:]
	v, err := s.fn(seg)
	if err != nil {
		s.err = reqerr.Wrap(reqerr.NameTransform, err, "transform segment: %v", err)
		return zero, s.err
	}
	return v, nil
}

// All exposes the stream as a range-over-func sequence. Iteration stops
// after the first error, which is yielded; io.EOF is not.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

func (s *Stream[T]) fill() error {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		text, decErr := s.decode(s.buf[:n])
		if decErr != nil {
			return decErr
		}
		s.queue = append(s.queue, s.split.Push(text)...)
	}
	switch {
	case err == io.EOF:
		if len(s.carry) > 0 {
			return ErrInvalidUTF8
		}
		s.queue = append(s.queue, s.split.Flush()...)
		s.flushed = true
	case err != nil:
		return errors.Wrap(err, "read stream")
	}
	return nil
}

// decode returns the longest valid UTF-8 prefix of carry+p and keeps an
// incomplete trailing rune for the next read.
func (s *Stream[T]) decode(p []byte) (string, error) {
	b := append(s.carry, p...)
	s.carry = nil

	end := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			end = i
		}
		break
	}
	if !utf8.Valid(b[:end]) {
		return "", ErrInvalidUTF8
	}
	s.carry = append([]byte(nil), b[end:]...)
	return string(b[:end]), nil
}
