package splitter

import (
	"bytes"
	"regexp"
	"regexp/syntax"
	"strings"
	"unicode/utf8"
)

// Separator locates the first separator in a buffer.
type Separator interface {
	// Index returns the bounds of the first match in b, or -1, -1.
	Index(b []byte) (start, end int)
	// Width is the longest possible match in bytes, or -1 when unbounded.
	Width() int
}

type literal string

func (l literal) Index(b []byte) (int, int) {
	i := bytes.Index(b, []byte(l))
	if i < 0 {
		return -1, -1
	}
	return i, i + len(l)
}

func (l literal) Width() int { return len(l) }

type pattern struct {
	re    *regexp.Regexp
	width int
}

func (p pattern) Index(b []byte) (int, int) {
	loc := p.re.FindIndex(b)
	if loc == nil {
		return -1, -1
	}
	return loc[0], loc[1]
}

func (p pattern) Width() int { return p.width }

// Literal separates on an exact string.
func Literal(sep string) Separator { return literal(sep) }

// Pattern separates on every match of re. Patterns with a bounded match
// length are scanned incrementally; unbounded ones rescan the pending
// segment on every fragment.
func Pattern(re *regexp.Regexp) Separator {
	width := -1
	if parsed, err := syntax.Parse(re.String(), syntax.Perl); err == nil {
		width = maxWidth(parsed.Simplify())
	}
	return pattern{re: re, width: width}
}

// maxWidth returns the longest byte length re can match, or -1.
func maxWidth(re *syntax.Regexp) int {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return 0
	case syntax.OpLiteral:
		n := 0
		for _, r := range re.Rune {
			n += utf8.RuneLen(r)
		}
		return n
	case syntax.OpCharClass:
		if len(re.Rune) == 0 {
			return 0
		}
		return utf8.RuneLen(re.Rune[len(re.Rune)-1])
	case syntax.OpAnyCharNotNL, syntax.OpAnyChar:
		return utf8.UTFMax
	case syntax.OpCapture, syntax.OpQuest:
		return maxWidth(re.Sub[0])
	case syntax.OpRepeat:
		if re.Max < 0 {
			return -1
		}
		w := maxWidth(re.Sub[0])
		if w < 0 {
			return -1
		}
		return w * re.Max
	case syntax.OpConcat:
		n := 0
		for _, sub := range re.Sub {
			w := maxWidth(sub)
			if w < 0 {
				return -1
			}
			n += w
		}
		return n
	case syntax.OpAlternate:
		n := 0
		for _, sub := range re.Sub {
			w := maxWidth(sub)
			if w < 0 {
				return -1
			}
			n = max(n, w)
		}
		return n
	}
	return -1
}

// Newline is the default separator.
var Newline = Literal("\n")

// Splitter buffers text fragments and yields complete segments only.
// Each byte is searched a bounded number of times, so long segments cost
// linear time.
type Splitter struct {
	sep Separator
	buf []byte
	// scan is where the next search starts; no separator begins before it.
	scan int
}

func New(sep Separator) *Splitter {
	if sep == nil {
		sep = Newline
	}
	if l, ok := sep.(literal); ok && l == "" {
		sep = Newline
	}
	return &Splitter{sep: sep}
}

// Push appends fragment and returns every segment completed by it.
func (s *Splitter) Push(fragment string) []string {
	s.buf = append(s.buf, fragment...)

	var out []string
	start := 0
	for {
		i, j := s.sep.Index(s.buf[s.scan:])
		if i < 0 || j == i {
			break
		}
		out = append(out, string(s.buf[start:s.scan+i]))
		start = s.scan + j
		s.scan = start
	}

	// a separator may still begin within the last width-1 bytes
	if w := s.sep.Width(); w > 0 {
		s.scan = max(s.scan, len(s.buf)-(w-1))
	}
	if start > 0 {
		n := copy(s.buf, s.buf[start:])
		s.buf = s.buf[:n]
		s.scan -= start
	}
	return keep(out)
}

// Flush returns what is left in the buffer and resets it.
func (s *Splitter) Flush() []string {
	rest := string(s.buf)
	s.buf = s.buf[:0]
	s.scan = 0
	return keep([]string{rest})
}

// Pending reports whether text is buffered without a trailing separator.
func (s *Splitter) Pending() bool { return len(s.buf) > 0 }

func keep(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
