package response

import (
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

type streamState int

const (
	stDetect streamState = iota
	stPass
	stSeek
	stObject
	stAnswer
	stDone
)

// AnswerWriter forwards only the text of the "answer" field of a streamed
// JSON reply. Output that does not start with an object or a code fence is
// passed through unchanged, so prose replies still stream.
type AnswerWriter struct {
	w     io.Writer
	state streamState

	depth   int
	inStr   bool
	esc     bool
	wantKey bool
	isKey   bool
	key     []byte
	lastKey string
	// pending is set between `"answer":` and the value's first byte.
	pending bool

	hex  []byte
	high rune
}

// NewAnswerWriter wraps w.
func NewAnswerWriter(w io.Writer) *AnswerWriter {
	return &AnswerWriter{w: w}
}

// Write consumes p and writes any answer text it completes to the underlying
// writer. It always reports len(p) unless the underlying write fails.
func (a *AnswerWriter) Write(p []byte) (int, error) {
	var out []byte
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch a.state {
		case stDetect:
			switch c {
			case ' ', '\t', '\r', '\n':
			case '{':
				a.open()
			case '`':
				a.state = stSeek
			default:
				a.state = stPass
				out = append(out, p[i:]...)
				i = len(p)
			}
		case stPass:
			out = append(out, p[i:]...)
			i = len(p)
		case stSeek:
			if c == '{' {
				a.open()
			}
		case stObject:
			a.scan(c)
		case stAnswer:
			out = a.unescape(out, c)
		case stDone:
			i = len(p)
		}
	}
	if len(out) > 0 {
		if _, err := a.w.Write(out); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (a *AnswerWriter) open() {
	a.state = stObject
	a.depth = 1
	a.wantKey = true
}

// scan tracks just enough JSON structure to spot the top-level answer value.
func (a *AnswerWriter) scan(c byte) {
	if a.inStr {
		switch {
		case a.esc:
			a.esc = false
			if a.isKey {
				a.key = append(a.key, '\\', c)
			}
		case c == '\\':
			a.esc = true
		case c == '"':
			a.inStr = false
			if a.isKey {
				a.lastKey = string(a.key)
				a.isKey = false
			}
		case a.isKey:
			a.key = append(a.key, c)
		}
		return
	}

	if a.pending {
		switch c {
		case ' ', '\t', '\r', '\n':
			return
		case '"':
			a.pending = false
			a.state = stAnswer
			return
		}
		a.pending = false
	}

	switch c {
	case '"':
		a.inStr = true
		a.isKey = a.depth == 1 && a.wantKey
		a.key = a.key[:0]
	case ':':
		if a.depth == 1 {
			a.wantKey = false
			a.pending = a.lastKey == "answer"
		}
	case ',':
		if a.depth == 1 {
			a.wantKey = true
		}
	case '{', '[':
		a.depth++
	case '}', ']':
		a.depth--
		if a.depth == 0 {
			a.state = stDone
		}
	}
}

// unescape decodes one byte of the answer string into out.
func (a *AnswerWriter) unescape(out []byte, c byte) []byte {
	if a.hex != nil {
		a.hex = append(a.hex, c)
		if len(a.hex) < 4 {
			return out
		}
		n, err := strconv.ParseUint(string(a.hex), 16, 16)
		a.hex = nil
		if err != nil {
			return out
		}
		r := rune(n)
		switch {
		case utf16.IsSurrogate(r) && a.high == 0:
			a.high = r
			return out
		case a.high != 0:
			r = utf16.DecodeRune(a.high, r)
			a.high = 0
		}
		return utf8.AppendRune(out, r)
	}
	if a.esc {
		a.esc = false
		switch c {
		case 'n':
			return append(out, '\n')
		case 't':
			return append(out, '\t')
		case 'r':
			return append(out, '\r')
		case 'b', 'f':
			return out
		case 'u':
			a.hex = make([]byte, 0, 4)
			return out
		}
		return append(out, c)
	}
	switch c {
	case '\\':
		a.esc = true
		return out
	case '"':
		a.state = stDone
		return out
	}
	return append(out, c)
}
