package fragments

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// A Token classifies one line of a user-data message.
type Token int

const (
	// Text is a header or body line.
	Text Token = iota
	// Blank is an empty line. The first blank line of a part ends
	// its header block.
	Blank
	// Delimiter is a "--boundary" line, which starts a part.
	Delimiter
	// Terminator is a "--boundary--" line, which ends the message.
	Terminator
)

func (t Token) String() string {
	switch t {
	case Text:
		return "text"
	case Blank:
		return "blank"
	case Delimiter:
		return "delimiter"
	case Terminator:
		return "terminator"
	default:
		return fmt.Sprintf("Token(%d)", int(t))
	}
}

// A Decoder provides utilities to read a user-data MIME message one
// line at a time.
//
// Lines are returned without their LF or CRLF terminator.
type Decoder struct {
	// Boundary is the multipart boundary used to recognize
	// delimiter and terminator lines. If empty, [Decoder.Next]
	// reports every non-empty line as Text.
	Boundary string
	// In is the input stream to read.
	In io.Reader

	r    *bufio.Reader
	line int
}

// Line returns the number of lines read so far.
func (d *Decoder) Line() int {
	return d.line
}

// ReadLine reads one line. At the end of input, ReadLine returns
// io.EOF. A final line with no terminator is returned normally.
func (d *Decoder) ReadLine() (string, error) {
	if d.In == nil {
		return "", errors.New("In not provided to Decoder")
	}
	if d.r == nil {
		if br, ok := d.In.(*bufio.Reader); ok {
			d.r = br
		} else {
			d.r = bufio.NewReader(d.In)
		}
	}
	s, err := d.r.ReadString('\n')
	if err == io.EOF {
		if s == "" {
			return "", io.EOF
		}
		err = nil
	}
	if err != nil {
		return "", err
	}
	d.line++
	return trimEOL(s), nil
}

// Next reads one line and classifies it.
func (d *Decoder) Next() (Token, string, error) {
	line, err := d.ReadLine()
	if err != nil {
		return Text, "", err
	}
	return d.Classify(line), line, nil
}

// Classify reports the kind of line, relative to [Decoder.Boundary].
func (d *Decoder) Classify(line string) Token {
	if line == "" {
		return Blank
	}
	if d.Boundary == "" || !strings.HasPrefix(line, "--") {
		return Text
	}
	// RFC 2046 permits trailing whitespace after a delimiter.
	rest := strings.TrimRight(line[2:], " \t")
	switch {
	case rest == d.Boundary:
		return Delimiter
	case rest == d.Boundary+"--":
		return Terminator
	default:
		return Text
	}
}

// EnvelopePrefix is the literal start of a user-data envelope's first
// line, up to the opening quote of the boundary.
const EnvelopePrefix = `Content-Type: multipart/mixed; boundary="`

// ParseEnvelope extracts the boundary from a message's first line.
func ParseEnvelope(line string) (string, error) {
	line = trimEOL(line)
	rest, ok := strings.CutPrefix(line, EnvelopePrefix)
	if !ok {
		return "", fmt.Errorf("first line %q is not a multipart/mixed Content-Type", truncate(line))
	}
	boundary, _, ok := strings.Cut(rest, `"`)
	if !ok {
		return "", errors.New("boundary parameter has no closing quote")
	}
	if boundary == "" {
		return "", errors.New("boundary parameter is empty")
	}
	return boundary, nil
}

// ParseHeader splits a "Name: value" header line.
func ParseHeader(line string) (name, value string, err error) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", fmt.Errorf("header line %q has no colon", truncate(line))
	}
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("invalid header name %q", truncate(name))
	}
	return name, strings.TrimSpace(value), nil
}

// ParseParams splits a parameterized header value such as
// `attachment; filename="a/b.yml"` into its leading value and
// parameters. Parameter names are lowercased, quoted values are
// unquoted.
func ParseParams(v string) (string, map[string]string, error) {
	head, rest, _ := strings.Cut(v, ";")
	params := map[string]string{}
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		name, after, ok := strings.Cut(rest, "=")
		if !ok {
			return "", nil, fmt.Errorf("parameter %q has no value", truncate(rest))
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return "", nil, errors.New("empty parameter name")
		}
		after = strings.TrimLeft(after, " \t")
		var val string
		if strings.HasPrefix(after, `"`) {
			val, after, ok = unquote(after)
			if !ok {
				return "", nil, fmt.Errorf("parameter %q has unterminated quoted value", name)
			}
			after = strings.TrimLeft(after, " \t")
			if after != "" && after[0] != ';' {
				return "", nil, fmt.Errorf("unexpected %q after parameter %q", truncate(after), name)
			}
			after = strings.TrimPrefix(after, ";")
		} else {
			val, after, _ = strings.Cut(after, ";")
			val = strings.TrimSpace(val)
		}
		params[name] = val
		rest = after
	}
	return strings.TrimSpace(head), params, nil
}

// unquote reads a quoted string from the front of s, returning its
// unescaped value and the remainder of s after the closing quote.
func unquote(s string) (val, rest string, ok bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(c)
		}
	}
	return "", "", false
}

func truncate(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
