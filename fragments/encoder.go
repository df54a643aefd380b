package fragments

import (
	"encoding/base64"
	"strings"
)

// An Encoder provides utilities to write a user-data MIME message to
// a byte slice.
//
// Methods write complete lines, including their terminator, except
// for [Encoder.Write] which outputs bytes verbatim.
type Encoder struct {
	// LineLength is the number of base64 characters per body line. If
	// zero or larger than MaxLineLength, MaxLineLength is used.
	LineLength int
	// Out is the encoded output.
	Out []byte
}

// Reset discards the encoded output, retaining the underlying
// storage for reuse.
func (e *Encoder) Reset() {
	e.Out = e.Out[:0]
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to produce a well formed message.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Header writes a "name: value" header line.
func (e *Encoder) Header(name, value string) {
	e.Out = append(e.Out, name...)
	e.Out = append(e.Out, ": "...)
	e.Out = append(e.Out, value...)
	e.Out = append(e.Out, LF...)
}

// Blank writes an empty line, which ends a header block.
func (e *Encoder) Blank() {
	e.Out = append(e.Out, LF...)
}

// Delimiter writes the part delimiter line for boundary.
func (e *Encoder) Delimiter(boundary string) {
	e.Out = append(e.Out, "--"...)
	e.Out = append(e.Out, boundary...)
	e.Out = append(e.Out, LF...)
}

// Terminator writes the closing delimiter line for boundary.
func (e *Encoder) Terminator(boundary string) {
	e.Out = append(e.Out, "--"...)
	e.Out = append(e.Out, boundary...)
	e.Out = append(e.Out, "--"...)
	e.Out = append(e.Out, LF...)
}

// Base64 writes bs in standard base64, hard wrapped at
// [Encoder.LineLength] characters, each line terminated by CRLF. An
// empty bs writes nothing.
func (e *Encoder) Base64(bs []byte) {
	width := e.LineLength
	if width <= 0 || width > MaxLineLength {
		width = MaxLineLength
	}
	enc := make([]byte, base64.StdEncoding.EncodedLen(len(bs)))
	base64.StdEncoding.Encode(enc, bs)
	for len(enc) > 0 {
		n := min(width, len(enc))
		e.Out = append(e.Out, enc[:n]...)
		e.Out = append(e.Out, CRLF...)
		enc = enc[n:]
	}
}

// Quote returns s as a quoted MIME parameter value.
func Quote(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return `"` + s + `"`
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}
