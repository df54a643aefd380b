package fragments

import "strings"

// Line terminators used by the user-data format. Header, envelope
// and delimiter lines end in LF, base64 body lines end in CRLF.
const (
	LF   = "\n"
	CRLF = "\r\n"
)

// MaxLineLength is the maximum number of base64 characters written
// on one body line.
const MaxLineLength = 76

// trimEOL strips one trailing LF or CRLF from line.
func trimEOL(line string) string {
	line = strings.TrimSuffix(line, LF)
	return strings.TrimSuffix(line, "\r")
}
