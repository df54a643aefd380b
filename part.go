package userdata

import (
	"strings"

	"github.com/danderson/userdata/fragments"
)

// A HeaderField is one MIME header line.
type HeaderField struct {
	Name  string
	Value string
}

// A Part is one MIME-encoded fragment.
type Part struct {
	// Header is the part's header block, in output order.
	Header []HeaderField
	// Body is the fragment content in base64, wrapped at
	// fragments.MaxLineLength characters per CRLF-terminated line.
	Body []byte
}

// EncodePart builds the MIME part for f, declaring contentType as its
// Content-Type.
func EncodePart(f Fragment, contentType string) Part {
	var e fragments.Encoder
	e.Base64(f.Body)
	return Part{
		Header: []HeaderField{
			{"Content-Type", contentType},
			{"MIME-Version", "1.0"},
			{"Content-Transfer-Encoding", "base64"},
			// cloud-init's own output puts no charset on the
			// filename, even when the Content-Type has one.
			{"Content-Disposition", "attachment; filename=" + fragments.Quote(f.Name)},
		},
		Body: e.Out,
	}
}

// Filename returns the filename declared by p's Content-Disposition
// header.
func (p Part) Filename() (string, bool) {
	v, ok := p.header("Content-Disposition")
	if !ok {
		return "", false
	}
	_, params, err := fragments.ParseParams(v)
	if err != nil {
		return "", false
	}
	name, ok := params["filename"]
	return name, ok && name != ""
}

func (p Part) header(name string) (string, bool) {
	for _, f := range p.Header {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// appendTo writes p's headers, the blank separator line, and p's
// body to e.
func (p Part) appendTo(e *fragments.Encoder) {
	for _, f := range p.Header {
		e.Header(f.Name, f.Value)
	}
	e.Blank()
	e.Write(p.Body)
}
