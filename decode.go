package userdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/creachadair/mds/mapset"
	"github.com/danderson/userdata/fragments"
	"github.com/klauspost/compress/gzip"
)

// Restored is a fragment recovered from a user-data message.
type Restored struct {
	// Name is the filename declared by the part's
	// Content-Disposition.
	Name string
	// Kind is the registered kind matching ContentType, or "" if
	// there is none.
	Kind Kind
	// ContentType is the part's Content-Type header, verbatim.
	ContentType string
	// Body is the decoded content.
	Body []byte
}

// DecodeReport describes the outcome of a decode.
type DecodeReport struct {
	// Boundary is the multipart boundary declared by the envelope.
	Boundary string
	// Fragments are the recovered fragments, in message order.
	Fragments []Restored
	// Diagnostics lists the parts that could not be recovered, and
	// why, plus any envelope irregularities.
	Diagnostics []Diagnostic
}

// Failed reports whether no fragment was recovered because of
// problems. A well formed message with zero parts has not failed.
func (r *DecodeReport) Failed() bool {
	if len(r.Fragments) > 0 {
		return false
	}
	for _, d := range r.Diagnostics {
		if d.Problem != NonConformantEnvelope {
			return true
		}
	}
	return false
}

// A Decoder parses cloud-init user-data MIME messages.
//
// The zero value is ready to use.
type Decoder struct {
	// Registry maps part Content-Types back to kinds. If nil,
	// DefaultRegistry is used.
	Registry *Registry
}

// Decode parses a user-data message from r, using a zero [Decoder].
func Decode(r io.Reader) (*DecodeReport, error) {
	var d Decoder
	return d.Decode(r)
}

// DecodeDir parses a user-data message from r and restores its
// fragments under dir, using a zero [Decoder].
func DecodeDir(ctx context.Context, r io.Reader, dir string) (*DecodeReport, error) {
	var d Decoder
	return d.DecodeDir(ctx, r, dir)
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decode parses a user-data message from r.
//
// Gzip-compressed messages are decompressed transparently. If the
// first line is not a multipart/mixed Content-Type with a boundary,
// Decode returns an error matching [ErrMalformedEnvelope] and no
// fragments. Otherwise, malformed parts are skipped and reported in
// the returned report's Diagnostics, and the remaining parts are
// still decoded. Other errors are read errors from r.
func (dec *Decoder) Decode(r io.Reader) (*DecodeReport, error) {
	br := bufio.NewReader(r)
	var in io.Reader = br
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, EnvelopeError{fmt.Errorf("reading gzip header: %w", err)}
		}
		defer zr.Close()
		in = zr
	}

	d := &fragments.Decoder{In: in}
	first, err := d.ReadLine()
	if errors.Is(err, io.EOF) {
		return nil, EnvelopeError{errors.New("empty message")}
	} else if err != nil {
		return nil, err
	}
	boundary, err := fragments.ParseEnvelope(first)
	if err != nil {
		return nil, EnvelopeError{err}
	}
	d.Boundary = boundary

	p := &parser{
		reg:   dec.Registry,
		names: mapset.New[string](),
		rep:   &DecodeReport{Boundary: boundary},
	}

	second, err := d.ReadLine()
	switch {
	case errors.Is(err, io.EOF):
		p.rep.Diagnostics = append(p.rep.Diagnostics, Diagnostic{
			Problem: NonConformantEnvelope,
			Line:    2,
			Err:     errors.New("missing MIME-Version header"),
		})
	case err != nil:
		return nil, err
	case second != "MIME-Version: 1.0":
		p.rep.Diagnostics = append(p.rep.Diagnostics, Diagnostic{
			Problem: NonConformantEnvelope,
			Line:    2,
			Err:     fmt.Errorf("second line is %q, want MIME-Version: 1.0", second),
		})
		// Not an envelope header, so it belongs to the body.
		p.line(d.Classify(second), second, d.Line())
	}

	for !p.done {
		tok, line, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		p.line(tok, line, d.Line())
	}
	if !p.done {
		p.finish()
		p.rep.Diagnostics = append(p.rep.Diagnostics, Diagnostic{
			Problem: MissingTerminator,
			Line:    d.Line(),
			Err:     fmt.Errorf("no closing --%s-- line", boundary),
		})
	}
	return p.rep, nil
}

// DecodeDir parses a user-data message from r and restores its
// fragments under dir, recreating the directory structure of their
// declared filenames.
//
// Fragments that cannot be written are reported as
// [DestinationWriteFailure] diagnostics and removed from the
// report's Fragments, which therefore lists exactly the fragments
// restored on disk.
func (dec *Decoder) DecodeDir(ctx context.Context, r io.Reader, dir string) (*DecodeReport, error) {
	rep, err := dec.Decode(r)
	if err != nil {
		return nil, err
	}
	written, diags, err := Restore(ctx, DirSink{Root: dir}, rep.Fragments)
	rep.Fragments = written
	rep.Diagnostics = append(rep.Diagnostics, diags...)
	return rep, err
}

// Restore stores frags in sink, in order. It returns the fragments
// that were stored, and a [DestinationWriteFailure] diagnostic for
// each one that was not. The returned error is non-nil only if ctx
// is canceled.
func Restore(ctx context.Context, sink Sink, frags []Restored) ([]Restored, []Diagnostic, error) {
	var (
		ok    []Restored
		diags []Diagnostic
	)
	for _, f := range frags {
		if err := ctx.Err(); err != nil {
			return ok, diags, err
		}
		if err := sink.Store(ctx, f.Name, f.Body); err != nil {
			diags = append(diags, diag(DestinationWriteFailure, f.Name, err))
			continue
		}
		ok = append(ok, f)
	}
	return ok, diags, nil
}

// parser accumulates message lines into parts.
type parser struct {
	reg   *Registry
	names mapset.Set[string]
	rep   *DecodeReport
	cur   *rawPart
	done  bool
}

// rawPart is a part whose lines are still being read.
type rawPart struct {
	start     int
	header    []HeaderField
	headerErr error
	inBody    bool
	body      strings.Builder
}

func (p *parser) line(tok fragments.Token, line string, lineNum int) {
	switch tok {
	case fragments.Delimiter:
		p.finish()
		p.cur = &rawPart{start: lineNum}
	case fragments.Terminator:
		p.finish()
		p.done = true
	case fragments.Blank:
		if p.cur != nil {
			p.cur.inBody = true
		}
	case fragments.Text:
		switch {
		case p.cur == nil:
			// Preamble, ignored.
		case p.cur.inBody:
			p.cur.body.WriteString(strings.TrimSpace(line))
		case line[0] == ' ' || line[0] == '\t':
			if n := len(p.cur.header); n > 0 {
				p.cur.header[n-1].Value += " " + strings.TrimSpace(line)
			} else if p.cur.headerErr == nil {
				p.cur.headerErr = fmt.Errorf("continuation line %q with no header", line)
			}
		default:
			name, value, err := fragments.ParseHeader(line)
			if err != nil {
				if p.cur.headerErr == nil {
					p.cur.headerErr = err
				}
				return
			}
			p.cur.header = append(p.cur.header, HeaderField{name, value})
		}
	}
}

// finish decodes the current part, if any, and records the result.
func (p *parser) finish() {
	raw := p.cur
	p.cur = nil
	if raw == nil {
		return
	}
	f, d := raw.decode(p.reg)
	if d != nil {
		d.Line = raw.start
		p.rep.Diagnostics = append(p.rep.Diagnostics, *d)
		return
	}
	if p.names.Has(f.Name) {
		p.rep.Diagnostics = append(p.rep.Diagnostics, Diagnostic{
			Problem: DuplicateFilename,
			Name:    f.Name,
			Line:    raw.start,
			Err:     errors.New("name already used by an earlier part"),
		})
		return
	}
	p.names.Add(f.Name)
	p.rep.Fragments = append(p.rep.Fragments, f)
}

func (r *rawPart) decode(reg *Registry) (Restored, *Diagnostic) {
	part := Part{Header: r.header}
	name, _ := part.Filename()
	unparseable := func(err error) (Restored, *Diagnostic) {
		return Restored{}, &Diagnostic{Problem: PartHeaderUnparseable, Name: name, Err: err}
	}
	if r.headerErr != nil {
		return unparseable(r.headerErr)
	}
	if !r.inBody {
		return unparseable(errors.New("header block is not terminated by a blank line"))
	}
	if name == "" {
		return unparseable(errors.New("no Content-Disposition filename"))
	}
	if cte, ok := part.header("Content-Transfer-Encoding"); ok && !strings.EqualFold(cte, "base64") {
		return unparseable(fmt.Errorf("unsupported Content-Transfer-Encoding %q", cte))
	}

	body, err := base64.StdEncoding.DecodeString(r.body.String())
	if err != nil {
		return Restored{}, &Diagnostic{Problem: Base64DecodeFailure, Name: name, Err: err}
	}
	ct, _ := part.header("Content-Type")
	kind, _ := reg.KindOf(ct)
	return Restored{
		Name:        name,
		Kind:        kind,
		ContentType: ct,
		Body:        body,
	}, nil
}
