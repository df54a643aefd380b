package userdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/creachadair/mds/mapset"
	"github.com/danderson/userdata/fragments"
	"github.com/klauspost/compress/gzip"
)

// An Encoder writes fragments as a cloud-init user-data MIME
// message.
//
// The zero value is ready to use, and encodes with [DefaultRegistry]
// and a fresh random boundary.
type Encoder struct {
	// Registry resolves fragment kinds to Content-Types. If nil,
	// DefaultRegistry is used.
	Registry *Registry
	// Boundary overrides the generated multipart boundary. It is
	// intended for tests and reproducible builds, and must satisfy
	// [ValidBoundary].
	Boundary string
	// Strict makes unregistered fragment kinds fatal. By default
	// such fragments are left out of the message and reported.
	Strict bool
	// Gzip compresses the whole message. cloud-init detects and
	// decompresses gzipped user-data.
	Gzip bool
}

// EncodeReport describes the outcome of an encode.
type EncodeReport struct {
	// Boundary is the multipart boundary of the message.
	Boundary string
	// Parts is the declared filename of each part written, in
	// message order.
	Parts []string
	// Diagnostics lists the fragments that were left out, and why.
	Diagnostics []Diagnostic
}

// Failed reports whether no fragment made it into the message
// because of problems. An encode of zero fragments has not failed.
func (r *EncodeReport) Failed() bool {
	return len(r.Parts) == 0 && len(r.Diagnostics) > 0
}

// Encode writes frags to w as a user-data message, using a zero
// [Encoder].
func Encode(w io.Writer, frags []Fragment) (*EncodeReport, error) {
	var e Encoder
	return e.Encode(w, frags)
}

// Encode writes frags to w as a user-data message.
//
// Parts appear in the order of frags. Fragments with an unregistered
// kind, a duplicate name, or a name that cannot appear in a header
// are left out and reported in the returned report's Diagnostics.
// The returned error is non-nil only if writing to w fails, or if
// nothing can be written: e.Boundary is set but invalid, or e.Strict
// is set and a fragment's kind is unregistered.
func (e *Encoder) Encode(w io.Writer, frags []Fragment) (*EncodeReport, error) {
	type resolved struct {
		Fragment
		contentType string
	}

	rep := &EncodeReport{}
	var (
		todo  []resolved
		names = mapset.New[string]()
	)
	if e.Boundary != "" && !ValidBoundary(e.Boundary) {
		return rep, fmt.Errorf("%w: %q", ErrInvalidBoundary, e.Boundary)
	}
	for _, f := range frags {
		if err := checkName(f.Name); err != nil {
			rep.Diagnostics = append(rep.Diagnostics, diag(InvalidFilename, f.Name, err))
			continue
		}
		ct, ok := e.Registry.Resolve(f.Kind)
		if !ok {
			d := diag(UnresolvedContentKind, f.Name, fmt.Errorf("kind %q is not registered", f.Kind))
			if e.Strict {
				rep.Diagnostics = append(rep.Diagnostics, d)
				return rep, fmt.Errorf("%w: %w", ErrStrict, d)
			}
			rep.Diagnostics = append(rep.Diagnostics, d)
			continue
		}
		if names.Has(f.Name) {
			rep.Diagnostics = append(rep.Diagnostics, diag(DuplicateFilename, f.Name, errors.New("name already used by an earlier fragment")))
			continue
		}
		names.Add(f.Name)
		todo = append(todo, resolved{f, ct})
	}

	rep.Boundary = e.Boundary
	if rep.Boundary == "" {
		rep.Boundary = NewBoundary()
	}

	out := w
	var zw *gzip.Writer
	if e.Gzip {
		zw = gzip.NewWriter(w)
		out = zw
	}

	var enc fragments.Encoder
	flush := func() error {
		_, err := out.Write(enc.Out)
		enc.Reset()
		return err
	}

	enc.Header("Content-Type", "multipart/mixed; boundary="+fragments.Quote(rep.Boundary))
	enc.Header("MIME-Version", "1.0")
	enc.Blank()
	if err := flush(); err != nil {
		return rep, err
	}

	for _, f := range todo {
		enc.Delimiter(rep.Boundary)
		EncodePart(f.Fragment, f.contentType).appendTo(&enc)
		enc.Blank()
		if err := flush(); err != nil {
			return rep, fmt.Errorf("writing part %q: %w", f.Name, err)
		}
		rep.Parts = append(rep.Parts, f.Name)
	}

	enc.Terminator(rep.Boundary)
	enc.Blank()
	if err := flush(); err != nil {
		return rep, err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// checkName reports whether name can be declared in a part header
// and recovered intact by a decoder.
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("empty filename")
	case strings.ContainsAny(name, "\r\n"):
		return errors.New("filename contains a line break")
	}
	return nil
}

// EncodeDir loads refs from src and writes them to w as a user-data
// message. Fragments that cannot be loaded are reported as
// [SourceReadFailure] diagnostics ahead of any encode diagnostics.
func (e *Encoder) EncodeDir(ctx context.Context, w io.Writer, src Source, refs []Ref) (*EncodeReport, error) {
	if e.Strict {
		// Fail before touching the sources.
		for _, ref := range refs {
			if _, ok := e.Registry.Resolve(ref.Kind); !ok {
				d := diag(UnresolvedContentKind, ref.Path, fmt.Errorf("kind %q is not registered", ref.Kind))
				return &EncodeReport{Diagnostics: []Diagnostic{d}}, fmt.Errorf("%w: %w", ErrStrict, d)
			}
		}
	}
	frags, loadDiags := LoadAll(ctx, src, refs)
	if err := ctx.Err(); err != nil {
		return &EncodeReport{Diagnostics: loadDiags}, err
	}
	rep, err := e.Encode(w, frags)
	rep.Diagnostics = append(loadDiags, rep.Diagnostics...)
	return rep, err
}
