package userdata

import (
	"errors"
	"fmt"
)

// A Problem classifies a non-fatal, per-fragment failure.
type Problem int

const (
	// UnresolvedContentKind means the fragment's kind is not in the
	// Registry. The fragment is left out of the message.
	UnresolvedContentKind Problem = iota + 1
	// SourceReadFailure means the fragment's source could not be
	// read.
	SourceReadFailure
	// PartHeaderUnparseable means a part's header block is malformed
	// or carries no usable Content-Disposition filename.
	PartHeaderUnparseable
	// Base64DecodeFailure means a part's body is not valid base64.
	Base64DecodeFailure
	// DestinationWriteFailure means a decoded fragment could not be
	// stored.
	DestinationWriteFailure
	// NonConformantEnvelope means the message's second line is not
	// "MIME-Version: 1.0". Decoding continues normally.
	NonConformantEnvelope
	// DuplicateFilename means a declared filename appeared more than
	// once. Only the first occurrence is kept.
	DuplicateFilename
	// MissingTerminator means the message ended without a closing
	// "--boundary--" line.
	MissingTerminator
	// InvalidFilename means a fragment's name is empty or contains a
	// line break, so it cannot be declared in a part header. The
	// fragment is left out of the message.
	InvalidFilename
)

func (p Problem) String() string {
	switch p {
	case UnresolvedContentKind:
		return "unresolved content kind"
	case SourceReadFailure:
		return "source read failure"
	case PartHeaderUnparseable:
		return "unparseable part header"
	case Base64DecodeFailure:
		return "base64 decode failure"
	case DestinationWriteFailure:
		return "destination write failure"
	case NonConformantEnvelope:
		return "non-conformant envelope"
	case DuplicateFilename:
		return "duplicate filename"
	case MissingTerminator:
		return "missing terminator"
	case InvalidFilename:
		return "invalid filename"
	default:
		return fmt.Sprintf("Problem(%d)", int(p))
	}
}

// Diagnostic is a report of a non-fatal problem encountered while
// encoding or decoding one fragment. Encoding and decoding carry on
// past diagnostics.
type Diagnostic struct {
	// Problem is the class of failure.
	Problem Problem
	// Name is the fragment's declared filename or source path, if
	// known.
	Name string
	// Line is the message line at which the affected part starts,
	// for diagnostics produced while decoding. Zero otherwise.
	Line int
	// Err is the underlying failure, if any.
	Err error
}

func (d Diagnostic) Error() string {
	var where string
	switch {
	case d.Name != "" && d.Line > 0:
		where = fmt.Sprintf(" %q (line %d)", d.Name, d.Line)
	case d.Name != "":
		where = fmt.Sprintf(" %q", d.Name)
	case d.Line > 0:
		where = fmt.Sprintf(" at line %d", d.Line)
	}
	if d.Err == nil {
		return d.Problem.String() + where
	}
	return fmt.Sprintf("%s%s: %s", d.Problem, where, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// ErrMalformedEnvelope is matched by errors returned from decoding a
// message whose top-level headers cannot be parsed.
var ErrMalformedEnvelope = errors.New("malformed user-data envelope")

// EnvelopeError is the error returned when a message's top-level
// Content-Type line is missing or does not carry a boundary. Without
// a boundary the message cannot be split into parts, so no fragments
// are recovered.
type EnvelopeError struct {
	// Reason is an explanation of what is wrong with the envelope.
	Reason error
}

func (e EnvelopeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedEnvelope, e.Reason)
}

func (e EnvelopeError) Unwrap() error {
	return e.Reason
}

func (e EnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

// ErrStrict is matched by the error an [Encoder] in strict mode
// returns when a fragment's kind is not registered.
var ErrStrict = errors.New("unregistered content kind in strict mode")

// ErrInvalidBoundary is matched by the error an [Encoder] returns
// when its Boundary override does not satisfy [ValidBoundary].
var ErrInvalidBoundary = errors.New("invalid multipart boundary")

func diag(p Problem, name string, err error) Diagnostic {
	return Diagnostic{Problem: p, Name: name, Err: err}
}
