// Package userdata encodes and decodes cloud-init user-data MIME
// messages.
//
// A user-data message bundles provisioning fragments, such as shell
// scripts and cloud-config documents, into one multipart/mixed MIME
// message, in the exact shape cloud-init's own make-mime tool
// produces:
//
//	Content-Type: multipart/mixed; boundary="===============1234567890123456789=="
//	MIME-Version: 1.0
//
//	--===============1234567890123456789==
//	Content-Type: text/jinja2; charset="utf8"
//	MIME-Version: 1.0
//	Content-Transfer-Encoding: base64
//	Content-Disposition: attachment; filename="cloud_init/install.yml"
//
//	ZWNobyBoaQ==
//
//	--===============1234567890123456789==--
//
// Each fragment has a [Kind], which a [Registry] maps to the part's
// Content-Type. Fragment bodies are always base64 encoded, wrapped at
// 76 characters per CRLF-terminated line, so arbitrary bytes
// round-trip exactly and no body line can be mistaken for a
// delimiter.
//
// [Encoder.Encode] writes a message from in-memory [Fragment]s, and
// [Encoder.EncodeDir] loads them from a [Source] first. [Decode]
// recovers the fragments of a message, and [DecodeDir] also writes
// them out under a directory.
//
// # Diagnostics
//
// Problems with individual fragments never abort an encode or
// decode. Fragments with an unregistered kind, unreadable sources,
// names that cannot be declared in a header, malformed part headers
// or bad base64 are left out, and reported as [Diagnostic]s in the
// returned [EncodeReport] or [DecodeReport]. Only an unparseable
// envelope ([ErrMalformedEnvelope]), I/O errors on the output, an
// invalid boundary override ([ErrInvalidBoundary]) and unregistered
// kinds in [Encoder.Strict] mode are fatal. Callers should surface
// diagnostics, but treat an operation as failed only when the
// report's Failed method says so.
//
// # Concurrency
//
// The package holds no mutable global state. Registries are
// immutable, and an Encoder or Decoder may serve concurrent calls as
// long as each call has its own output.
package userdata
