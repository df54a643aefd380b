// package fragments provides low-level encoding and decoding helpers
// to construct and parse cloud-init user-data MIME messages.
//
// The provided encoder and decoder are very low level, and do not
// encode any cloud-init semantics. The encoder writes header,
// delimiter and base64 body lines verbatim; the decoder classifies
// input lines against the three line shapes the format uses
// (delimiter, terminator and header block end) and leaves their
// interpretation to the caller.
//
// You should not need to use this package at all, unless you are
// producing or consuming user-data in some way that
// [userdata.Encoder] and [userdata.Decode] do not cover.
package fragments
