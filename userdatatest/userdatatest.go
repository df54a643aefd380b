// Package userdatatest provides helpers to build and check user-data
// fixtures in tests.
package userdatatest

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danderson/userdata"
	"github.com/google/go-cmp/cmp"
)

// Boundary is a fixed boundary for tests that compare encoded
// output byte for byte.
const Boundary = "===============1234567890123456789=="

// Tree writes files, keyed by slash-separated relative path, under a
// new directory named root inside t.TempDir, and returns that
// directory's path.
func Tree(t testing.TB, root string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), root)
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			t.Fatalf("creating fixture dir for %q: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatalf("writing fixture %q: %v", name, err)
		}
	}
	return dir
}

// ReadTree returns the content of every regular file under root,
// keyed by slash-separated relative path.
func ReadTree(t testing.TB, root string) map[string]string {
	t.Helper()
	ret := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		bs, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		ret[filepath.ToSlash(rel)] = string(bs)
		return nil
	})
	if err != nil {
		t.Fatalf("reading tree %s: %v", root, err)
	}
	return ret
}

// MustEncode encodes frags with enc, failing the test on error.
func MustEncode(t testing.TB, enc *userdata.Encoder, frags []userdata.Fragment) ([]byte, *userdata.EncodeReport) {
	t.Helper()
	var buf bytes.Buffer
	rep, err := enc.Encode(&buf, frags)
	if err != nil {
		t.Fatalf("Encode() got err: %v", err)
	}
	return buf.Bytes(), rep
}

// MustDecode decodes msg, failing the test on error.
func MustDecode(t testing.TB, msg []byte) *userdata.DecodeReport {
	t.Helper()
	rep, err := userdata.Decode(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("Decode() got err: %v", err)
	}
	return rep
}

// CheckRoundTrip encodes frags with enc, decodes the result, and
// checks that the recovered fragments match frags by name, kind and
// content, with no diagnostics either way.
func CheckRoundTrip(t testing.TB, enc *userdata.Encoder, frags []userdata.Fragment) {
	t.Helper()
	msg, erep := MustEncode(t, enc, frags)
	if len(erep.Diagnostics) != 0 {
		t.Fatalf("Encode() got diagnostics: %v", erep.Diagnostics)
	}
	drep := MustDecode(t, msg)
	if len(drep.Diagnostics) != 0 {
		t.Fatalf("Decode() got diagnostics: %v", drep.Diagnostics)
	}
	if got, want := Fragments(drep.Fragments), frags; !cmp.Equal(got, want, cmp.Comparer(bytes.Equal)) {
		t.Fatalf("round trip mismatch (-got+want):\n%s", cmp.Diff(got, want, cmp.Comparer(bytes.Equal)))
	}
}

// Fragments converts restored fragments back to fragments, for
// comparison with encoder input.
func Fragments(rs []userdata.Restored) []userdata.Fragment {
	var ret []userdata.Fragment
	for _, r := range rs {
		ret = append(ret, userdata.Fragment{Name: r.Name, Kind: r.Kind, Body: r.Body})
	}
	return ret
}

// Problems returns the Problem of each diagnostic, in order.
func Problems(ds []userdata.Diagnostic) []userdata.Problem {
	var ret []userdata.Problem
	for _, d := range ds {
		ret = append(ret, d.Problem)
	}
	return ret
}

// Message assembles a user-data message by hand from raw part
// texts, for tests that need malformed input. Each part is the text
// that follows its delimiter line, and should end with a newline.
func Message(boundary string, parts ...string) []byte {
	var b strings.Builder
	b.WriteString(`Content-Type: multipart/mixed; boundary="` + boundary + "\"\n")
	b.WriteString("MIME-Version: 1.0\n\n")
	for _, p := range parts {
		b.WriteString("--" + boundary + "\n")
		b.WriteString(p)
	}
	b.WriteString("--" + boundary + "--\n\n")
	return []byte(b.String())
}

// Store is an in-memory userdata.Sink. A nil Fail func never fails.
type Store struct {
	Files map[string][]byte
	// Fail, if non-nil, is consulted before each store, and its
	// error returned in place of storing.
	Fail func(name string) error
}

// Store implements userdata.Sink.
func (s *Store) Store(ctx context.Context, name string, body []byte) error {
	if s.Fail != nil {
		if err := s.Fail(name); err != nil {
			return err
		}
	}
	if s.Files == nil {
		s.Files = map[string][]byte{}
	}
	s.Files[name] = bytes.Clone(body)
	return nil
}
