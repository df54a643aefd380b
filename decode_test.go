package userdata_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danderson/userdata"
	"github.com/danderson/userdata/userdatatest"
	"github.com/google/go-cmp/cmp"
)

const (
	goodPart = "Content-Type: text/x-shellscript; charset=\"utf8\"\n" +
		"MIME-Version: 1.0\n" +
		"Content-Transfer-Encoding: base64\n" +
		"Content-Disposition: attachment; filename=\"a/install.sh\"\n" +
		"\n" +
		"ZWNobyBoaQ==\r\n" +
		"\n"
	// No blank line between the headers and the body.
	unterminatedHeaderPart = "Content-Type: text/jinja2; charset=\"utf8\"\n" +
		"Content-Disposition: attachment; filename=\"a/broken.yml\"\n" +
		"ZWNobyBoaQ==\r\n" +
		"\n"
)

func TestDecodeMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no content type", "MIME-Version: 1.0\n\n--x\n"},
		{"wrong subtype", "Content-Type: multipart/alternative; boundary=\"x\"\nMIME-Version: 1.0\n"},
		{"unquoted boundary", "Content-Type: multipart/mixed; boundary=x\nMIME-Version: 1.0\n"},
		{"empty boundary", "Content-Type: multipart/mixed; boundary=\"\"\nMIME-Version: 1.0\n"},
		{"unterminated boundary", "Content-Type: multipart/mixed; boundary=\"x\nMIME-Version: 1.0\n"},
		{"not gzip", "\x1f\x8bgarbage"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := userdata.Decode(strings.NewReader(tc.in))
			if !errors.Is(err, userdata.ErrMalformedEnvelope) {
				t.Fatalf("Decode() got err %v, want ErrMalformedEnvelope", err)
			}
			var ee userdata.EnvelopeError
			if !errors.As(err, &ee) {
				t.Errorf("Decode() error %T is not an EnvelopeError", err)
			}
			if rep != nil {
				t.Errorf("Decode() returned fragments %v alongside an envelope error", rep.Fragments)
			}
		})
	}
}

func TestDecodeUnparseableHeader(t *testing.T) {
	msg := userdatatest.Message(userdatatest.Boundary, goodPart, unterminatedHeaderPart)
	rep := userdatatest.MustDecode(t, msg)

	want := []userdata.Restored{{
		Name:        "a/install.sh",
		Kind:        "x-shellscript",
		ContentType: `text/x-shellscript; charset="utf8"`,
		Body:        []byte("echo hi"),
	}}
	if diff := cmp.Diff(rep.Fragments, want); diff != "" {
		t.Errorf("wrong fragments (-got+want):\n%s", diff)
	}
	if diff := cmp.Diff(userdatatest.Problems(rep.Diagnostics), []userdata.Problem{userdata.PartHeaderUnparseable}); diff != "" {
		t.Fatalf("wrong diagnostics (-got+want):\n%s", diff)
	}
	if got, want := rep.Diagnostics[0].Line, 12; got != want {
		t.Errorf("diagnostic at line %d, want %d", got, want)
	}
	if rep.Failed() {
		t.Error("Failed() = true for a partially successful decode")
	}
}

func TestDecodePartProblems(t *testing.T) {
	tests := []struct {
		name string
		part string
		want userdata.Problem
	}{
		{
			"no disposition",
			"Content-Type: text/jinja2\n\nZWNobyBoaQ==\r\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"no filename",
			"Content-Disposition: attachment\n\nZWNobyBoaQ==\r\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"empty filename",
			"Content-Disposition: attachment; filename=\"\"\n\nZWNobyBoaQ==\r\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"bad disposition params",
			"Content-Disposition: attachment; filename=\"open\n\nZWNobyBoaQ==\r\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"continuation without header",
			" folded\nContent-Disposition: attachment; filename=\"x\"\n\nZWNobyBoaQ==\r\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"quoted-printable",
			"Content-Transfer-Encoding: quoted-printable\nContent-Disposition: attachment; filename=\"x\"\n\necho hi\n\n",
			userdata.PartHeaderUnparseable,
		},
		{
			"bad base64",
			"Content-Disposition: attachment; filename=\"x\"\n\nnot*base64!\r\n\n",
			userdata.Base64DecodeFailure,
		},
		{
			"truncated base64",
			"Content-Disposition: attachment; filename=\"x\"\n\nZWNobyBoaQ\r\n\n",
			userdata.Base64DecodeFailure,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := userdatatest.Message(userdatatest.Boundary, goodPart, tc.part, goodPart)
			rep := userdatatest.MustDecode(t, msg)
			// The first goodPart decodes, the second is a duplicate.
			wantProblems := []userdata.Problem{tc.want, userdata.DuplicateFilename}
			if diff := cmp.Diff(userdatatest.Problems(rep.Diagnostics), wantProblems); diff != "" {
				t.Errorf("wrong diagnostics (-got+want):\n%s", diff)
			}
			if len(rep.Fragments) != 1 || rep.Fragments[0].Name != "a/install.sh" {
				t.Errorf("got fragments %v, want only a/install.sh", rep.Fragments)
			}
		})
	}
}

func TestDecodeFoldedHeader(t *testing.T) {
	part := "Content-Type: text/jinja2;\n charset=\"utf8\"\n" +
		"Content-Disposition: attachment;\n\tfilename=\"a/folded.yml\"\n" +
		"\n" +
		"ZWNobyBoaQ==\r\n\n"
	rep := userdatatest.MustDecode(t, userdatatest.Message(userdatatest.Boundary, part))
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("Decode() got diagnostics: %v", rep.Diagnostics)
	}
	if len(rep.Fragments) != 1 {
		t.Fatalf("Decode() got %d fragments, want 1", len(rep.Fragments))
	}
	got := rep.Fragments[0]
	if got.Name != "a/folded.yml" || got.Kind != "jinja2" || string(got.Body) != "echo hi" {
		t.Errorf("Decode() got %+v, want a/folded.yml jinja2 \"echo hi\"", got)
	}
}

func TestDecodeEnvelopeIrregularities(t *testing.T) {
	b := userdatatest.Boundary
	tests := []struct {
		name  string
		in    string
		names []string
		want  []userdata.Problem
	}{
		{
			"no MIME-Version",
			"Content-Type: multipart/mixed; boundary=\"" + b + "\"\n" +
				"--" + b + "\n" + goodPart + "--" + b + "--\n",
			[]string{"a/install.sh"},
			[]userdata.Problem{userdata.NonConformantEnvelope},
		},
		{
			"only envelope line",
			"Content-Type: multipart/mixed; boundary=\"" + b + "\"\n",
			nil,
			[]userdata.Problem{userdata.NonConformantEnvelope, userdata.MissingTerminator},
		},
		{
			"no terminator",
			"Content-Type: multipart/mixed; boundary=\"" + b + "\"\nMIME-Version: 1.0\n\n" +
				"--" + b + "\n" + goodPart,
			[]string{"a/install.sh"},
			[]userdata.Problem{userdata.MissingTerminator},
		},
		{
			"crlf everywhere",
			strings.ReplaceAll(string(userdatatest.Message(b, goodPart)), "\n", "\r\n"),
			[]string{"a/install.sh"},
			nil,
		},
		{
			"preamble and epilogue",
			"Content-Type: multipart/mixed; boundary=\"" + b + "\"\nMIME-Version: 1.0\n\n" +
				"This is a multi-part message in MIME format.\n" +
				"--" + b + "\n" + goodPart + "--" + b + "--\n" +
				"trailing junk\n",
			[]string{"a/install.sh"},
			nil,
		},
		{
			"no parts",
			"Content-Type: multipart/mixed; boundary=\"" + b + "\"\nMIME-Version: 1.0\n\n--" + b + "--\n\n",
			nil,
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := userdata.Decode(strings.NewReader(tc.in))
			if err != nil {
				t.Fatalf("Decode() got err: %v", err)
			}
			var names []string
			for _, f := range rep.Fragments {
				names = append(names, f.Name)
			}
			if diff := cmp.Diff(names, tc.names); diff != "" {
				t.Errorf("wrong fragments (-got+want):\n%s", diff)
			}
			if diff := cmp.Diff(userdatatest.Problems(rep.Diagnostics), tc.want); diff != "" {
				t.Errorf("wrong diagnostics (-got+want):\n%s", diff)
			}
			if rep.Boundary != b {
				t.Errorf("Boundary = %q, want %q", rep.Boundary, b)
			}
		})
	}
}

func TestDecodeUnknownContentType(t *testing.T) {
	part := "Content-Type: text/plain\nContent-Disposition: attachment; filename=\"x\"\n\nZWNobyBoaQ==\r\n\n"
	rep := userdatatest.MustDecode(t, userdatatest.Message(userdatatest.Boundary, part))
	want := []userdata.Restored{{Name: "x", ContentType: "text/plain", Body: []byte("echo hi")}}
	if diff := cmp.Diff(rep.Fragments, want); diff != "" {
		t.Errorf("wrong fragments (-got+want):\n%s", diff)
	}
}

func TestDecodeDir(t *testing.T) {
	frags := []userdata.Fragment{
		{Name: "cloud_init/install.yml", Kind: "jinja2", Body: []byte("packages: [git]\n")},
		{Name: "cloud_init/scripts/deep/run.sh", Kind: "x-shellscript", Body: []byte("#!/bin/sh\necho run\n")},
		{Name: "top.txt", Kind: "cloud-boothook", Body: []byte{}},
	}
	msg, _ := userdatatest.MustEncode(t, &userdata.Encoder{}, frags)

	dst := t.TempDir()
	rep, err := userdata.DecodeDir(context.Background(), bytes.NewReader(msg), dst)
	if err != nil {
		t.Fatalf("DecodeDir() got err: %v", err)
	}
	if len(rep.Diagnostics) != 0 {
		t.Errorf("DecodeDir() got diagnostics: %v", rep.Diagnostics)
	}
	want := map[string]string{
		"cloud_init/install.yml":         "packages: [git]\n",
		"cloud_init/scripts/deep/run.sh": "#!/bin/sh\necho run\n",
		"top.txt":                        "",
	}
	if diff := cmp.Diff(userdatatest.ReadTree(t, dst), want); diff != "" {
		t.Errorf("wrong restored tree (-got+want):\n%s", diff)
	}
	if diff := cmp.Diff(userdatatest.Fragments(rep.Fragments), frags); diff != "" {
		t.Errorf("wrong returned fragments (-got+want):\n%s", diff)
	}
}

func TestDecodeDirUnsafeNames(t *testing.T) {
	mk := func(name string) string {
		return "Content-Disposition: attachment; filename=\"" + name + "\"\n\nZWNobyBoaQ==\r\n\n"
	}
	msg := userdatatest.Message(userdatatest.Boundary,
		mk("../escape.sh"),
		mk("/etc/passwd"),
		mk("ok/file.sh"),
		mk("ok/../../escape2.sh"),
	)
	parent := t.TempDir()
	dst := filepath.Join(parent, "out")
	rep, err := userdata.DecodeDir(context.Background(), bytes.NewReader(msg), dst)
	if err != nil {
		t.Fatalf("DecodeDir() got err: %v", err)
	}
	wantProblems := []userdata.Problem{
		userdata.DestinationWriteFailure,
		userdata.DestinationWriteFailure,
		userdata.DestinationWriteFailure,
	}
	if diff := cmp.Diff(userdatatest.Problems(rep.Diagnostics), wantProblems); diff != "" {
		t.Errorf("wrong diagnostics (-got+want):\n%s", diff)
	}
	if diff := cmp.Diff(userdatatest.ReadTree(t, parent), map[string]string{"out/ok/file.sh": "echo hi"}); diff != "" {
		t.Errorf("files written outside the destination (-got+want):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.sh")); err == nil {
		t.Error("escape.sh was written outside the destination")
	}
}

func TestRestoreSinkFailure(t *testing.T) {
	frags := []userdata.Restored{
		{Name: "a", Body: []byte("1")},
		{Name: "b", Body: []byte("2")},
		{Name: "c", Body: []byte("3")},
	}
	sink := &userdatatest.Store{
		Fail: func(name string) error {
			if name == "b" {
				return errors.New("read-only filesystem")
			}
			return nil
		},
	}
	ok, diags, err := userdata.Restore(context.Background(), sink, frags)
	if err != nil {
		t.Fatalf("Restore() got err: %v", err)
	}
	if diff := cmp.Diff(ok, []userdata.Restored{frags[0], frags[2]}); diff != "" {
		t.Errorf("wrong restored fragments (-got+want):\n%s", diff)
	}
	if len(diags) != 1 || diags[0].Problem != userdata.DestinationWriteFailure || diags[0].Name != "b" {
		t.Errorf("Restore() got diagnostics %v, want one DestinationWriteFailure for b", diags)
	}
	want := map[string][]byte{"a": []byte("1"), "c": []byte("3")}
	if diff := cmp.Diff(sink.Files, want); diff != "" {
		t.Errorf("wrong stored files (-got+want):\n%s", diff)
	}
}

func TestRestoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sink userdatatest.Store
	_, _, err := userdata.Restore(ctx, &sink, []userdata.Restored{{Name: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Restore() got err %v, want context.Canceled", err)
	}
	if len(sink.Files) != 0 {
		t.Errorf("Restore() stored %v after cancellation", sink.Files)
	}
}

func TestDecodeReportFailed(t *testing.T) {
	tests := []struct {
		name string
		rep  userdata.DecodeReport
		want bool
	}{
		{"empty", userdata.DecodeReport{}, false},
		{"only envelope note", userdata.DecodeReport{Diagnostics: []userdata.Diagnostic{{Problem: userdata.NonConformantEnvelope}}}, false},
		{"nothing recovered", userdata.DecodeReport{Diagnostics: []userdata.Diagnostic{{Problem: userdata.Base64DecodeFailure}}}, true},
		{"partial", userdata.DecodeReport{
			Fragments:   []userdata.Restored{{Name: "a"}},
			Diagnostics: []userdata.Diagnostic{{Problem: userdata.Base64DecodeFailure}},
		}, false},
	}
	for _, tc := range tests {
		if got := tc.rep.Failed(); got != tc.want {
			t.Errorf("%s: Failed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDiagnosticError(t *testing.T) {
	tests := []struct {
		d    userdata.Diagnostic
		want string
	}{
		{
			userdata.Diagnostic{Problem: userdata.SourceReadFailure, Name: "a.sh", Err: errors.New("boom")},
			`source read failure "a.sh": boom`,
		},
		{
			userdata.Diagnostic{Problem: userdata.PartHeaderUnparseable, Line: 7, Err: errors.New("bad")},
			`unparseable part header at line 7: bad`,
		},
		{
			userdata.Diagnostic{Problem: userdata.DuplicateFilename, Name: "x", Line: 3},
			`duplicate filename "x" (line 3)`,
		},
	}
	for _, tc := range tests {
		if got := tc.d.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
