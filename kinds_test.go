package userdata_test

import (
	"testing"

	"github.com/danderson/userdata"
	"github.com/google/go-cmp/cmp"
)

func TestRegistryResolve(t *testing.T) {
	tests := []struct {
		kind   userdata.Kind
		want   string
		wantOK bool
	}{
		{"jinja2", `text/jinja2; charset="utf8"`, true},
		{"cloud-config", `text/cloud-config; charset="utf8"`, true},
		{"x-shellscript-per-once", `text/x-shellscript-per-once; charset="utf8"`, true},
		{"Jinja2", "", false},
		{"jinja", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := userdata.DefaultRegistry.Resolve(tc.kind)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("Resolve(%q) got (%q, %v), want (%q, %v)", tc.kind, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestRegistryNil(t *testing.T) {
	var r *userdata.Registry
	if _, ok := r.Resolve("jinja2"); !ok {
		t.Error("nil Registry does not resolve jinja2")
	}
	if diff := cmp.Diff(r.Kinds(), userdata.DefaultRegistry.Kinds()); diff != "" {
		t.Errorf("nil Registry kinds differ from default (-got+want):\n%s", diff)
	}
}

func TestRegistryKindOf(t *testing.T) {
	tests := []struct {
		ct     string
		want   userdata.Kind
		wantOK bool
	}{
		{`text/jinja2; charset="utf8"`, "jinja2", true},
		{`text/jinja2`, "jinja2", true},
		{`TEXT/X-ShellScript; charset="us-ascii"`, "x-shellscript", true},
		{`text/plain`, "", false},
		{``, "", false},
	}
	for _, tc := range tests {
		got, ok := userdata.DefaultRegistry.KindOf(tc.ct)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("KindOf(%q) got (%q, %v), want (%q, %v)", tc.ct, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestRegistryWith(t *testing.T) {
	base := userdata.NewRegistry(map[userdata.Kind]string{
		"a": "text/a",
		"b": "text/b",
	})
	ext := base.With(map[userdata.Kind]string{
		"b": "text/bee",
		"c": "text/c",
	})

	if diff := cmp.Diff(base.Kinds(), []userdata.Kind{"a", "b"}); diff != "" {
		t.Errorf("With modified the original registry (-got+want):\n%s", diff)
	}
	if got, _ := base.Resolve("b"); got != "text/b" {
		t.Errorf("original Resolve(b) got %q, want text/b", got)
	}
	if diff := cmp.Diff(ext.Kinds(), []userdata.Kind{"a", "b", "c"}); diff != "" {
		t.Errorf("extended registry has wrong kinds (-got+want):\n%s", diff)
	}
	if got, _ := ext.Resolve("b"); got != "text/bee" {
		t.Errorf("extended Resolve(b) got %q, want text/bee", got)
	}
	if got, _ := ext.KindOf("text/bee"); got != "b" {
		t.Errorf("extended KindOf(text/bee) got %q, want b", got)
	}
}

func TestNewRegistryCopies(t *testing.T) {
	m := map[userdata.Kind]string{"a": "text/a"}
	r := userdata.NewRegistry(m)
	m["a"] = "text/changed"
	m["z"] = "text/z"
	if got, _ := r.Resolve("a"); got != "text/a" {
		t.Errorf("Resolve(a) got %q after mutating input map, want text/a", got)
	}
	if _, ok := r.Resolve("z"); ok {
		t.Error("Resolve(z) succeeded after mutating input map")
	}
}
