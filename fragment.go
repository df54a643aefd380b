package userdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/creachadair/taskgroup"
)

// A Fragment is one named unit of provisioning content.
type Fragment struct {
	// Name is the fragment's declared filename: a slash-separated
	// relative path, unique within a message.
	Name string
	// Kind is the fragment's content kind.
	Kind Kind
	// Body is the fragment's raw content.
	Body []byte
}

// A Ref names a fragment to load from a [Source].
type Ref struct {
	// Path is the fragment's path relative to the source root.
	Path string
	// Kind is the fragment's content kind.
	Kind Kind
}

// ParseRef parses a "<path>:<kind>" reference, such as
// "install.yml:jinja2".
func ParseRef(s string) (Ref, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return Ref{}, fmt.Errorf("part reference %q is not of the form <path>:<kind>", s)
	}
	ret := Ref{Path: s[:i], Kind: Kind(s[i+1:])}
	if ret.Path == "" {
		return Ref{}, fmt.Errorf("part reference %q has an empty path", s)
	}
	if ret.Kind == "" {
		return Ref{}, fmt.Errorf("part reference %q has an empty kind", s)
	}
	return ret, nil
}

func (r Ref) String() string {
	return r.Path + ":" + string(r.Kind)
}

// A Source provides fragment content.
type Source interface {
	// Load returns the fragment named by ref.
	Load(ctx context.Context, ref Ref) (Fragment, error)
}

// DirSource is a [Source] that reads fragments from files under a
// root directory.
//
// Fragment names are the ref path prefixed by the last element of
// Root, so that "install.yml" under "/home/me/.config/cloud_init"
// is declared as "cloud_init/install.yml" regardless of where Root
// lives on the encoding machine.
type DirSource struct {
	Root string
}

// Load implements [Source].
func (s DirSource) Load(ctx context.Context, ref Ref) (Fragment, error) {
	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}
	if !filepath.IsLocal(filepath.FromSlash(ref.Path)) {
		return Fragment{}, fmt.Errorf("path %q is not within %s", ref.Path, s.Root)
	}
	bs, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(ref.Path)))
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{
		Name: DeclaredName(s.Root, ref.Path),
		Kind: ref.Kind,
		Body: bs,
	}, nil
}

// DeclaredName returns the filename declared for the fragment at
// relPath under root: the last element of root, then relPath,
// slash-separated.
func DeclaredName(root, relPath string) string {
	name := path.Clean(filepath.ToSlash(relPath))
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	base := filepath.Base(abs)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return name
	}
	return filepath.ToSlash(base) + "/" + name
}

// loadConcurrency bounds the number of fragments LoadAll reads at
// once.
const loadConcurrency = 8

// LoadAll loads every ref from src. Loads run concurrently, but the
// returned fragments are in the same order as refs. Refs that fail
// to load are reported as [SourceReadFailure] diagnostics and left
// out.
func LoadAll(ctx context.Context, src Source, refs []Ref) ([]Fragment, []Diagnostic) {
	frags := make([]Fragment, len(refs))
	errs := make([]error, len(refs))
	g, start := taskgroup.New(nil).Limit(loadConcurrency)
	for i, ref := range refs {
		start(func() error {
			frags[i], errs[i] = src.Load(ctx, ref)
			return nil
		})
	}
	g.Wait()

	var (
		ret   []Fragment
		diags []Diagnostic
	)
	for i, err := range errs {
		if err != nil {
			diags = append(diags, diag(SourceReadFailure, refs[i].Path, err))
			continue
		}
		ret = append(ret, frags[i])
	}
	return ret, diags
}

// A Sink stores restored fragments.
type Sink interface {
	// Store persists body under the declared filename name.
	Store(ctx context.Context, name string, body []byte) error
}

// DirSink is a [Sink] that writes fragments as files under a root
// directory, creating intermediate directories as needed.
type DirSink struct {
	Root string
	// Perm is the permission of created files. If zero, 0644 is
	// used.
	Perm fs.FileMode
}

// errUnsafeName is returned for declared filenames that would be
// written outside of the sink's root.
var errUnsafeName = errors.New("filename escapes the destination directory")

// Store implements [Sink].
func (s DirSink) Store(ctx context.Context, name string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return errUnsafeName
	}
	dst := filepath.Join(s.Root, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0644
	}
	return os.WriteFile(dst, body, perm)
}
