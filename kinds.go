package userdata

import (
	"maps"
	"slices"
	"strings"
)

// A Kind is a short content-kind token such as "jinja2" or
// "x-shellscript", naming how cloud-init should handle a fragment.
type Kind string

// Registry maps content kinds to the MIME Content-Type written for
// them. A Registry is immutable once constructed and safe for
// concurrent use.
//
// A nil *Registry behaves like [DefaultRegistry].
type Registry struct {
	subtypes map[Kind]string
	// kinds is the reverse of subtypes, keyed by full content type
	// and by bare lowercased media type.
	kinds map[string]Kind
}

// DefaultRegistry holds the content kinds understood by cloud-init.
var DefaultRegistry = NewRegistry(map[Kind]string{
	"jinja2":                     `text/jinja2; charset="utf8"`,
	"cloud-boothook":             `text/cloud-boothook; charset="utf8"`,
	"cloud-config":               `text/cloud-config; charset="utf8"`,
	"cloud-config-archive":       `text/cloud-config-archive; charset="utf8"`,
	"cloud-config-jsonp":         `text/cloud-config-jsonp; charset="utf8"`,
	"part-handler":               `text/part-handler; charset="utf8"`,
	"upstart-job":                `text/upstart-job; charset="utf8"`,
	"x-include-once-url":         `text/x-include-once-url; charset="utf8"`,
	"x-include-url":              `text/x-include-url; charset="utf8"`,
	"x-shellscript":              `text/x-shellscript; charset="utf8"`,
	"x-shellscript-per-boot":     `text/x-shellscript-per-boot; charset="utf8"`,
	"x-shellscript-per-instance": `text/x-shellscript-per-instance; charset="utf8"`,
	"x-shellscript-per-once":     `text/x-shellscript-per-once; charset="utf8"`,
})

// NewRegistry returns a Registry holding the given kind to
// Content-Type mappings. The map is copied.
func NewRegistry(subtypes map[Kind]string) *Registry {
	r := &Registry{
		subtypes: maps.Clone(subtypes),
		kinds:    make(map[string]Kind, 2*len(subtypes)),
	}
	if r.subtypes == nil {
		r.subtypes = map[Kind]string{}
	}
	// Iterate in sorted order so that the reverse mapping is
	// deterministic when two kinds share a media type.
	for _, k := range slices.Sorted(maps.Keys(r.subtypes)) {
		ct := r.subtypes[k]
		if _, ok := r.kinds[ct]; !ok {
			r.kinds[ct] = k
		}
		mt := mediaType(ct)
		if _, ok := r.kinds[mt]; !ok {
			r.kinds[mt] = k
		}
	}
	return r
}

// With returns a new Registry with the mappings of r, plus extra.
// Entries in extra replace existing mappings for the same kind.
func (r *Registry) With(extra map[Kind]string) *Registry {
	m := maps.Clone(r.get().subtypes)
	maps.Copy(m, extra)
	return NewRegistry(m)
}

// Resolve returns the Content-Type for kind. Lookup is exact and
// case-sensitive.
func (r *Registry) Resolve(kind Kind) (string, bool) {
	ct, ok := r.get().subtypes[kind]
	return ct, ok
}

// KindOf returns the kind whose Content-Type matches contentType. If
// there is no exact match, the bare media types are compared
// case-insensitively, ignoring parameters.
func (r *Registry) KindOf(contentType string) (Kind, bool) {
	r = r.get()
	if k, ok := r.kinds[contentType]; ok {
		return k, true
	}
	k, ok := r.kinds[mediaType(contentType)]
	return k, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	return slices.Sorted(maps.Keys(r.get().subtypes))
}

func (r *Registry) get() *Registry {
	if r == nil {
		return DefaultRegistry
	}
	return r
}

func mediaType(ct string) string {
	mt, _, _ := strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
