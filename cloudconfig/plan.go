package cloudconfig

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/creachadair/mds/mapset"
	"github.com/danderson/userdata"
)

// templateHeader is the first line of a jinja2 part.
const templateHeader = "## template: jinja"

// A Plan is the install plan described by the cloud-config parts of
// one user-data message.
type Plan struct {
	// Config is the merge of every contributing part.
	Config Config
	// Sources are the names of the contributing parts, in merge
	// order.
	Sources []string
	// Skipped lists the parts that did not contribute.
	Skipped []Skipped
}

// Skipped is a part left out of a [Plan].
type Skipped struct {
	Name   string
	Reason string
}

func (s Skipped) String() string {
	return fmt.Sprintf("%s: %s", s.Name, s.Reason)
}

// Merge builds the install plan for frags, in order.
//
// cloud-config parts contribute directly. jinja2 parts contribute if,
// once their template header line is removed, what remains is a
// cloud-config document. Template expressions are not expanded, so a
// template that is not valid YAML before rendering is skipped.
func Merge(frags []userdata.Restored) *Plan {
	ret := &Plan{}
	seen := mapset.New[string]()
	for _, f := range frags {
		body, reason := configBody(f)
		if reason != "" {
			ret.Skipped = append(ret.Skipped, Skipped{f.Name, reason})
			continue
		}
		cfg, err := Parse(body)
		if err != nil {
			ret.Skipped = append(ret.Skipped, Skipped{f.Name, err.Error()})
			continue
		}
		ret.Config.merge(cfg, seen)
		ret.Sources = append(ret.Sources, f.Name)
	}
	return ret
}

// configBody returns the cloud-config document carried by f, or a
// reason why f does not carry one.
func configBody(f userdata.Restored) ([]byte, string) {
	switch f.Kind {
	case "cloud-config":
		return f.Body, ""
	case "jinja2":
		body := stripTemplateHeader(f.Body)
		if !IsCloudConfig(body) {
			return nil, "template does not produce a cloud-config document"
		}
		return body, ""
	case "":
		return nil, fmt.Sprintf("unregistered content type %q", f.ContentType)
	default:
		return nil, fmt.Sprintf("%s part is not a cloud-config document", f.Kind)
	}
}

func stripTemplateHeader(body []byte) []byte {
	first, rest, _ := bytes.Cut(body, []byte("\n"))
	if !strings.EqualFold(strings.TrimSpace(string(first)), templateHeader) {
		return body
	}
	return rest
}

// merge folds o into c. seen tracks the packages already in c.
func (c *Config) merge(o *Config, seen mapset.Set[string]) {
	c.PackageUpdate = or(c.PackageUpdate, o.PackageUpdate)
	c.PackageUpgrade = or(c.PackageUpgrade, o.PackageUpgrade)
	for _, p := range o.Packages {
		if seen.Has(p) {
			continue
		}
		seen.Add(p)
		c.Packages = append(c.Packages, p)
	}
	c.RunCmd = append(c.RunCmd, o.RunCmd...)
	for _, wf := range o.WriteFiles {
		replaced := false
		for i := range c.WriteFiles {
			if c.WriteFiles[i].Path == wf.Path {
				c.WriteFiles[i] = wf
				replaced = true
				break
			}
		}
		if !replaced {
			c.WriteFiles = append(c.WriteFiles, wf)
		}
	}
}

// or combines two optional booleans. The result is unset only if
// both are.
func or(a, b *bool) *bool {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	v := *a || *b
	return &v
}
