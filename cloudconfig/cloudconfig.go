// Package cloudconfig models the subset of cloud-init's cloud-config
// document that describes software installation, and merges the
// cloud-config parts of a user-data message into one install plan.
package cloudconfig

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the first line of every cloud-config document.
const Header = "#cloud-config"

// Config is a cloud-config document, restricted to the modules that
// install packages, run commands and write files.
type Config struct {
	PackageUpdate  *bool       `yaml:"package_update,omitempty"`
	PackageUpgrade *bool       `yaml:"package_upgrade,omitempty"`
	Packages       []string    `yaml:"packages,omitempty"`
	RunCmd         []string    `yaml:"runcmd,omitempty"`
	WriteFiles     []WriteFile `yaml:"write_files,omitempty"`
}

// WriteFile is one entry of the write_files module.
type WriteFile struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
	Permissions string `yaml:"permissions,omitempty"`
	Encoding    string `yaml:"encoding,omitempty"`
	Append      bool   `yaml:"append,omitempty"`
}

// ErrNotMapping is returned by Parse for documents whose top level
// is not a YAML mapping.
var ErrNotMapping = errors.New("cloud-config document is not a YAML mapping")

// Parse parses a cloud-config document.
//
// Parsing is lenient in the way cloud-init is: unknown keys are
// ignored, as are list entries of a shape this package does not
// model, such as a package pinned with a [name, version] pair. An
// empty document parses to an empty Config.
func Parse(bs []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, err
	}
	ret := &Config{}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return ret, nil
	}
	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]
		var err error
		switch key {
		case "package_update":
			ret.PackageUpdate, err = parseBool(val)
		case "package_upgrade":
			ret.PackageUpgrade, err = parseBool(val)
		case "packages":
			ret.Packages = scalars(val)
		case "runcmd":
			ret.RunCmd = scalars(val)
		case "write_files":
			ret.WriteFiles, err = writeFiles(val)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", val.Line, key, err)
		}
	}
	return ret, nil
}

func parseBool(n *yaml.Node) (*bool, error) {
	var b bool
	if err := n.Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// scalars returns the scalar entries of a sequence node.
func scalars(n *yaml.Node) []string {
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	var ret []string
	for _, c := range n.Content {
		if c.Kind == yaml.ScalarNode {
			ret = append(ret, c.Value)
		}
	}
	return ret
}

func writeFiles(n *yaml.Node) ([]WriteFile, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, nil
	}
	var ret []WriteFile
	for _, c := range n.Content {
		if c.Kind != yaml.MappingNode {
			continue
		}
		var wf WriteFile
		if err := c.Decode(&wf); err != nil {
			return nil, err
		}
		if wf.Path == "" {
			continue
		}
		ret = append(ret, wf)
	}
	return ret, nil
}

// Render returns c as a cloud-config document, including the
// #cloud-config header line.
func (c *Config) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Header + "\n")
	if c.empty() {
		return buf.Bytes(), nil
	}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) empty() bool {
	return c.PackageUpdate == nil && c.PackageUpgrade == nil &&
		len(c.Packages) == 0 && len(c.RunCmd) == 0 && len(c.WriteFiles) == 0
}

// IsCloudConfig reports whether body starts with the #cloud-config
// header line.
func IsCloudConfig(body []byte) bool {
	line, _, _ := strings.Cut(string(body), "\n")
	return strings.TrimRight(line, " \t\r") == Header
}
