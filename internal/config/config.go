// Package config loads the tool configuration file that names the
// fragments to assemble into user-data, and locates the per-user
// directories the CLI reads and writes by default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danderson/userdata"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// CloudInit is the tool name under which user-data parts are listed.
const CloudInit = "cloud_init"

// File is the content of a configuration file.
type File struct {
	// Root is the fragment root directory. Relative roots are
	// resolved against the directory holding the file.
	Root string `yaml:"root" toml:"root"`
	// Output is the default message destination, resolved like
	// Root.
	Output string `yaml:"output" toml:"output"`
	Gzip   bool   `yaml:"gzip" toml:"gzip"`
	Strict bool   `yaml:"strict" toml:"strict"`
	// Kinds adds or overrides content kinds, mapping each kind to
	// its Content-Type.
	Kinds map[string]string `yaml:"kinds" toml:"kinds"`
	// Tools lists the parts of each tool, as "<path>:<kind>"
	// references.
	Tools []Tool `yaml:"tools" toml:"tools"`
}

// Tool is one entry of the tools list.
type Tool struct {
	CloudInit []string `yaml:"cloud_init" toml:"cloud_init"`
}

// Load reads the configuration file at path. The format is chosen by
// extension: .yml or .yaml for YAML, .toml for TOML.
func Load(path string) (*File, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ret File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(bs, &ret)
	case ".toml":
		err = toml.Unmarshal(bs, &ret)
	default:
		return nil, fmt.Errorf("config %s: unknown format %q, want .yml, .yaml or .toml", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	ret.Root = resolve(dir, ret.Root)
	ret.Output = resolve(dir, ret.Output)
	return &ret, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Refs returns the parsed cloud_init part references of every tools
// entry, in file order.
func (f *File) Refs() ([]userdata.Ref, error) {
	var ret []userdata.Ref
	for _, t := range f.Tools {
		for _, s := range t.CloudInit {
			ref, err := userdata.ParseRef(s)
			if err != nil {
				return nil, err
			}
			ret = append(ret, ref)
		}
	}
	return ret, nil
}

// Registry returns base extended with f's kinds.
func (f *File) Registry(base *userdata.Registry) *userdata.Registry {
	if len(f.Kinds) == 0 {
		return base
	}
	extra := make(map[userdata.Kind]string, len(f.Kinds))
	for k, v := range f.Kinds {
		extra[userdata.Kind(k)] = v
	}
	return base.With(extra)
}
