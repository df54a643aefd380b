package config

import (
	"os"
	"path/filepath"
)

// appName is the directory name used under each per-user base
// directory.
const appName = "chiron"

// Home locates the per-user directories of one tool.
type Home struct {
	// Dir is the user's home directory.
	Dir string
}

// UserHome returns the Home of the current user.
func UserHome() (Home, error) {
	d, err := os.UserHomeDir()
	if err != nil {
		return Home{}, err
	}
	return Home{Dir: d}, nil
}

// Data returns the directory holding tool's source fragments.
func (h Home) Data(tool string) string {
	return filepath.Join(h.Dir, ".local", "share", appName, tool)
}

// Cache returns the directory holding tool's generated output.
func (h Home) Cache(tool string) string {
	return filepath.Join(h.Dir, ".cache", appName, tool)
}

// Config returns the directory holding tool's configuration.
func (h Home) Config(tool string) string {
	return filepath.Join(h.Dir, ".config", appName, tool)
}

// UserData returns the default path of the assembled user-data
// message.
func (h Home) UserData() string {
	return filepath.Join(h.Cache(CloudInit), "user_data")
}

// DefaultFile returns the path of the default configuration file, the
// first of config.yml, config.yaml and config.toml that exists in the
// cloud_init config directory. If none exists, it returns "".
func (h Home) DefaultFile() string {
	dir := h.Config(CloudInit)
	for _, name := range []string{"config.yml", "config.yaml", "config.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
