package container

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOptions mirrors RuntimeOptions with yaml tags; kept separate from
// RuntimeOptions itself so the wire/struct-literal API isn't coupled to
// the on-disk key names.
type fileOptions struct {
	Hostname string `yaml:"hostname"`
	User     string `yaml:"user"`
	Group    string `yaml:"group"`
	Cwd      string `yaml:"cwd"`
}

// LoadRuntimeOptions reads a YAML file at path and returns the
// RuntimeOptions it describes, applying the same defaults as
// DefaultRuntimeOptions for any field the file omits.
func LoadRuntimeOptions(path string) (RuntimeOptions, error) {
	defaults := DefaultRuntimeOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeOptions{}, fmt.Errorf("container: read %s: %w", path, err)
	}

	fo := fileOptions{User: defaults.User, Group: defaults.Group, Cwd: defaults.Cwd}
	if err := yaml.Unmarshal(data, &fo); err != nil {
		return RuntimeOptions{}, fmt.Errorf("container: parse %s: %w", path, err)
	}

	return RuntimeOptions{
		Hostname: fo.Hostname,
		User:     fo.User,
		Group:    fo.Group,
		Cwd:      fo.Cwd,
	}, nil
}
