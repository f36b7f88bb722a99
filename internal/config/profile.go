// Package config handles the talosconfig connection-profile file
// (context -> endpoints/nodes/mTLS material), the env-variable override
// chain, and the NodeTarget type that attaches the x-talos-node gRPC
// metadata header to outgoing requests.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// Env var names, matching what talosctl deployments already use.
const (
	EnvProfilePath = "TALOSCONFIG"
	EnvContext     = "TALOS_CONTEXT"
	EnvEndpoints   = "TALOS_ENDPOINTS"
	EnvNodes       = "TALOS_NODES"
)

// Context is one named connection profile: the endpoints to dial, the
// default node targets, and optional inline mTLS material.
type Context struct {
	Endpoints []string `yaml:"endpoints"`
	Nodes     []string `yaml:"nodes,omitempty"`
	CA        string   `yaml:"ca,omitempty"`
	Crt       string   `yaml:"crt,omitempty"`
	Key       string   `yaml:"key,omitempty"`
}

// FirstEndpoint returns the first configured endpoint, if any.
func (c *Context) FirstEndpoint() string {
	if len(c.Endpoints) == 0 {
		return ""
	}
	return c.Endpoints[0]
}

// FirstNode returns the first configured node target, if any.
func (c *Context) FirstNode() string {
	if len(c.Nodes) == 0 {
		return ""
	}
	return c.Nodes[0]
}

// ProfileFile is the whole talosconfig document: an optional active
// context name plus a map of named contexts.
type ProfileFile struct {
	Context  string              `yaml:"context,omitempty"`
	Contexts map[string]*Context `yaml:"contexts"`
}

// defaultPath is ~/.talos/config, the path talosctl itself uses.
func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.NewConfigError("config.defaultPath", "could not determine home directory", err)
	}
	return filepath.Join(home, ".talos", "config"), nil
}

// ConfigPath resolves the profile path, honouring EnvProfilePath before
// falling back to the platform default.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvProfilePath); p != "" {
		return p, nil
	}
	return defaultPath()
}

// FromYAML parses a talosconfig document from raw YAML text.
func FromYAML(data []byte) (*ProfileFile, error) {
	var pf ProfileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errs.NewConfigError("config.FromYAML", "parsing profile YAML", err)
	}
	if pf.Contexts == nil {
		pf.Contexts = make(map[string]*Context)
	}
	return &pf, nil
}

// LoadFromPath reads and parses a talosconfig file at an explicit path.
func LoadFromPath(path string) (*ProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfigError("config.LoadFromPath", "reading profile file "+path, err)
	}
	return FromYAML(data)
}

// LoadDefault loads the profile file via ConfigPath()'s precedence. A
// missing file is not an error here: it yields an empty ProfileFile onto
// which environment overrides can still be applied.
func LoadDefault() (*ProfileFile, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfileFile{Contexts: make(map[string]*Context)}, nil
		}
		return nil, errs.NewConfigError("config.LoadDefault", "reading profile file "+path, err)
	}
	return FromYAML(data)
}

// ActiveContext returns the context named by pf.Context, or nil if unset
// or unknown.
func (pf *ProfileFile) ActiveContext() *Context {
	if pf.Context == "" {
		return nil
	}
	return pf.Contexts[pf.Context]
}

// ToYAML re-serialises the document; parsing its output yields the same
// contexts back.
func (pf *ProfileFile) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(pf)
	if err != nil {
		return nil, errs.NewConfigError("config.ToYAML", "serialising profile", err)
	}
	return data, nil
}
