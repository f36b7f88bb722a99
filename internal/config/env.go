package config

import (
	"os"
	"strings"
)

// ApplyEnvOverrides applies the three env-var overrides in a fixed order:
// context, then endpoints, then nodes. Absent/empty variables are no-ops;
// ApplyEnvOverrides is therefore idempotent for a fixed environment.
func ApplyEnvOverrides(pf *ProfileFile) {
	if pf.Contexts == nil {
		pf.Contexts = make(map[string]*Context)
	}

	if ctx := os.Getenv(EnvContext); ctx != "" {
		pf.Context = ctx
	}

	if endpointsCSV := os.Getenv(EnvEndpoints); endpointsCSV != "" {
		endpoints := splitTrimNonEmpty(endpointsCSV)
		if len(endpoints) > 0 {
			name := pf.Context
			if name == "" {
				name = "env"
				pf.Context = name
			}
			ctx := pf.Contexts[name]
			if ctx == nil {
				ctx = &Context{}
				pf.Contexts[name] = ctx
			}
			ctx.Endpoints = endpoints
		}
	}

	if nodesCSV := os.Getenv(EnvNodes); nodesCSV != "" {
		nodes := splitTrimNonEmpty(nodesCSV)
		if len(nodes) > 0 && pf.Context != "" {
			ctx := pf.Contexts[pf.Context]
			if ctx == nil {
				ctx = &Context{}
				pf.Contexts[pf.Context] = ctx
			}
			ctx.Nodes = nodes
		}
	}
}

// LoadWithEnv loads the profile file (explicit path, or the env/default
// precedence when path is empty) and applies the env overrides in one
// call.
func LoadWithEnv(path string) (*ProfileFile, error) {
	var (
		pf  *ProfileFile
		err error
	)
	if path != "" {
		pf, err = LoadFromPath(path)
	} else {
		pf, err = LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	ApplyEnvOverrides(pf)
	return pf, nil
}

func splitTrimNonEmpty(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
