// Package env composes the environment handed to the gateway subprocess:
// the supervisor's own environment as the base, with operator-supplied
// overrides applied on top and ${VAR} references expanded.
package env

import (
	"os"
	"strings"
)

type Vars map[string]string

// Env builds a child environment from the OS environment plus overrides.
type Env struct {
	overrides Vars
	base      Vars // cached snapshot of the OS environment
}

func New() *Env {
	return &Env{overrides: make(Vars)}
}

// FromOS snapshots the current process environment as the base. Merge calls
// it lazily when it has not been called.
func (e *Env) FromOS() {
	base := make(Vars)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// Set adds an override K=V applied over the base environment.
func (e *Env) Set(k, v string) {
	if e.overrides == nil {
		e.overrides = make(Vars)
	}
	e.overrides[k] = v
}

// Unset removes a previously set override.
func (e *Env) Unset(k string) {
	delete(e.overrides, k)
}

// Merge returns the final child environment in "K=V" form: the base
// environment, then Set overrides, then extra entries, each later layer
// winning. Values may reference other variables as ${VAR}; references are
// expanded once against the composed map, without recursion.
func (e *Env) Merge(extra []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Vars, len(e.base)+len(e.overrides)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.overrides {
		if k != "" {
			m[k] = v
		}
	}
	for _, kv := range extra {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			// malformed entry, skip
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func expand(s string, m Vars) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
