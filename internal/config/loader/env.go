package loader

import (
	"os"
	"sort"
	"strings"
)

// Env collects overrides from environment variables. A variable named
// PREFIX_SECTION_KEY maps to the dotted path "section.key".
type Env struct {
	prefix string
	lookup func() []string
}

// NewEnv returns an environment source for variables starting with
// prefix, which should include the trailing underscore.
func NewEnv(prefix string) *Env {
	return &Env{prefix: prefix, lookup: os.Environ}
}

// NewEnvFrom reads overrides from a fixed list of KEY=VALUE entries.
func NewEnvFrom(prefix string, environ []string) *Env {
	return &Env{prefix: prefix, lookup: func() []string { return environ }}
}

// Override is one environment setting.
type Override struct {
	Var   string
	Path  string
	Value string
}

// Overrides returns the prefixed variables as dotted paths, sorted by path.
func (e *Env) Overrides() []Override {
	var out []Override
	for _, kv := range e.lookup() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, e.prefix) {
			continue
		}
		out = append(out, Override{Var: name, Path: e.envToPath(name), Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// envToPath converts TESSERA_BUFFER_CHUNK_SIZE to buffer.chunk_size.
func (e *Env) envToPath(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, e.prefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok {
		return section
	}
	return section + "." + key
}
