package engine

import (
	"strings"
)

// Config is an ordered list of engine configuration directives. Engines read
// their config line by line, so order is kept exactly as added.
type Config []string

// Add appends directives.
func (c *Config) Add(lines ...string) {
	*c = append(*c, lines...)
}

// Lines returns a copy of the directives.
func (c Config) Lines() []string {
	return append([]string(nil), c...)
}

// Text renders the config as a newline-terminated file body.
func (c Config) Text() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, "\n") + "\n"
}

// Value returns the value of the first "key = value" directive with the
// given key.
func (c Config) Value(key string) (string, bool) {
	for _, line := range c {
		k, v, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Args is an ordered mapping of command-line flag to value.
type Args struct {
	keys   []string
	values map[string]string
}

// NewArgs returns an empty argument map.
func NewArgs() *Args {
	return &Args{values: make(map[string]string)}
}

// Set sets the value of a flag, keeping its original position if it is
// already present. An empty value emits the flag on its own.
func (a *Args) Set(flag, value string) {
	if _, ok := a.values[flag]; !ok {
		a.keys = append(a.keys, flag)
	}
	a.values[flag] = value
}

func (a *Args) Get(flag string) (string, bool) {
	v, ok := a.values[flag]
	return v, ok
}

// Delete removes a flag.
func (a *Args) Delete(flag string) {
	if _, ok := a.values[flag]; !ok {
		return
	}
	delete(a.values, flag)
	for i, k := range a.keys {
		if k == flag {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the flags in insertion order.
func (a *Args) Keys() []string {
	return append([]string(nil), a.keys...)
}

// List flattens the arguments for exec.
func (a *Args) List() []string {
	out := make([]string, 0, 2*len(a.keys))
	for _, k := range a.keys {
		out = append(out, k)
		if v := a.values[k]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (a *Args) String() string {
	return strings.Join(a.List(), " ")
}
