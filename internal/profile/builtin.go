package profile

import (
	"embed"
	"path"
	"sort"
	"strings"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns a fresh copy of the built-in profile called name.
func Builtin(name string) (*Profile, bool) {
	data, err := builtinFS.ReadFile(path.Join("builtin", strings.ToLower(strings.TrimSpace(name))+".yaml"))
	if err != nil {
		return nil, false
	}
	p, err := Parse(data)
	if err != nil {
		return nil, false
	}
	return p, true
}

// Names lists the built-in profiles in alphabetical order.
func Names() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
