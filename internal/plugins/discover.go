package plugins

import (
	"os"
	"path/filepath"
	"strings"
)

// DiscoverBundlePaths finds candidate JS plugin bundle files from explicit
// configured paths plus the workspace's plugins/ directory.
func DiscoverBundlePaths(explicitPaths []string, workspaceDir string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, p)
	}

	for _, p := range explicitPaths {
		add(p)
	}

	pluginsDir := filepath.Join(workspaceDir, "plugins")
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".js") {
			continue
		}
		add(filepath.Join(pluginsDir, e.Name()))
	}
	return out
}
