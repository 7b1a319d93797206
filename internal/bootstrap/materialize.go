package bootstrap

import (
	"os"
	"path/filepath"
)

// firstRunFiles are the files whose prior absence marks a workspace as
// brand-new: AGENTS.md, IDENTITY.md, USER.md, SOUL.md,
// TOOLS.md, HEARTBEAT.md.
var firstRunFiles = []string{AgentsFile, IdentityFile, UserFile, SoulFile, ToolsFile, HeartbeatFile}

var defaultContent = map[string]string{
	AgentsFile: "# AGENTS.md\n\nOperating instructions for this workspace. Edit this file to steer how the agent behaves here.\n",
	SoulFile:   "# SOUL.md\n\nPersona, tone, and boundaries. Leave blank to use the default assistant voice.\n",
	ToolsFile:  "# TOOLS.md\n\nLocal notes about tools available in this workspace.\n",
	IdentityFile: "# IDENTITY.md\n\nAgent name, emoji, and vibe. Edit freely.\n",
	UserFile:     "# USER.md\n\nWhat the agent knows about you. Filled in over time.\n",
	HeartbeatFile: "# HEARTBEAT.md\n\nTasks to check on every heartbeat tick.\n",
	BootstrapFile: "# BOOTSTRAP.md\n\nThis is the agent's first run in this workspace.\n" +
		"Introduce yourself, explain what you can do, and ask who you're talking to.\n" +
		"This file is read once; feel free to delete it afterward.\n",
}

// EnsureWorkspace creates dir if missing and materializes any first-run
// bootstrap file that does not already exist. isNew reports whether none of
// firstRunFiles existed before this call, in which case BOOTSTRAP.md is also
// written.
func EnsureWorkspace(dir string) (isNew bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}

	isNew = true
	for _, name := range firstRunFiles {
		if _, statErr := os.Stat(filepath.Join(dir, name)); statErr == nil {
			isNew = false
			break
		}
	}

	toWrite := firstRunFiles
	if isNew {
		toWrite = append(append([]string{}, firstRunFiles...), BootstrapFile)
	}

	for _, name := range toWrite {
		path := filepath.Join(dir, name)
		if _, statErr := os.Stat(path); statErr == nil {
			continue
		}
		content := defaultContent[name]
		if writeErr := os.WriteFile(path, []byte(content), 0o644); writeErr != nil {
			return isNew, writeErr
		}
	}

	return isNew, nil
}

// ExpandWorkspace expands a leading "~" to the user's home directory.
func ExpandWorkspace(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
