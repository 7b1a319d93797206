package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileTool writes content to a file inside the agent's workspace.
type WriteFileTool struct {
	workspace      string
	restrict       bool
	deniedPrefixes []string // path prefixes to deny access to (e.g. .clawdbot)
}

// DenyPaths adds path prefixes that the write tool must reject.
func (t *WriteFileTool) DenyPaths(prefixes ...string) {
	t.deniedPrefixes = append(t.deniedPrefixes, prefixes...)
}

// NewWriteFileTool creates the "write" tool rooted at workspace. When
// restrict is true, resolved paths escaping workspace are rejected.
func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, restrict: restrict}
}

func (t *WriteFileTool) Name() string        { return "write" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating directories as needed" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
			"deliver": map[string]interface{}{
				"type":        "boolean",
				"description": "If true, deliver this file to the user as an attachment (image, document, etc.)",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	deliver, _ := args["deliver"].(bool)
	if path == "" {
		return ErrorResult("path is required")
	}

	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := checkDeniedPath(resolved, t.workspace, t.deniedPrefixes); err != nil {
		return ErrorResult(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create directory: %v", err))
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	result := SilentResult(fmt.Sprintf("File written: %s (%d bytes)", path, len(content)))
	if deliver {
		result.Media = []string{resolved}
	}
	return result
}

// resolvePath joins path onto workspace and, when restrict is true, rejects
// any result that escapes the workspace root ("../" traversal or an
// absolute path outside it). The check is lexical; symlinks are not resolved.
func resolvePath(path, workspace string, restrict bool) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(workspace, path))
	}
	if restrict {
		root := filepath.Clean(workspace)
		rel, err := filepath.Rel(root, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes workspace", path)
		}
	}
	return resolved, nil
}

// checkDeniedPath rejects resolved paths under any configured deny prefix,
// relative to workspace (e.g. the agent's own ".clawdbot" state directory).
func checkDeniedPath(resolved, workspace string, deniedPrefixes []string) error {
	rel, err := filepath.Rel(workspace, resolved)
	if err != nil {
		rel = resolved
	}
	rel = filepath.ToSlash(rel)
	for _, prefix := range deniedPrefixes {
		prefix = filepath.ToSlash(prefix)
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return fmt.Errorf("path %q is denied", rel)
		}
	}
	return nil
}
