package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditFileTool implements the "edit" tool: an exact-match string replacement
// guarded against ambiguous matches, mirroring the read/write pairing's
// workspace-rooted path policy.
type EditFileTool struct {
	workspace string
	restrict  bool
}

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{workspace: workspace, restrict: restrict}
}

func (t *EditFileTool) Name() string        { return "edit" }
func (t *EditFileTool) Description() string { return "Replace an exact string match within a file" }
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":        map[string]interface{}{"type": "string"},
			"old_string":  map[string]interface{}{"type": "string"},
			"new_string":  map[string]interface{}{"type": "string"},
			"replace_all": map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (t *EditFileTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if path == "" || oldString == "" {
		return ErrorResult("path and old_string are required")
	}
	if oldString == newString {
		return ErrorResult("old_string and new_string must differ")
	}

	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}
	content := string(data)

	count := strings.Count(content, oldString)
	if count == 0 {
		return ErrorResult("old_string not found in file")
	}
	if count > 1 && !replaceAll {
		return ErrorResult(fmt.Sprintf("old_string is not unique (%d matches); pass replace_all or include more context", count))
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldString, newString)
	} else {
		updated = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(resolved, []byte(updated), 0644); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return SilentResult(fmt.Sprintf("Edited %s (%d replacement(s))", path, count))
}
