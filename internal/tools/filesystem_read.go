package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReadFileTool reads a file (optionally a line range) from the workspace.
type ReadFileTool struct {
	workspace string
	restrict  bool
}

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, restrict: restrict}
}

func (t *ReadFileTool) Name() string        { return "read" }
func (t *ReadFileTool) Description() string { return "Read a file's contents, optionally a line range" }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":   map[string]interface{}{"type": "string"},
			"offset": map[string]interface{}{"type": "integer", "description": "1-indexed starting line"},
			"limit":  map[string]interface{}{"type": "integer", "description": "max lines to return"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	f, err := os.Open(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}
	defer f.Close()

	offset := intArg(args, "offset", 1)
	if offset < 1 {
		offset = 1
	}
	limit := intArg(args, "limit", 2000)

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo, emitted := 0, 0
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if emitted >= limit {
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, scanner.Text())
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return ErrorResult(fmt.Sprintf("error reading file: %v", err))
	}
	if emitted == 0 {
		return NewResult("(file is empty or offset is past end of file)")
	}
	return NewResult(b.String())
}

// ListFilesTool implements the "ls" tool: a shallow directory listing.
type ListFilesTool struct {
	workspace string
	restrict  bool
}

func NewListFilesTool(workspace string, restrict bool) *ListFilesTool {
	return &ListFilesTool{workspace: workspace, restrict: restrict}
}

func (t *ListFilesTool) Name() string        { return "ls" }
func (t *ListFilesTool) Description() string { return "List files and directories at a path" }
func (t *ListFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
	}
}

func (t *ListFilesTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list directory: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return NewResult("(empty directory)")
	}
	return NewResult(strings.Join(names, "\n"))
}

// FindFilesTool implements the "find" tool: filename glob search under a root.
type FindFilesTool struct {
	workspace string
	restrict  bool
}

func NewFindFilesTool(workspace string, restrict bool) *FindFilesTool {
	return &FindFilesTool{workspace: workspace, restrict: restrict}
}

func (t *FindFilesTool) Name() string        { return "find" }
func (t *FindFilesTool) Description() string { return "Find files by glob pattern under a directory" }
func (t *FindFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "glob, e.g. **/*.go"},
			"path":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"pattern"},
	}
}

func (t *FindFilesTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	resolvedRoot, err := resolvePath(root, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	var matches []string
	err = filepath.WalkDir(resolvedRoot, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // best-effort: skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(resolvedRoot, p)
		if relErr != nil {
			return nil
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(p)); ok {
			matches = append(matches, rel)
			return nil
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("find failed: %v", err))
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		return NewResult("(no matches)")
	}
	return NewResult(strings.Join(matches, "\n"))
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
