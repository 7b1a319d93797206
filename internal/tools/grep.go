package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// GrepTool implements the "grep" tool: a regex content search under a
// directory, grounded on Go's standard regexp engine rather than shelling
// out (no dependency on the host having grep/ripgrep installed).
type GrepTool struct {
	workspace string
	restrict  bool
}

func NewGrepTool(workspace string, restrict bool) *GrepTool {
	return &GrepTool{workspace: workspace, restrict: restrict}
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents for a regular expression" }
func (t *GrepTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string"},
			"path":    map[string]interface{}{"type": "string"},
			"glob":    map[string]interface{}{"type": "string", "description": "only search files matching this glob"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid pattern: %v", err))
	}
	root, _ := args["path"].(string)
	if root == "" {
		root = "."
	}
	glob, _ := args["glob"].(string)

	resolvedRoot, err := resolvePath(root, t.workspace, t.restrict)
	if err != nil {
		return ErrorResult(err.Error())
	}

	var hits []string
	const maxHits = 200
	err = filepath.WalkDir(resolvedRoot, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || len(hits) >= maxHits {
			return nil
		}
		if glob != "" {
			if ok, _ := filepath.Match(glob, filepath.Base(p)); !ok {
				return nil
			}
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				rel, _ := filepath.Rel(t.workspace, p)
				hits = append(hits, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
				if len(hits) >= maxHits {
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("grep failed: %v", err))
	}
	sort.Strings(hits)
	if len(hits) == 0 {
		return NewResult("(no matches)")
	}
	return NewResult(strings.Join(hits, "\n"))
}
