package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LoadDailyMemory reads memory/YYYY-MM-DD.md for today and yesterday
// (relative to now) and assembles a combined "Daily Memory" context block.
// Returns "" if both files are empty or absent.
func LoadDailyMemory(workspaceDir string, now time.Time) string {
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	var sections []string
	for _, day := range []string{yesterday, today} {
		path := filepath.Join(workspaceDir, "memory", day+".md")
		data, err := os.ReadFile(path)
		if err != nil || len(strings.TrimSpace(string(data))) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", day, strings.TrimSpace(string(data))))
	}

	if len(sections) == 0 {
		return ""
	}
	return "# Daily Memory\n\n" + strings.Join(sections, "\n\n")
}
