package agent

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillFrontmatter is the optional `clawd` metadata block a skill's
// SKILL.md may carry.
type SkillFrontmatter struct {
	Clawd struct {
		Always     bool     `yaml:"always"`
		SkillKey   string   `yaml:"skillKey"`
		PrimaryEnv string   `yaml:"primaryEnv"`
		OS         []string `yaml:"os"`
		Requires   struct {
			Bins []string `yaml:"bins"`
			Env  []string `yaml:"env"`
		} `yaml:"requires"`
	} `yaml:"clawd"`
}

// Skill is one discovered, parsed skill directory.
type Skill struct {
	Name         string
	Location     string // path to SKILL.md
	Frontmatter  SkillFrontmatter
	PromptBody   string
}

// DiscoverSkills unions skills from bundled, extra, managed, and workspace
// directories, in that priority order — later sources override earlier ones
// by name.
func DiscoverSkills(bundledDir string, extraDirs []string, managedDir, workspaceDir string) ([]Skill, error) {
	byName := make(map[string]Skill)

	dirs := append([]string{bundledDir}, extraDirs...)
	dirs = append(dirs, managedDir, filepath.Join(workspaceDir, "skills"))

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			skillPath := filepath.Join(dir, e.Name(), "SKILL.md")
			data, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			skill := parseSkillFile(e.Name(), skillPath, data)
			byName[skill.Name] = skill
		}
	}

	out := make([]Skill, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	return out, nil
}

func parseSkillFile(name, path string, data []byte) Skill {
	s := Skill{Name: name, Location: path}

	content := string(data)
	if strings.HasPrefix(content, "---\n") {
		if end := strings.Index(content[4:], "\n---"); end >= 0 {
			fm := content[4 : 4+end]
			_ = yaml.Unmarshal([]byte(fm), &s.Frontmatter)
			rest := content[4+end:]
			if i := strings.Index(rest, "\n"); i >= 0 {
				rest = rest[i+1:]
			}
			s.PromptBody = strings.TrimSpace(rest)
			return s
		}
	}
	s.PromptBody = strings.TrimSpace(content)
	return s
}

// SkillConfig is the per-skill activation/credentials input from
// config.SkillEntry, narrowed to what filtering and env-override need.
type SkillConfig struct {
	Enabled *bool
	APIKey  string
	Env     map[string]string
}

// FilterSkills keeps a skill iff it's not disabled, its os constraint (if
// any) matches runtime.GOOS, and it is either always-on or every required
// binary/env is satisfiable.
func FilterSkills(skills []Skill, configs map[string]SkillConfig) []Skill {
	var out []Skill
	for _, s := range skills {
		cfg := configs[s.Name]
		if cfg.Enabled != nil && !*cfg.Enabled {
			continue
		}
		if len(s.Frontmatter.Clawd.OS) > 0 && !containsStr(s.Frontmatter.Clawd.OS, runtime.GOOS) {
			continue
		}
		if s.Frontmatter.Clawd.Always {
			out = append(out, s)
			continue
		}
		if requirementsSatisfied(s, cfg) {
			out = append(out, s)
		}
	}
	return out
}

func requirementsSatisfied(s Skill, cfg SkillConfig) bool {
	for _, bin := range s.Frontmatter.Clawd.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	for _, envVar := range s.Frontmatter.Clawd.Requires.Env {
		if os.Getenv(envVar) != "" {
			continue
		}
		if _, ok := cfg.Env[envVar]; ok {
			continue
		}
		if envVar == s.Frontmatter.Clawd.PrimaryEnv && cfg.APIKey != "" {
			continue
		}
		return false
	}
	return true
}

func containsStr(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
