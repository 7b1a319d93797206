package agent

import (
	"os"
	"sync"
)

// envGuardMu serializes the process environment mutation window around every
// Agent Runner invocation. Process environment is shared mutable state, so
// this must be a process-wide mutex, not per-runner, since os.Setenv affects
// every goroutine.
var envGuardMu sync.Mutex

// ApplySkillEnvOverrides pushes each skill's env entries (only where not
// already set) plus its apiKey under primaryEnv, and returns an undo
// closure that restores the pre-call snapshot. The caller MUST invoke undo
// on every exit path and MUST hold the returned lock
// release until undo runs — ApplySkillEnvOverrides itself acquires the
// guard and Undo releases it.
func ApplySkillEnvOverrides(skills []Skill, configs map[string]SkillConfig) (undo func()) {
	envGuardMu.Lock()

	type snapshotEntry struct {
		value   string
		existed bool
	}
	snapshot := make(map[string]snapshotEntry)

	setIfAbsent := func(key, value string) {
		if _, ok := snapshot[key]; !ok {
			prev, existed := os.LookupEnv(key)
			snapshot[key] = snapshotEntry{value: prev, existed: existed}
		}
		if _, alreadySet := os.LookupEnv(key); alreadySet {
			return
		}
		os.Setenv(key, value)
	}

	for _, s := range skills {
		cfg := configs[s.Name]
		for k, v := range cfg.Env {
			setIfAbsent(k, v)
		}
		if cfg.APIKey != "" && s.Frontmatter.Clawd.PrimaryEnv != "" {
			setIfAbsent(s.Frontmatter.Clawd.PrimaryEnv, cfg.APIKey)
		}
	}

	return func() {
		for key, entry := range snapshot {
			if entry.existed {
				os.Setenv(key, entry.value)
			} else {
				os.Unsetenv(key)
			}
		}
		envGuardMu.Unlock()
	}
}
