package cron

import (
	"path/filepath"
	"sync"

	"github.com/clawdbot/clawdbot/internal/store"
)

// fileVersion is the on-disk envelope version for jobs.json.
const fileVersion = 1

type document struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Store owns the persisted jobs.json file (plus its .bak copy) under
// <state>/cron/. It holds no scheduling logic of its own; Scheduler wraps
// it with the run loop and mutating API.
type Store struct {
	mu   sync.Mutex
	path string
	jobs map[string]*Job
}

// NewStore loads (or initializes) the cron job store at stateDir/cron/jobs.json.
func NewStore(stateDir string) *Store {
	s := &Store{
		path: filepath.Join(stateDir, "cron", "jobs.json"),
		jobs: make(map[string]*Job),
	}
	var doc document
	store.ReadJSONOrEmpty(s.path, &doc)
	for i := range doc.Jobs {
		j := doc.Jobs[i]
		s.jobs[j.ID] = &j
	}
	return s
}

// Get returns a copy of the job with id, if present.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// List returns copies of every job, optionally including disabled ones.
func (s *Store) List(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !includeDisabled && !j.Enabled {
			continue
		}
		out = append(out, *j)
	}
	return out
}

// Put inserts or replaces a job and persists the store.
func (s *Store) Put(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := j
	s.jobs[j.ID] = &cp
	s.persistLocked()
}

// Delete removes a job by id and persists the store.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.persistLocked()
	return true
}

// MutateState applies fn to the job's State under the store lock and
// persists the result. Used for the CAS-style runningAtMs transitions.
func (s *Store) MutateState(id string, fn func(*State) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	if !fn(&j.State) {
		return false
	}
	s.persistLocked()
	return true
}

func (s *Store) persistLocked() {
	doc := document{Version: fileVersion}
	for _, j := range s.jobs {
		doc.Jobs = append(doc.Jobs, *j)
	}
	_ = store.WriteJSONAtomic(s.path, doc)
}
