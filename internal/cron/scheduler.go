package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clawdbot/clawdbot/internal/tracing"
)

// Dispatcher is the narrow interface the scheduler needs from the rest of
// the gateway: a way to push systemEvent/agentTurn payloads at the main
// session, and a way to spawn an isolated Agent Runner invocation.
type Dispatcher interface {
	EnqueueMainSystemEvent(ctx context.Context, text string) error
	EnqueueMainAgentTurn(ctx context.Context, message string, wake WakeMode) error
	RunIsolated(ctx context.Context, payload Payload, timeout time.Duration) (summary string, err error)
	// PostToMain delivers a summary string into the main session, used by
	// isolated runs configured with isolation.postToMainPrefix.
	PostToMain(ctx context.Context, text string) error
}

// Clock is injected for deterministic tests.
type Clock func() time.Time

// Scheduler runs a single cooperative tick loop: one ticker wakes on the
// earliest enabled job's nextRunAtMs, and at most one instance of a given
// job is ever running.
type Scheduler struct {
	store      *Store
	dispatcher Dispatcher
	now        Clock
	events     func(Event)

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	runningMu sync.Mutex
	running   map[string]context.CancelFunc
}

// NewScheduler wires a Store to a Dispatcher. events may be nil.
func NewScheduler(st *Store, d Dispatcher, now Clock, events func(Event)) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if events == nil {
		events = func(Event) {}
	}
	return &Scheduler{
		store:      st,
		dispatcher: d,
		now:        now,
		events:     events,
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		running:    make(map[string]context.CancelFunc),
	}
}

// Start launches the tick loop goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the tick loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-s.wakeCh:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.fireDue(ctx)
	}
}

// nextWait computes how long to sleep until the earliest enabled job's
// nextRunAtMs, capped so the loop periodically re-checks even if nothing
// is scheduled (e.g. right after startup, before nextRunAtMs is seeded).
func (s *Scheduler) nextWait() time.Duration {
	const fallback = 30 * time.Second
	nowMs := s.now().UnixMilli()

	var earliest int64
	found := false
	for _, j := range s.store.List(true) {
		if !j.Enabled || j.State.NextRunAtMs == 0 {
			continue
		}
		if !found || j.State.NextRunAtMs < earliest {
			earliest = j.State.NextRunAtMs
			found = true
		}
	}
	if !found {
		return fallback
	}
	d := time.Duration(earliest-nowMs) * time.Millisecond
	if d < 0 {
		return 0
	}
	if d > fallback {
		return fallback
	}
	return d
}

func (s *Scheduler) fireDue(ctx context.Context) {
	nowMs := s.now().UnixMilli()
	for _, j := range s.store.List(true) {
		if !j.Enabled || j.State.NextRunAtMs == 0 || j.State.NextRunAtMs > nowMs {
			continue
		}
		s.tryRun(ctx, j.ID, "scheduled")
	}
}

// Run fires a job out-of-band. mode="force" respects single-flight: if the
// job is already running, the fire is skipped with reason=already-running
// (Open Questions, resolved this way).
func (s *Scheduler) Run(ctx context.Context, id, mode string) error {
	if _, exists := s.store.Get(id); !exists {
		return fmt.Errorf("cron: job %s not found", id)
	}
	ok := s.tryRun(ctx, id, "forced")
	if !ok {
		return fmt.Errorf("cron: job %s skipped (already-running)", id)
	}
	return nil
}

// tryRun performs the CAS on runningAtMs and, if acquired, executes the
// job's payload in its own goroutine. Returns false if the job was already
// running (single-flight) or does not exist.
func (s *Scheduler) tryRun(ctx context.Context, id, reason string) bool {
	ctx, span := tracing.StartSpan(ctx, "cron.fire",
		attribute.String("job_id", id), attribute.String("reason", reason))
	defer span.End()

	job, ok := s.store.Get(id)
	if !ok {
		return false
	}

	nowMs := s.now().UnixMilli()
	acquired := s.store.MutateState(id, func(st *State) bool {
		if st.RunningAtMs != 0 {
			return false
		}
		st.RunningAtMs = nowMs
		return true
	})
	if !acquired {
		slog.Info("cron: run skipped, already running", "jobId", id, "reason", reason)
		return false
	}

	s.events(Event{Action: EventStarted, JobID: id, RunAtMs: nowMs, Job: job})

	runCtx, cancel := context.WithCancel(ctx)
	s.runningMu.Lock()
	s.running[id] = cancel
	s.runningMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.runningMu.Lock()
			delete(s.running, id)
			s.runningMu.Unlock()
		}()
		s.execute(runCtx, job)
	}()

	return true
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	started := time.Now()
	var runErr error

	sched := job.Schedule.Normalize()
	payload := job.Payload.Normalize()
	target := job.SessionTarget
	if target == "" {
		target = DefaultSessionTarget(payload.Kind)
	}

	switch {
	case target == SessionTargetMain && payload.Kind == PayloadSystemEvent:
		runErr = s.dispatcher.EnqueueMainSystemEvent(ctx, payload.Text)

	case target == SessionTargetMain && payload.Kind == PayloadAgentTurn:
		runErr = s.dispatcher.EnqueueMainAgentTurn(ctx, payload.Message, job.WakeMode)

	case target == SessionTargetIsolated:
		timeout := time.Duration(payload.TimeoutSeconds) * time.Second
		var summary string
		summary, runErr = s.dispatcher.RunIsolated(ctx, payload, timeout)
		if runErr == nil && job.Isolation != nil && job.Isolation.PostToMainPrefix != "" && summary != "" {
			text := job.Isolation.PostToMainPrefix + " " + summary
			runErr = s.dispatcher.PostToMain(ctx, text)
		}

	default:
		runErr = fmt.Errorf("cron: unhandled sessionTarget/payload combination")
	}

	status := StatusOK
	errMsg := ""
	if runErr != nil {
		status = StatusError
		errMsg = runErr.Error()
		slog.Warn("cron: job failed", "jobId", job.ID, "error", runErr)
	}

	durationMs := time.Since(started).Milliseconds()
	nowMs := s.now().UnixMilli()
	nextRun, _ := ComputeNextRunAtMs(sched, nowMs)

	s.store.MutateState(job.ID, func(st *State) bool {
		st.RunningAtMs = 0
		st.LastRunAtMs = nowMs
		st.LastStatus = status
		st.LastError = errMsg
		st.LastDurationMs = durationMs
		st.NextRunAtMs = nextRun
		return true
	})

	updated, _ := s.store.Get(job.ID)
	s.events(Event{Action: EventFinished, JobID: job.ID, RunAtMs: nowMs, Job: updated})
	s.poke()
}

// poke nudges the tick loop to recompute its wait after a mutation.
func (s *Scheduler) poke() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// --- Mutating API: add/update/remove/status/list/wake ---

// Add normalizes, validates, defaults, and persists a new job, seeding its
// initial nextRunAtMs.
func (s *Scheduler) Add(j Job) (Job, error) {
	j.Schedule = j.Schedule.Normalize()
	if err := j.Schedule.Validate(); err != nil {
		return Job{}, err
	}
	j.Payload = j.Payload.Normalize()
	if j.WakeMode == "" {
		j.WakeMode = WakeNextHeartbeat
	}
	if j.SessionTarget == "" {
		j.SessionTarget = DefaultSessionTarget(j.Payload.Kind)
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	nowMs := s.now().UnixMilli()
	j.CreatedAtMs = nowMs
	j.UpdatedAtMs = nowMs
	next, _ := ComputeNextRunAtMs(j.Schedule, nowMs)
	j.State.NextRunAtMs = next

	s.store.Put(j)
	s.events(Event{Action: EventAdded, JobID: j.ID, Job: &j})
	s.poke()
	return j, nil
}

// Update applies a partial mutation, re-normalizing the schedule/payload
// and recomputing nextRunAtMs if the schedule changed.
func (s *Scheduler) Update(id string, mutate func(*Job)) (Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return Job{}, fmt.Errorf("cron: job %s not found", id)
	}
	mutate(job)
	job.Schedule = job.Schedule.Normalize()
	if err := job.Schedule.Validate(); err != nil {
		return Job{}, err
	}
	job.Payload = job.Payload.Normalize()
	job.UpdatedAtMs = s.now().UnixMilli()

	if job.State.RunningAtMs == 0 {
		next, _ := ComputeNextRunAtMs(job.Schedule, s.now().UnixMilli())
		job.State.NextRunAtMs = next
	}

	s.store.Put(*job)
	s.events(Event{Action: EventUpdated, JobID: id, Job: job})
	s.poke()
	return *job, nil
}

// Remove deletes a job. If it is currently running, the run is canceled.
func (s *Scheduler) Remove(id string) bool {
	s.runningMu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
	}
	s.runningMu.Unlock()

	ok := s.store.Delete(id)
	if ok {
		s.events(Event{Action: EventRemoved, JobID: id})
	}
	return ok
}

// Status returns the current state of one job.
func (s *Scheduler) Status(id string) (Job, bool) {
	j, ok := s.store.Get(id)
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns every job, optionally including disabled ones.
func (s *Scheduler) List(includeDisabled bool) []Job {
	return s.store.List(includeDisabled)
}

// Wake forwards a manual wake request straight to the dispatcher,
// bypassing job scheduling entirely.
func (s *Scheduler) Wake(ctx context.Context, mode WakeMode, text, reason string) error {
	slog.Info("cron: manual wake", "mode", mode, "reason", reason)
	if text != "" {
		return s.dispatcher.EnqueueMainAgentTurn(ctx, text, mode)
	}
	return s.dispatcher.EnqueueMainSystemEvent(ctx, "heartbeat wake: "+reason)
}
