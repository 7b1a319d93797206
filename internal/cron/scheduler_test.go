package cron

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	systemCalls int
	block    chan struct{}
}

func (f *fakeDispatcher) EnqueueMainSystemEvent(ctx context.Context, text string) error {
	f.mu.Lock()
	f.systemCalls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return nil
}

func (f *fakeDispatcher) EnqueueMainAgentTurn(ctx context.Context, message string, wake WakeMode) error {
	return nil
}

func (f *fakeDispatcher) RunIsolated(ctx context.Context, payload Payload, timeout time.Duration) (string, error) {
	return "", nil
}

func (f *fakeDispatcher) PostToMain(ctx context.Context, text string) error { return nil }

func (f *fakeDispatcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systemCalls
}

func TestScheduler_ForceRunWhileRunningIsSkipped(t *testing.T) {
	st := NewStore(t.TempDir())
	disp := &fakeDispatcher{block: make(chan struct{})}
	sched := NewScheduler(st, disp, nil, nil)

	job, err := sched.Add(Job{
		Name:    "test",
		Enabled: true,
		Schedule: Schedule{Kind: ScheduleAt, AtMs: time.Now().Add(time.Hour).UnixMilli()},
		Payload:  Payload{Kind: PayloadSystemEvent, Text: "hi"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if !sched.tryRun(context.Background(), job.ID, "forced") {
		t.Fatal("expected the first forced run to be accepted")
	}

	// The job is now running (blocked on disp.block); a second forced run
	// must be skipped rather than queued or re-entered.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if j, ok := st.Get(job.ID); ok && j.State.RunningAtMs != 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	err = sched.Run(context.Background(), job.ID, "force")
	if err == nil {
		t.Fatal("expected an error when forcing a run on an already-running job")
	}

	close(disp.block)
	sched.Stop() // drains the background goroutine from tryRun before teardown
}

func TestScheduler_AddSeedsNextRunAtMs(t *testing.T) {
	st := NewStore(t.TempDir())
	sched := NewScheduler(st, &fakeDispatcher{}, nil, nil)

	job, err := sched.Add(Job{
		Name:     "every-minute",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 0},
		Payload:  Payload{Kind: PayloadSystemEvent, Text: "tick"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if job.State.NextRunAtMs == 0 {
		t.Fatal("expected NextRunAtMs to be seeded on add")
	}
}

func TestScheduler_AddDefaultsWakeModeAndSessionTarget(t *testing.T) {
	st := NewStore(t.TempDir())
	sched := NewScheduler(st, &fakeDispatcher{}, nil, nil)

	job, err := sched.Add(Job{
		Name:     "turn",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleAt, AtMs: time.Now().Add(time.Hour).UnixMilli()},
		Payload:  Payload{Kind: PayloadAgentTurn, Message: "hello"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if job.WakeMode != WakeNextHeartbeat {
		t.Fatalf("WakeMode = %q, want %q", job.WakeMode, WakeNextHeartbeat)
	}
	if job.SessionTarget != SessionTargetIsolated {
		t.Fatalf("SessionTarget = %q, want %q", job.SessionTarget, SessionTargetIsolated)
	}
}

func TestScheduler_RemoveDeletesJob(t *testing.T) {
	st := NewStore(t.TempDir())
	disp := &fakeDispatcher{}
	sched := NewScheduler(st, disp, nil, nil)

	job, _ := sched.Add(Job{
		Name:     "x",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleAt, AtMs: time.Now().Add(time.Hour).UnixMilli()},
		Payload:  Payload{Kind: PayloadSystemEvent, Text: "hi"},
	})

	if !sched.Remove(job.ID) {
		t.Fatal("expected Remove to report success")
	}
	if _, ok := st.Get(job.ID); ok {
		t.Fatal("expected the job to be gone from the store")
	}
}
