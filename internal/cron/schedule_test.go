package cron

import "testing"

func TestComputeNextRunAtMs_EveryAdvancesByTick(t *testing.T) {
	sched := Schedule{Kind: ScheduleEvery, EveryMs: 60_000, AnchorMs: 1_000_000}

	next, ok := ComputeNextRunAtMs(sched, 1_059_000)
	if !ok || next != 1_060_000 {
		t.Fatalf("next = %d, %v; want 1060000, true", next, ok)
	}

	next2, ok := ComputeNextRunAtMs(sched, 1_060_001)
	if !ok || next2 != 1_120_000 {
		t.Fatalf("next2 = %d, %v; want 1120000, true", next2, ok)
	}
}

func TestComputeNextRunAtMs_EveryBeforeAnchorFiresAtAnchor(t *testing.T) {
	sched := Schedule{Kind: ScheduleEvery, EveryMs: 1, AnchorMs: 1_000}
	next, ok := ComputeNextRunAtMs(sched, 500)
	if !ok || next != 1_000 {
		t.Fatalf("next = %d, %v; want 1000, true", next, ok)
	}
}

func TestComputeNextRunAtMs_EveryOneMsAtAnchorEqualsNow(t *testing.T) {
	sched := Schedule{Kind: ScheduleEvery, EveryMs: 1, AnchorMs: 1_000}
	next, ok := ComputeNextRunAtMs(sched, 1_000)
	if !ok || next != 1_001 {
		t.Fatalf("next = %d, %v; want 1001, true", next, ok)
	}
}

func TestComputeNextRunAtMs_AtInPastNeverFires(t *testing.T) {
	sched := Schedule{Kind: ScheduleAt, AtMs: 1_000}
	_, ok := ComputeNextRunAtMs(sched, 2_000)
	if ok {
		t.Fatal("an `at` schedule in the past must never fire again")
	}
}

func TestComputeNextRunAtMs_AtInFutureFiresOnce(t *testing.T) {
	sched := Schedule{Kind: ScheduleAt, AtMs: 5_000}
	next, ok := ComputeNextRunAtMs(sched, 1_000)
	if !ok || next != 5_000 {
		t.Fatalf("next = %d, %v; want 5000, true", next, ok)
	}
}

func TestComputeNextRunAtMs_Monotonic(t *testing.T) {
	sched := Schedule{Kind: ScheduleEvery, EveryMs: 90_000, AnchorMs: 0}
	now := int64(12_345)
	for i := 0; i < 20; i++ {
		next, ok := ComputeNextRunAtMs(sched, now)
		if !ok {
			t.Fatalf("iteration %d: expected a next run", i)
		}
		if next < now {
			t.Fatalf("iteration %d: next %d earlier than now %d", i, next, now)
		}
		now = next
	}
}

func TestSchedule_NormalizeIdempotent(t *testing.T) {
	sched := Schedule{EveryMs: 1000}
	once := sched.Normalize()
	twice := once.Normalize()
	if once != twice {
		t.Fatalf("Normalize not idempotent: %+v != %+v", once, twice)
	}
	if once.Kind != ScheduleEvery {
		t.Fatalf("Kind = %q, want %q", once.Kind, ScheduleEvery)
	}
}

func TestSchedule_NormalizeInfersKind(t *testing.T) {
	cases := []struct {
		in   Schedule
		want ScheduleKind
	}{
		{Schedule{AtMs: 100}, ScheduleAt},
		{Schedule{EveryMs: 100}, ScheduleEvery},
		{Schedule{Expr: "* * * * *"}, ScheduleCron},
	}
	for _, c := range cases {
		got := c.in.Normalize().Kind
		if got != c.want {
			t.Errorf("Normalize(%+v).Kind = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPayload_NormalizeInfersKind(t *testing.T) {
	if (Payload{Message: "hi"}).Normalize().Kind != PayloadAgentTurn {
		t.Fatal("payload with Message should normalize to agentTurn")
	}
	if (Payload{Text: "hi"}).Normalize().Kind != PayloadSystemEvent {
		t.Fatal("payload without Message should normalize to systemEvent")
	}
}

func TestDefaultSessionTarget(t *testing.T) {
	if DefaultSessionTarget(PayloadAgentTurn) != SessionTargetIsolated {
		t.Fatal("agentTurn should default to isolated session target")
	}
	if DefaultSessionTarget(PayloadSystemEvent) != SessionTargetMain {
		t.Fatal("systemEvent should default to main session target")
	}
}

func TestSchedule_ValidateRejectsBadCronExpr(t *testing.T) {
	sched := Schedule{Kind: ScheduleCron, Expr: "not a cron expr"}
	if err := sched.Validate(); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestSchedule_ValidateAcceptsStandardCronExpr(t *testing.T) {
	sched := Schedule{Kind: ScheduleCron, Expr: "0 9 * * 1-5"}
	if err := sched.Validate(); err != nil {
		t.Fatalf("expected a valid weekday cron expression, got %v", err)
	}
}
