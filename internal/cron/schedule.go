package cron

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// ComputeNextRunAtMs returns the next fire time for sched strictly after
// nowMs (at{} is checked for "> now", every{}/cron{} compute the smallest
// tick > now). It returns (0, false) when the schedule will never fire
// again (a past "at", a non-positive "every" interval, or a "cron"
// expression that fails to resolve). A "cron" timezone that fails to load
// falls back to UTC.
//
// Monotonicity: calling this again with the previous result as
// `nowMs` never returns an earlier timestamp, because every branch only
// ever searches forward from nowMs.
func ComputeNextRunAtMs(sched Schedule, nowMs int64) (int64, bool) {
	switch sched.Kind {
	case ScheduleAt:
		if sched.AtMs > nowMs {
			return sched.AtMs, true
		}
		return 0, false

	case ScheduleEvery:
		if sched.EveryMs <= 0 {
			return 0, false
		}
		anchor := sched.AnchorMs
		if nowMs < anchor {
			return anchor, true
		}
		elapsed := nowMs - anchor
		k := elapsed/sched.EveryMs + 1
		return anchor + k*sched.EveryMs, true

	case ScheduleCron:
		loc := time.UTC
		if sched.TZ != "" {
			if l, err := time.LoadLocation(sched.TZ); err == nil {
				loc = l
			}
		}
		ref := time.UnixMilli(nowMs).In(loc)
		next, err := gronx.NextTickAfter(sched.Expr, ref, false)
		if err != nil {
			return 0, false
		}
		return next.UnixMilli(), true

	default:
		return 0, false
	}
}

// Normalize fills in a Schedule's Kind when omitted, inferring it from
// which fields are populated (atMs => at, everyMs => every, expr => cron).
// Normalize(Normalize(x)) == Normalize(x): once Kind is set, subsequent
// calls are no-ops.
func (s Schedule) Normalize() Schedule {
	if s.Kind != "" {
		return s
	}
	switch {
	case s.AtMs != 0:
		s.Kind = ScheduleAt
	case s.EveryMs != 0:
		s.Kind = ScheduleEvery
	case s.Expr != "":
		s.Kind = ScheduleCron
	}
	return s
}

// Validate checks a normalized schedule is internally consistent.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleAt:
		if s.AtMs <= 0 {
			return fmt.Errorf("schedule at: atMs required")
		}
	case ScheduleEvery:
		if s.EveryMs <= 0 {
			return fmt.Errorf("schedule every: everyMs must be positive")
		}
	case ScheduleCron:
		if s.Expr == "" {
			return fmt.Errorf("schedule cron: expr required")
		}
		if !gronx.IsValid(s.Expr) {
			return fmt.Errorf("schedule cron: invalid expression %q", s.Expr)
		}
	default:
		return fmt.Errorf("schedule: unknown or unset kind")
	}
	return nil
}

// Normalize fills in a Payload's Kind when omitted (text => systemEvent,
// message => agentTurn).
func (p Payload) Normalize() Payload {
	if p.Kind != "" {
		return p
	}
	if p.Message != "" {
		p.Kind = PayloadAgentTurn
	} else {
		p.Kind = PayloadSystemEvent
	}
	return p
}

// DefaultSessionTarget returns the default sessionTarget for a payload
// kind: "main" for systemEvent, "isolated" for agentTurn.
func DefaultSessionTarget(kind PayloadKind) SessionTarget {
	if kind == PayloadAgentTurn {
		return SessionTargetIsolated
	}
	return SessionTargetMain
}
