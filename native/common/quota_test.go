package common

import (
	"errors"
	"math"
	"testing"
)

const day = int64(86400)

func TestCheckQuotaSameEpochLimit(t *testing.T) {
	q := Quota{MaxPerEpoch: 5000, EpochSeconds: day}
	now := int64(1_700_000_000)
	prev := QuotaNow{LastSeen: now - 60, Used: 4500}

	denied, err := CheckQuota(q, now, prev, 600)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if denied != prev {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	next, err := CheckQuota(q, now, prev, 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Used != 4900 || next.LastSeen != now {
		t.Fatalf("unexpected counters: %+v", next)
	}

	exact, err := CheckQuota(q, now, next, 100)
	if err != nil {
		t.Fatalf("filling the quota exactly should pass: %v", err)
	}
	if exact.Used != 5000 {
		t.Fatalf("unexpected used: %d", exact.Used)
	}
}

func TestCheckQuotaRollover(t *testing.T) {
	q := Quota{MaxPerEpoch: 5000, EpochSeconds: day}
	yesterday := QuotaNow{LastSeen: 19_000*day + 10, Used: 4999}

	next, err := CheckQuota(q, 19_001*day+5, yesterday, 4999)
	if err != nil {
		t.Fatalf("unexpected error after rollover: %v", err)
	}
	if next.Used != 4999 || next.LastSeen != 19_001*day+5 {
		t.Fatalf("unexpected state after rollover: %+v", next)
	}
}

func TestCheckQuotaBoundaryIsCalendarDay(t *testing.T) {
	q := Quota{MaxPerEpoch: 10, EpochSeconds: day}
	lateNight := 20_000*day - 1
	prev := QuotaNow{LastSeen: lateNight, Used: 10}

	if _, err := CheckQuota(q, lateNight, prev, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected same-day claim to be denied, got %v", err)
	}
	next, err := CheckQuota(q, lateNight+2, prev, 10)
	if err != nil {
		t.Fatalf("expected fresh quota after midnight, got %v", err)
	}
	if next.Used != 10 {
		t.Fatalf("unexpected used: %d", next.Used)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	q := Quota{EpochSeconds: day}
	prev := QuotaNow{LastSeen: 5, Used: math.MaxUint64 - 1}
	if _, err := CheckQuota(q, 6, prev, 2); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestEpochOfFloorsNegativeTimestamps(t *testing.T) {
	cases := []struct {
		ts   int64
		want int64
	}{
		{0, 0},
		{day - 1, 0},
		{day, 1},
		{-1, -1},
		{-day, -1},
		{-day - 1, -2},
	}
	for _, tc := range cases {
		if got := EpochOf(tc.ts, day); got != tc.want {
			t.Fatalf("EpochOf(%d) = %d, want %d", tc.ts, got, tc.want)
		}
	}
}

func TestQuotaRemaining(t *testing.T) {
	q := Quota{MaxPerEpoch: 5000, EpochSeconds: day}
	now := 30_000 * day
	if got := q.Remaining(now, QuotaNow{LastSeen: now - 1, Used: 1200}); got != 3800 {
		t.Fatalf("unexpected remaining: %d", got)
	}
	if got := q.Remaining(now, QuotaNow{LastSeen: now - day, Used: 5000}); got != 5000 {
		t.Fatalf("stale day should report a full quota, got %d", got)
	}
	if got := (Quota{}).Remaining(now, QuotaNow{}); got != math.MaxUint64 {
		t.Fatalf("unlimited quota should report max, got %d", got)
	}
}

type pauses map[string]bool

func (p pauses) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "kpireward"); err != nil {
		t.Fatalf("nil view should not block: %v", err)
	}
	if err := Guard(pauses{"kpireward": true}, "kpireward"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses{"other": true}, "kpireward"); err != nil {
		t.Fatalf("unrelated pause should not block: %v", err)
	}
}
