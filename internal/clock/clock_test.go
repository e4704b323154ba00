// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, f.Now())
	}

	f.Advance(2 * time.Hour)
	want := start.Add(2 * time.Hour)
	if !f.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, f.Now())
	}
}

func TestFakeSet(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	target := time.Unix(1000, 0)
	f.Set(target)
	if !f.Now().Equal(target) {
		t.Fatalf("expected %v, got %v", target, f.Now())
	}
}

func TestRealIsClock(t *testing.T) {
	var c Clock = Real{}
	if c.Now().IsZero() {
		t.Fatal("expected non-zero time from Real clock")
	}
}
