package providers

import "testing"

func TestAllowConsumesTokens(t *testing.T) {
	tr := NewRateTracker()

	for i := 0; i < 3; i++ {
		if !tr.Allow("p", 3, 0) {
			t.Fatalf("expected allow at %d", i)
		}
	}
	if tr.Allow("p", 3, 0) {
		t.Fatalf("expected drained bucket to reject")
	}
}

func TestUsagePctBounds(t *testing.T) {
	tr := NewRateTracker()

	if got := tr.UsagePct("unknown"); got != 0 {
		t.Fatalf("expected 0 for unknown provider, got %v", got)
	}

	tr.Allow("p", 4, 0)
	tr.Allow("p", 4, 0)
	got := tr.UsagePct("p")
	if got < 49 || got > 51 {
		t.Fatalf("expected ~50%%, got %v", got)
	}

	tr.Allow("p", 4, 0)
	tr.Allow("p", 4, 0)
	if got := tr.UsagePct("p"); got > 100 {
		t.Fatalf("expected clamp at 100, got %v", got)
	}
}

func TestSeparateBuckets(t *testing.T) {
	tr := NewRateTracker()

	tr.Allow("a", 1, 0)
	if tr.Allow("a", 1, 0) {
		t.Fatalf("expected a drained")
	}
	if !tr.Allow("b", 1, 0) {
		t.Fatalf("expected b untouched")
	}
}
