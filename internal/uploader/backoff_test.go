package uploader

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	base := time.Second
	max := 60 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{7, 60 * time.Second},
		{30, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(tc.attempt, base, max); got != tc.want {
			t.Errorf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelayIsNonDecreasing(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 40; attempt++ {
		delay := backoffDelay(attempt, time.Second, 60*time.Second)
		if delay < prev {
			t.Fatalf("delay decreased at attempt %d: %s < %s", attempt, delay, prev)
		}
		prev = delay
	}
}

func TestBackoffDelayDefensiveInputs(t *testing.T) {
	if got := backoffDelay(0, time.Second, time.Minute); got != time.Second {
		t.Fatalf("attempt 0: got %s", got)
	}
	if got := backoffDelay(3, 0, time.Minute); got != 4*time.Second {
		t.Fatalf("zero base: got %s", got)
	}
	if got := backoffDelay(1, time.Minute, time.Second); got != time.Minute {
		t.Fatalf("max below base: got %s", got)
	}
}
