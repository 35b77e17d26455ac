package helper

import (
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(3, nil, func() error {
		calls++
		if calls == 2 {
			return nil
		}
		return errors.New("busy")
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	want := errors.New("still busy")
	calls := 0
	err := Retry(3, LinearDelay(time.Millisecond), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestLinearDelayGrows(t *testing.T) {
	delay := LinearDelay(100 * time.Millisecond)
	for i := 1; i <= 3; i++ {
		want := time.Duration(i) * 100 * time.Millisecond
		if got := delay(i); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i, want, got)
		}
	}
}
