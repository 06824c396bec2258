package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSimulatedProviderSettlesAfterDelay(t *testing.T) {
	now := time.Date(2026, 3, 14, 13, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	release := make(chan time.Time)
	var requested time.Duration

	provider := NewSimulatedProvider(
		WithDelay(2*time.Second),
		WithClock(func() time.Time { return now }),
		WithTimer(func(d time.Duration) <-chan time.Time {
			requested = d
			return release
		}),
	)

	done := make(chan ProcessResult, 1)
	go func() {
		result, err := provider.Process(context.Background(), ProcessRequest{Amount: 1000})
		if err != nil {
			t.Errorf("process: %v", err)
		}
		done <- result
	}()

	select {
	case <-done:
		t.Fatal("expected provider to wait for the delay")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	result := <-done
	if requested != 2*time.Second {
		t.Fatalf("expected 2s delay, got %s", requested)
	}
	if result.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", result.Status)
	}
	if !strings.HasPrefix(result.Reference, "sim_") || len(result.Reference) != len("sim_")+26 {
		t.Fatalf("unexpected reference %q", result.Reference)
	}
	if !result.ProcessedAt.Equal(now) || result.ProcessedAt.Location() != time.UTC {
		t.Fatalf("expected UTC processed at, got %s", result.ProcessedAt)
	}
	if provider.Calls() != 1 {
		t.Fatalf("expected single call, got %d", provider.Calls())
	}
}

func TestSimulatedProviderHonoursContext(t *testing.T) {
	provider := NewSimulatedProvider(WithTimer(func(time.Duration) <-chan time.Time {
		return make(chan time.Time)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := provider.Process(ctx, ProcessRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestSimulatedProviderFailWith(t *testing.T) {
	declined := errors.New("declined")
	provider := NewSimulatedProvider(WithDelay(0))
	provider.FailWith(declined)

	if _, err := provider.Process(context.Background(), ProcessRequest{}); !errors.Is(err, declined) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	provider.FailWith(nil)
	if _, err := provider.Process(context.Background(), ProcessRequest{}); err != nil {
		t.Fatalf("expected success after reset, got %v", err)
	}
}
