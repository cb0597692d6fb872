package metadata

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProviderBlockedAfterConsecutiveFailures(t *testing.T) {
	service := NewService([]Provider{&fakeProvider{name: "alpha"}}, time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	failure := errors.New("boom")

	for i := 0; i < providerFailureThreshold-1; i++ {
		service.recordProviderResult("alpha", "dune", failure, 10*time.Millisecond, now)
		if blocked, _, _ := service.isProviderBlocked("alpha", now); blocked {
			t.Fatalf("blocked too early after %d failures", i+1)
		}
	}

	service.recordProviderResult("alpha", "dune", failure, 10*time.Millisecond, now)
	blocked, until, lastErr := service.isProviderBlocked("alpha", now)
	if !blocked {
		t.Fatalf("expected provider blocked at threshold")
	}
	if until != now.Add(providerBlockBase) {
		t.Fatalf("expected base block duration, got until=%v", until)
	}
	if lastErr != "boom" {
		t.Fatalf("expected last error carried, got %q", lastErr)
	}

	if blocked, _, _ := service.isProviderBlocked("alpha", until.Add(time.Second)); blocked {
		t.Fatalf("block must lift once the window passes")
	}
}

func TestProviderSuccessResetsFailureStreak(t *testing.T) {
	service := NewService([]Provider{&fakeProvider{name: "alpha"}}, time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	failure := errors.New("boom")

	for i := 0; i < providerFailureThreshold; i++ {
		service.recordProviderResult("alpha", "dune", failure, time.Millisecond, now)
	}
	service.recordProviderResult("alpha", "dune", nil, time.Millisecond, now)

	if blocked, _, _ := service.isProviderBlocked("alpha", now); blocked {
		t.Fatalf("success must clear the block")
	}
}

func TestExponentialBlockDurationCapsAtMax(t *testing.T) {
	if got := exponentialBlockDuration(providerFailureThreshold); got != providerBlockBase {
		t.Fatalf("expected base at threshold, got %v", got)
	}
	if got := exponentialBlockDuration(providerFailureThreshold + 1); got != 2*providerBlockBase {
		t.Fatalf("expected doubled block, got %v", got)
	}
	if got := exponentialBlockDuration(providerFailureThreshold + 10); got != providerBlockMax {
		t.Fatalf("expected cap, got %v", got)
	}
}

func TestIsTimeoutLikeError(t *testing.T) {
	if !isTimeoutLikeError(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded must count as timeout")
	}
	if !isTimeoutLikeError(errors.New("request timeout after 8s")) {
		t.Fatalf("timeout text must count as timeout")
	}
	if isTimeoutLikeError(errors.New("connection refused")) {
		t.Fatalf("refused connection is not a timeout")
	}
	if isTimeoutLikeError(nil) {
		t.Fatalf("nil error is not a timeout")
	}
}

func TestProviderDiagnosticsExposeHealthState(t *testing.T) {
	service := NewService([]Provider{&fakeProvider{name: "alpha"}}, time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service.recordProviderResult("alpha", "dune", errors.New("boom"), 25*time.Millisecond, now)

	items := service.ProviderDiagnostics()
	if len(items) != 1 {
		t.Fatalf("expected 1 diagnostic entry, got %d", len(items))
	}
	entry := items[0]
	if entry.Name != "alpha" {
		t.Fatalf("unexpected name %q", entry.Name)
	}
	if entry.ConsecutiveFailures != 1 || entry.TotalFailures != 1 || entry.TotalRequests != 1 {
		t.Fatalf("unexpected counters: %+v", entry)
	}
	if entry.LastError != "boom" || entry.LastFailureAt == nil {
		t.Fatalf("failure details missing: %+v", entry)
	}
	if entry.LastLatencyMS != 25 {
		t.Fatalf("expected latency 25ms, got %d", entry.LastLatencyMS)
	}
}
