package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/wangmax2011/maxclaw/internal/notifier"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeliver_SucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notifier.New(discardLogger(), notifier.WithTestMode())
	target := notifier.Target{Webhook: srv.URL, Platform: notifier.PlatformSlack, MinLevel: notifier.LevelInfo}

	err := n.Deliver(context.Background(), target, notifier.GenericNotification{Message: "hi", Lvl: notifier.LevelInfo})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestDeliver_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notifier.New(discardLogger(), notifier.WithTestMode())
	target := notifier.Target{Webhook: srv.URL, Platform: notifier.PlatformCustom, MinLevel: notifier.LevelInfo}

	err := n.Deliver(context.Background(), target, notifier.GenericNotification{Message: "hi", Lvl: notifier.LevelInfo})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestDeliver_NonRetryable4xxShortCircuits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := notifier.New(discardLogger(), notifier.WithTestMode())
	target := notifier.Target{Webhook: srv.URL, Platform: notifier.PlatformCustom, MinLevel: notifier.LevelInfo}

	err := n.Deliver(context.Background(), target, notifier.GenericNotification{Message: "hi", Lvl: notifier.LevelInfo})
	if err == nil {
		t.Fatal("expected error for non-retryable 4xx")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestDeliver_BelowMinLevelDropped(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notifier.New(discardLogger(), notifier.WithTestMode())
	target := notifier.Target{Webhook: srv.URL, Platform: notifier.PlatformCustom, MinLevel: notifier.LevelWarning}

	err := n.Deliver(context.Background(), target, notifier.GenericNotification{Message: "hi", Lvl: notifier.LevelInfo})
	if err != nil {
		t.Fatalf("expected no error when dropped, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected 0 calls for below-threshold level, got %d", got)
	}
}

func TestDeliver_ExhaustsRetriesAndFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := notifier.New(discardLogger(), notifier.WithTestMode())
	target := notifier.Target{Webhook: srv.URL, Platform: notifier.PlatformCustom, MinLevel: notifier.LevelInfo}

	err := n.Deliver(context.Background(), target, notifier.ErrorAlert{Message: "boom"})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
}

func TestScheduleNotifier_SkipsWhenNoTargetConfigured(t *testing.T) {
	n := notifier.New(discardLogger(), notifier.WithTestMode())
	sn := notifier.NewScheduleNotifier(n, func(projectID string) (notifier.Target, bool) {
		return notifier.Target{}, false
	})
	// Must not panic or block when no target is configured.
	sn.NotifyScheduleResult(context.Background(), "proj-1", "sched", true, "ok", "")
}
