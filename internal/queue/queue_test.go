package queue_test

import (
	"testing"

	"github.com/wangmax2011/maxclaw/internal/queue"
)

func TestDequeue_HighestPriorityFirst(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("low", "p1", 1)
	q.Enqueue("high", "p1", 5)
	q.Enqueue("mid", "p1", 3)

	item := q.Dequeue()
	if item == nil || item.ID != "high" {
		t.Fatalf("expected high priority item first, got %+v", item)
	}
}

func TestDequeue_TiesBrokenByRequestedAt(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("first", "p1", 3)
	q.Enqueue("second", "p1", 3)

	item := q.Dequeue()
	if item == nil || item.ID != "first" {
		t.Fatalf("expected earlier-requested item first on tie, got %+v", item)
	}
}

func TestEnqueue_RejectsWhenFull(t *testing.T) {
	q := queue.New(queue.Config{Capacity: 2})
	if _, reason := q.Enqueue("a", "p1", 3); reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if _, reason := q.Enqueue("b", "p1", 3); reason != "" {
		t.Fatalf("unexpected rejection: %s", reason)
	}
	if _, reason := q.Enqueue("c", "p1", 3); reason != queue.ErrFull {
		t.Fatalf("expected queue full rejection, got %q", reason)
	}
}

func TestDequeue_MarksRunningAndClearsPosition(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("a", "p1", 3)
	item := q.Dequeue()
	if item.Status != queue.StatusRunning || item.Position != 0 {
		t.Fatalf("expected running status with cleared position, got %+v", item)
	}
}

func TestComplete_MovesToHistory(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("a", "p1", 3)
	q.Dequeue()
	if !q.Complete("a") {
		t.Fatal("expected Complete to succeed")
	}
	got := q.Get("a")
	if got == nil || got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed item in history, got %+v", got)
	}
}

func TestCancel_RemovesFromQueueAndRecordsHistory(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("a", "p1", 3)
	q.Enqueue("b", "p1", 3)

	if !q.Cancel("a") {
		t.Fatal("expected Cancel to succeed")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 item left queued, got %d", q.Len())
	}
	got := q.Get("a")
	if got == nil || got.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled item in history, got %+v", got)
	}
}

func TestHistory_EvictsOldestBeyondCapacity(t *testing.T) {
	q := queue.New(queue.Config{HistoryCapacity: 1})
	q.Enqueue("a", "p1", 3)
	q.Enqueue("b", "p1", 3)
	q.Dequeue()
	q.Complete("a")
	q.Dequeue()
	q.Complete("b")

	if got := q.Get("a"); got != nil {
		t.Fatalf("expected 'a' evicted from history, got %+v", got)
	}
	if got := q.Get("b"); got == nil {
		t.Fatal("expected 'b' still present in history")
	}
}

func TestPositions_RecomputedAfterMutation(t *testing.T) {
	q := queue.New(queue.Config{})
	q.Enqueue("a", "p1", 5)
	q.Enqueue("b", "p1", 3)
	q.Enqueue("c", "p1", 1)

	if got := q.Get("a"); got.Position != 1 {
		t.Fatalf("expected position 1 for highest priority, got %d", got.Position)
	}
	if got := q.Get("c"); got.Position != 3 {
		t.Fatalf("expected position 3 for lowest priority, got %d", got.Position)
	}

	q.Cancel("a")
	if got := q.Get("b"); got.Position != 1 {
		t.Fatalf("expected 'b' to move to position 1 after 'a' cancelled, got %d", got.Position)
	}
}
