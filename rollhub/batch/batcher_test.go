package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingApply struct {
	mu      sync.Mutex
	applied map[string]map[string]any
	failFor map[string]bool
}

func newRecordingApply() *recordingApply {
	return &recordingApply{
		applied: make(map[string]map[string]any),
		failFor: make(map[string]bool),
	}
}

func (r *recordingApply) apply(_ context.Context, key string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[key] {
		return errors.New("store unavailable")
	}
	r.applied[key] = fields
	return nil
}

func TestQueueUpdateMergesFields(t *testing.T) {
	rec := newRecordingApply()
	b := NewBatcher(rec.apply)

	b.QueueUpdate("alice", map[string]any{"balance": 100, "roll_count": 1})
	b.QueueUpdate("alice", map[string]any{"balance": 250})

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := rec.applied["alice"]
	if got == nil {
		t.Fatal("update not applied")
	}
	if got["balance"] != 250 {
		t.Errorf("balance = %v, want 250 (later value wins)", got["balance"])
	}
	if got["roll_count"] != 1 {
		t.Errorf("roll_count = %v, want 1 (earlier field preserved)", got["roll_count"])
	}
}

func TestFlushClearsPending(t *testing.T) {
	rec := newRecordingApply()
	b := NewBatcher(rec.apply)

	b.QueueUpdate("alice", map[string]any{"balance": 1})
	if !b.HasPendingUpdates() {
		t.Fatal("expected pending updates before flush")
	}

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b.HasPendingUpdates() {
		t.Error("pending updates remain after successful flush")
	}
}

func TestFailedUpdatesAreRequeued(t *testing.T) {
	rec := newRecordingApply()
	rec.failFor["alice"] = true
	b := NewBatcher(rec.apply)

	b.QueueUpdate("alice", map[string]any{"balance": 100})
	b.QueueUpdate("bob", map[string]any{"balance": 50})

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// Bob's update applied; Alice's went back in the queue.
	if rec.applied["bob"] == nil {
		t.Error("bob's update was not applied")
	}
	if !b.HasPendingUpdates() {
		t.Fatal("failed update was dropped instead of re-queued")
	}

	rec.mu.Lock()
	rec.failFor["alice"] = false
	rec.mu.Unlock()

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if rec.applied["alice"] == nil {
		t.Error("re-queued update was not applied on the next cycle")
	}
}

func TestRequeuePreservesNewerValues(t *testing.T) {
	rec := newRecordingApply()
	rec.failFor["alice"] = true
	b := NewBatcher(rec.apply)

	b.QueueUpdate("alice", map[string]any{"balance": 100})
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// A value queued after the failed snapshot must survive the requeue merge.
	b.QueueUpdate("alice", map[string]any{"balance": 999})
	b.requeue("alice", map[string]any{"balance": 100, "roll_count": 5})

	rec.mu.Lock()
	rec.failFor["alice"] = false
	rec.mu.Unlock()

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	got := rec.applied["alice"]
	if got["balance"] != 999 {
		t.Errorf("balance = %v, want 999 (newer queued value wins)", got["balance"])
	}
	if got["roll_count"] != 5 {
		t.Errorf("roll_count = %v, want 5 (failed field restored)", got["roll_count"])
	}
}

func TestQueueUpdateIgnoresEmptyFields(t *testing.T) {
	rec := newRecordingApply()
	b := NewBatcher(rec.apply)

	b.QueueUpdate("alice", nil)
	b.QueueUpdate("alice", map[string]any{})
	if b.HasPendingUpdates() {
		t.Error("empty updates should not be queued")
	}
}
