package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestTask(t *testing.T) *Task {
	t.Helper()
	op, _ := transferOp(t)
	return NewTaskTTL(op, time.Hour, nil, discardLogger())
}

func TestQueueCounting(t *testing.T) {
	q := NewQueue(8, discardLogger())

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if got := q.Outstanding(); got != 3 {
		t.Fatalf("Outstanding() = %d, want 3", got)
	}

	// Dequeuing does not complete: the worker still owns the task.
	task := q.Get(context.Background())
	if task == nil {
		t.Fatal("Get() = nil")
	}
	if got := q.Outstanding(); got != 3 {
		t.Errorf("Outstanding() after Get = %d, want 3", got)
	}

	q.Complete()
	if got := q.Outstanding(); got != 2 {
		t.Errorf("Outstanding() after Complete = %d, want 2", got)
	}
	if got := q.PeakOutstanding(); got != 3 {
		t.Errorf("PeakOutstanding() = %d, want 3", got)
	}
}

func TestQueuePutDoesNotCount(t *testing.T) {
	q := NewQueue(2, discardLogger())

	if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
		t.Fatal(err)
	}
	task := q.Get(context.Background())

	q.Put(task)
	if got := q.Outstanding(); got != 1 {
		t.Errorf("Outstanding() after Put = %d, want 1", got)
	}
	if got := q.Get(context.Background()); got != task {
		t.Error("Get() did not return the requeued task")
	}
}

func TestQueueEnqueueBlocksAtCapacity(t *testing.T) {
	q := NewQueue(1, discardLogger())

	if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
		t.Fatal(err)
	}

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Enqueue(context.Background(), newTestTask(t))
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("Enqueue() returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Freeing a slot lets the blocked producer through.
	q.Get(context.Background())
	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue() still blocked after a slot was freed")
	}

	if got := q.Outstanding(); got != 2 {
		t.Errorf("Outstanding() = %d, want 2", got)
	}
}

func TestQueueEnqueueCancelRollsBack(t *testing.T) {
	q := NewQueue(1, discardLogger())

	if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, newTestTask(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Enqueue() error = %v, want deadline exceeded", err)
	}

	// The aborted enqueue must not leave a phantom count behind.
	if got := q.Outstanding(); got != 1 {
		t.Errorf("Outstanding() = %d, want 1", got)
	}
}

func TestQueueGetCancelled(t *testing.T) {
	q := NewQueue(1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if task := q.Get(ctx); task != nil {
		t.Errorf("Get() = %v, want nil on cancellation", task)
	}
}

func TestQueueCompleteWithoutEnqueue(t *testing.T) {
	q := NewQueue(1, discardLogger())

	// A stray completion must surface as a negative count, not be masked.
	q.Complete()
	if got := q.Outstanding(); got != -1 {
		t.Errorf("Outstanding() = %d, want -1", got)
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(4, discardLogger())

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
			t.Fatal(err)
		}
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		for i := 0; i < 2; i++ {
			q.Get(context.Background())
			q.Complete()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx, "test work"); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if got := q.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
}

func TestQueueDrainCancelled(t *testing.T) {
	q := NewQueue(4, discardLogger())

	if err := q.Enqueue(context.Background(), newTestTask(t)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := q.Drain(ctx, "test work"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want deadline exceeded", err)
	}
}

func TestQueueDrainEmptyReturnsImmediately(t *testing.T) {
	q := NewQueue(4, discardLogger())

	start := time.Now()
	if err := q.Drain(context.Background(), "nothing"); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Drain() on an empty queue took %v", elapsed)
	}
}
