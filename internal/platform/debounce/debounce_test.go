package debounce

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	results []string
	done    chan struct{}
}

func newRecorder(expected int) *recorder {
	return &recorder{done: make(chan struct{}, expected)}
}

func (r *recorder) deliver(input string, _ uint64, output string, err error) {
	r.mu.Lock()
	if err == nil {
		r.results = append(r.results, output)
	}
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.results))
	copy(out, r.results)
	return out
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution")
	}
}

func TestSubmitCoalescesRapidInputs(t *testing.T) {
	var mu sync.Mutex
	var executed []string

	rec := newRecorder(1)
	d := New(30*time.Millisecond, func(_ context.Context, input string) (string, error) {
		mu.Lock()
		executed = append(executed, input)
		mu.Unlock()
		return input, nil
	}, rec.deliver)
	defer d.Close()

	d.Submit("sm")
	time.Sleep(5 * time.Millisecond)
	d.Submit("smi")

	waitFor(t, rec.done)

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 1 {
		t.Fatalf("expected exactly one execution, got %d: %v", len(executed), executed)
	}
	if executed[0] != "smi" {
		t.Errorf("expected latest input to run, got %q", executed[0])
	}
}

func TestStaleCompletionIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)

	rec := newRecorder(2)
	d := New(time.Millisecond, func(_ context.Context, input string) (string, error) {
		started <- input
		if input == "slow" {
			<-release
		}
		return input, nil
	}, rec.deliver)
	defer d.Close()

	d.Submit("slow")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first execution to start")
	}

	// A newer input supersedes the in-flight execution.
	d.Submit("fast")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second execution to start")
	}
	waitFor(t, rec.done)

	close(release)
	// Give the stale goroutine time to finish and (incorrectly) deliver.
	time.Sleep(20 * time.Millisecond)

	results := rec.snapshot()
	if len(results) != 1 || results[0] != "fast" {
		t.Fatalf("expected only the newest result, got %v", results)
	}
}

func TestCancelDropsPendingInput(t *testing.T) {
	var mu sync.Mutex
	executions := 0

	d := New(10*time.Millisecond, func(_ context.Context, input string) (string, error) {
		mu.Lock()
		executions++
		mu.Unlock()
		return input, nil
	}, nil)
	defer d.Close()

	d.Submit("abandoned")
	d.Cancel()

	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if executions != 0 {
		t.Fatalf("expected no executions after cancel, got %d", executions)
	}
}

func TestGenerationAdvancesPerSubmit(t *testing.T) {
	d := New(time.Hour, func(_ context.Context, input string) (string, error) {
		return input, nil
	}, nil)
	defer d.Close()

	first := d.Submit("a")
	second := d.Submit("b")
	if second != first+1 {
		t.Errorf("expected generation to advance by one, got %d then %d", first, second)
	}
	if d.Generation() != second {
		t.Errorf("expected Generation to report %d, got %d", second, d.Generation())
	}
}
