package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/provider"
)

func TestProcessor_IsProcessingAndAbort(t *testing.T) {
	proc, events, _, workDir := newTestProcessor(t)
	sess := newTestSession(t, events, workDir)
	appendUserMessage(t, events, sess.ID, "hello")

	started := make(chan struct{})
	driver := &blockingDriver{id: "fake", models: []provider.ModelInfo{{ID: "fake-1", ContextWindow: 100000}}, started: started}
	ag := agent.BuiltInAgents()["build"]

	if proc.IsProcessing(sess.ID) {
		t.Fatalf("expected session not processing before Process is called")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- proc.Process(context.Background(), sess.ID, ag, driver, "fake-1")
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop to reach the driver call")
	}

	if !proc.IsProcessing(sess.ID) {
		t.Fatalf("expected session to be processing once the loop has started")
	}
	if _, ok := proc.ActiveStep(sess.ID); !ok {
		t.Fatalf("expected ActiveStep to report processing")
	}

	if err := proc.Abort(sess.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected Process to return an error after Abort")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Process to return after Abort")
	}

	if proc.IsProcessing(sess.ID) {
		t.Fatalf("expected session to no longer be processing after the loop returns")
	}
}

func TestProcessor_AbortUnknownSessionErrors(t *testing.T) {
	proc, _, _, _ := newTestProcessor(t)
	if err := proc.Abort("does-not-exist"); err == nil {
		t.Fatalf("expected an error aborting a session with no in-flight loop")
	}
}

// TestProcessor_QueuesConcurrentCallsForSameSession drives two Process
// calls for the same session concurrently and checks the driver is
// never entered twice at once: the second call must queue behind the
// first via the sessionState waiter list rather than racing it.
func TestProcessor_QueuesConcurrentCallsForSameSession(t *testing.T) {
	proc, events, _, workDir := newTestProcessor(t)
	sess := newTestSession(t, events, workDir)
	appendUserMessage(t, events, sess.ID, "first")

	var active int32
	var maxActive int32
	driver := &countingDriver{
		id:     "fake",
		models: []provider.ModelInfo{{ID: "fake-1", ContextWindow: 100000}},
		onCall: func() *time.Timer {
			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			return time.NewTimer(20 * time.Millisecond)
		},
		after: func() { atomic.AddInt32(&active, -1) },
	}
	ag := agent.BuiltInAgents()["build"]

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = proc.Process(context.Background(), sess.ID, ag, driver, "fake-1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Process call %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&maxActive); got > 1 {
		t.Fatalf("expected the two Process calls to never enter the driver concurrently, max concurrent = %d", got)
	}
}
