package events

import (
	"fmt"
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe delivery.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(10, TopicTask)

	event := TaskStartedEvent{
		ID:        "task-1",
		Name:      "Test Task",
		Resource:  "claude",
		Timestamp: time.Now(),
	}

	bus.Publish(event)

	select {
	case received := <-ch:
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.Kind() != KindTaskStarted {
			t.Errorf("expected kind '%s', got '%s'", KindTaskStarted, received.Kind())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies every matching subscriber receives the
// same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1 := bus.Subscribe(10, TopicTask)
	ch2 := bus.Subscribe(10, TopicTask)

	event := TaskCompletedEvent{
		ID:        "task-2",
		Strategy:  "original",
		Attempts:  1,
		Duration:  100 * time.Millisecond,
		Timestamp: time.Now(),
	}

	bus.Publish(event)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.TaskID() != "task-2" {
				t.Errorf("subscriber %d: expected task ID 'task-2', got '%s'", i+1, received.TaskID())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestTopicFiltering verifies subscribers only see their topics.
func TestTopicFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	taskCh := bus.Subscribe(10, TopicTask)
	runCh := bus.Subscribe(10, TopicRun)

	bus.Publish(RunProgressEvent{Total: 5, Completed: 1, Timestamp: time.Now()})

	select {
	case received := <-runCh:
		if received.Kind() != KindRunProgress {
			t.Errorf("expected kind '%s', got '%s'", KindRunProgress, received.Kind())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for run event")
	}

	select {
	case received := <-taskCh:
		t.Errorf("task subscriber received off-topic event %s", received.Kind())
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSubscribeAllTopics verifies a bare Subscribe sees every topic.
func TestSubscribeAllTopics(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(10)

	bus.Publish(TaskStartedEvent{ID: "task-3", Timestamp: time.Now()})
	bus.Publish(GroupStartedEvent{Index: 0, Size: 3, Timestamp: time.Now()})
	bus.Publish(PoolStatsEvent{Used: 1, Total: 4, Timestamp: time.Now()})

	wantKinds := []string{KindTaskStarted, KindGroupStarted, KindPoolStats}
	for _, want := range wantKinds {
		select {
		case received := <-ch:
			if received.Kind() != want {
				t.Errorf("expected kind '%s', got '%s'", want, received.Kind())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

// TestNonBlockingPublish verifies a full subscriber drops events instead of
// stalling the publisher.
func TestNonBlockingPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe(2, TopicTask)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskStartedEvent{ID: fmt.Sprintf("task-%d", i), Timestamp: time.Now()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Only the buffered events survive
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != 2 {
				t.Errorf("received %d events, want the 2 that fit the buffer", received)
			}
			return
		}
	}
}

// TestCloseIdempotent verifies Close can be called repeatedly and ends
// subscriber channels.
func TestCloseIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(10, TopicTask)

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("subscriber channel still open after Close")
	}

	// Publishing after close must not panic
	bus.Publish(TaskStartedEvent{ID: "late", Timestamp: time.Now()})
}

// TestSubscribeAfterClose verifies late subscribers get a closed channel.
func TestSubscribeAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()

	ch := bus.Subscribe(10, TopicTask)
	if _, open := <-ch; open {
		t.Error("expected a closed channel from a closed bus")
	}
}

func TestTopicOf(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{TaskFailedEvent{ID: "x"}, TopicTask},
		{GroupFinishedEvent{Index: 1}, TopicGroup},
		{RunFinishedEvent{RunID: "r"}, TopicRun},
		{PoolStatsEvent{}, TopicPool},
	}

	for _, tt := range tests {
		if got := TopicOf(tt.event); got != tt.want {
			t.Errorf("TopicOf(%s) = %q, want %q", tt.event.Kind(), got, tt.want)
		}
	}
}
