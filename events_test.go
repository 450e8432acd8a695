package servex

import (
	"sync"
	"testing"
	"time"
)

func TestEventBus_EmitRunsAllSubscribers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var got []int

	for i := 0; i < 5; i++ {
		i := i
		bus.On("test:event", func(rc RequestContext, payload interface{}) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	bus.Emit("test:event", RequestContext{}, nil)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 subscribers invoked, got %d", len(got))
	}
}

func TestEventBus_SubscriberPanicDoesNotAbortOthers(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	secondRan := false

	bus.On("panicky", func(rc RequestContext, payload interface{}) {
		panic("boom")
	})
	bus.On("panicky", func(rc RequestContext, payload interface{}) {
		mu.Lock()
		secondRan = true
		mu.Unlock()
	})

	bus.Emit("panicky", RequestContext{}, nil)

	mu.Lock()
	defer mu.Unlock()
	if !secondRan {
		t.Fatalf("expected second subscriber to still run despite the first panicking")
	}
}

func TestEventBus_OffRemovesSubscriber(t *testing.T) {
	bus := NewEventBus()

	var calls int
	token := bus.On("ch", func(rc RequestContext, payload interface{}) { calls++ })
	bus.Off("ch", token)
	bus.Emit("ch", RequestContext{}, nil)

	if calls != 0 {
		t.Errorf("expected 0 calls after Off, got %d", calls)
	}
}

func TestEventBus_ChannelsAreIndependent(t *testing.T) {
	bus := NewEventBus()

	block := make(chan struct{})
	started := make(chan struct{})
	bus.On("slow", func(rc RequestContext, payload interface{}) {
		close(started)
		<-block
	})

	fastDone := make(chan struct{})
	go func() {
		bus.Emit("slow", RequestContext{}, nil)
	}()
	<-started

	bus.On("fast", func(rc RequestContext, payload interface{}) {
		close(fastDone)
	})
	bus.Emit("fast", RequestContext{}, nil)

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("fast channel emission blocked on slow channel's in-flight subscriber")
	}
	close(block)
}
