package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisNotifierFanOut(t *testing.T) {
	mr := miniredis.RunT(t)
	n := NewRedisNotifier(mr.Addr(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, stop := n.Subscribe(ctx, PropertiesTopic("owner-1"))
	defer stop()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)
	n.PropertiesChanged(ctx, "owner-1")

	select {
	case <-events:
	case <-ctx.Done():
		t.Fatal("timed out waiting for change event")
	}
}

func TestRedisNotifierTopicsAreScoped(t *testing.T) {
	mr := miniredis.RunT(t)
	n := NewRedisNotifier(mr.Addr(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, stop := n.Subscribe(ctx, TasksTopic("prop-1"))
	defer stop()

	time.Sleep(50 * time.Millisecond)
	n.TasksChanged(ctx, "prop-2")
	n.PropertiesChanged(ctx, "owner-1")

	select {
	case <-events:
		t.Fatal("received event for another topic")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMemoryNotifierCoalesces(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	events, stop := n.Subscribe(ctx, PropertiesTopic("owner-1"))
	defer stop()

	// A burst of changes with no reader collapses into a single pending
	// event; the subscriber re-queries once and is up to date.
	for i := 0; i < 5; i++ {
		n.PropertiesChanged(ctx, "owner-1")
	}

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case <-events:
		t.Fatal("burst should coalesce into one pending event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryNotifierUnsubscribe(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	events, stop := n.Subscribe(ctx, TasksTopic("prop-1"))
	stop()
	n.TasksChanged(ctx, "prop-1")

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("event delivered after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
