package notify

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.Publish(Message{
		UserID:    "user-1",
		EventType: EventFavoriteChanged,
		ItemIDs:   []int64{3, 7},
		Present:   true,
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != EventFavoriteChanged {
			t.Fatalf("expected event type %s, got %s", EventFavoriteChanged, received.EventType)
		}
		if len(received.ItemIDs) != 2 {
			t.Fatalf("expected 2 item ids, got %d", len(received.ItemIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message within deadline")
	}
}

func TestDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, "user-3")
	defer otherCleanup()

	dispatcher.Publish(Message{UserID: "user-3", EventType: EventFavoriteChanged, ItemIDs: []int64{11}})

	select {
	case <-userStream:
		t.Fatal("did not expect message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message for subscribed user")
	}
}

func TestDispatcherUnsubscribesWhenContextEnds(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()
	if dispatcher.SubscriberCount("user-4") != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount("user-4") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcherAnonymousSubscriptionIsClosed(t *testing.T) {
	stream, cleanup := NewDispatcher().Subscribe(context.Background(), "")
	defer cleanup()
	if _, open := <-stream; open {
		t.Fatal("expected anonymous stream to be closed")
	}
}

func TestDispatcherPublishFavoriteChange(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	dispatcher.PublishFavoriteChange("user-1", 42, false)

	select {
	case received := <-stream:
		if received.EventType != EventFavoriteChanged || received.Present {
			t.Fatalf("unexpected message: %+v", received)
		}
		if len(received.ItemIDs) != 1 || received.ItemIDs[0] != 42 {
			t.Fatalf("unexpected item ids: %v", received.ItemIDs)
		}
		if received.ID == "" {
			t.Fatalf("expected an event id")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message within deadline")
	}
}
