package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medq/medq/internal/platform/events"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func queueEvent(t *testing.T, eventType string) events.Event {
	t.Helper()
	evt, err := events.NewEvent(events.TopicQueue, eventType, map[string]string{"name": "Alice"})
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}
	evt.EntryID = "entry-1"
	return evt
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatalf("client %s was disconnected", c.ID)
		}
		var received events.Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return received
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
	}
	return events.Event{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatalf("client %s should not have received an event", c.ID)
	default:
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := newTestHub()
	c := newClient("c1", "user-1", sendBuffer)

	hub.Register(c, events.TopicQueue, events.TopicNotifications)
	if hub.ClientCount() != 1 || hub.TopicCount(events.TopicQueue) != 1 {
		t.Fatalf("expected one client on queue, got clients=%d queue=%d", hub.ClientCount(), hub.TopicCount(events.TopicQueue))
	}

	hub.Unregister(c)
	hub.Unregister(c)

	if hub.ClientCount() != 0 || hub.TopicCount(events.TopicNotifications) != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-c.send; ok {
		t.Fatal("expected send channel to be closed")
	}
}

func TestHub_SubscribeIgnoresEmptyAndDuplicates(t *testing.T) {
	hub := newTestHub()
	c := newClient("c1", "", sendBuffer)
	hub.Register(c)

	hub.Subscribe(c, events.TopicQueue, "", events.TopicNotifications, events.TopicQueue)

	got := hub.Topics(c)
	if len(got) != 2 || got[0] != events.TopicNotifications || got[1] != events.TopicQueue {
		t.Fatalf("unexpected topics %v", got)
	}

	hub.Unsubscribe(c, events.TopicQueue)
	if hub.TopicCount(events.TopicQueue) != 0 || hub.TopicCount(events.TopicNotifications) != 1 {
		t.Fatal("expected only notifications to remain")
	}
}

func TestHub_SubscribeAfterUnregisterIsIgnored(t *testing.T) {
	hub := newTestHub()
	c := newClient("gone", "", sendBuffer)
	hub.Register(c)
	hub.Unregister(c)

	hub.Subscribe(c, events.TopicQueue)
	if hub.TopicCount(events.TopicQueue) != 0 {
		t.Fatal("an unregistered client must not be resubscribed")
	}
}

func TestHub_Handle(t *testing.T) {
	hub := newTestHub()
	c := newClient("c1", "", sendBuffer)
	hub.Register(c)

	var msg ClientMessage
	if err := json.Unmarshal([]byte(`{"action":"subscribe","topics":["queue","notifications"]}`), &msg); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	hub.Handle(c, msg)
	hub.Handle(c, ClientMessage{Action: "unsubscribe", Topics: []string{"notifications"}})
	hub.Handle(c, ClientMessage{Action: "bogus", Topics: []string{"notifications"}})

	if got := hub.Topics(c); len(got) != 1 || got[0] != events.TopicQueue {
		t.Fatalf("expected only queue, got %v", got)
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := newTestHub()
	a := newClient("a", "", sendBuffer)
	b := newClient("b", "", sendBuffer)
	other := newClient("other", "", sendBuffer)
	hub.Register(a, events.TopicQueue)
	hub.Register(b, events.TopicQueue)
	hub.Register(other, events.TopicNotifications)

	var publisher events.Publisher = hub
	if err := publisher.Publish(context.Background(), queueEvent(t, "queue.patient_called")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, c := range []*Client{a, b} {
		got := receive(t, c)
		if got.Type != "queue.patient_called" || got.EntryID != "entry-1" {
			t.Fatalf("client %s: unexpected event %+v", c.ID, got)
		}
	}
	expectNothing(t, other)
}

func TestHub_PublishToEmptyTopic(t *testing.T) {
	if err := newTestHub().Publish(context.Background(), events.Event{Topic: "nobody"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHub_PublishMarshalError(t *testing.T) {
	evt := events.Event{Topic: events.TopicQueue, Data: json.RawMessage(`{bad`)}
	if err := newTestHub().Publish(context.Background(), evt); err == nil {
		t.Fatal("expected marshal error for invalid raw data")
	}
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	hub := newTestHub()
	slow := newClient("slow", "", 1)
	fast := newClient("fast", "", sendBuffer)
	hub.Register(slow, events.TopicQueue)
	hub.Register(fast, events.TopicQueue)

	hub.Publish(context.Background(), queueEvent(t, "first"))
	hub.Publish(context.Background(), queueEvent(t, "second"))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected slow client to be dropped, got %d clients", hub.ClientCount())
	}
	if got := receive(t, slow); got.Type != "first" {
		t.Fatalf("expected buffered first event, got %s", got.Type)
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("expected slow client's channel to be closed")
	}
	receive(t, fast)
	receive(t, fast)
}

func TestHub_ConcurrentRegisterAndPublish(t *testing.T) {
	hub := newTestHub()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			hub.Register(newClient("concurrent", "", sendBuffer), events.TopicQueue)
		}()
		go func() {
			defer wg.Done()
			hub.Publish(context.Background(), events.Event{Topic: events.TopicQueue, Type: "queue.patient_joined"})
		}()
	}
	wg.Wait()

	if hub.ClientCount() != n {
		t.Fatalf("expected %d clients, got %d", n, hub.ClientCount())
	}
}
