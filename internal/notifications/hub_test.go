package notifications

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	payloads [][]byte
	sendErr  error
	closed   bool
}

func (f *fakeSink) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestHubConnectDisconnectLeavesNoResidue(t *testing.T) {
	hub := NewHub()

	first := &fakeSink{}
	second := &fakeSink{}
	hub.Connect("user-1", first)
	hub.Connect("user-1", second)
	require.Equal(t, 2, hub.ConnectionCount("user-1"))

	hub.Disconnect("user-1", first)
	hub.Disconnect("user-1", second)
	require.Equal(t, 0, hub.ConnectionCount("user-1"))

	hub.mu.RLock()
	_, exists := hub.clients["user-1"]
	hub.mu.RUnlock()
	require.False(t, exists, "empty connection set must be pruned")
}

func TestHubPushWithoutConnectionsIsNoop(t *testing.T) {
	hub := NewHub()
	require.NotPanics(t, func() {
		hub.Push("nobody", Event{Type: "activity_created", Text: "hello"})
	})
}

func TestHubPushDeliversToAllConnections(t *testing.T) {
	hub := NewHub()

	phone := &fakeSink{}
	laptop := &fakeSink{}
	hub.Connect("user-1", phone)
	hub.Connect("user-1", laptop)

	hub.Push("user-1", Event{Type: "activity_created", Text: "created", CreatedAt: time.Now()})

	require.Equal(t, 1, phone.received())
	require.Equal(t, 1, laptop.received())

	var event Event
	require.NoError(t, json.Unmarshal(phone.payloads[0], &event))
	require.Equal(t, "activity_created", event.Type)
	require.Equal(t, "created", event.Text)
}

func TestHubPushRemovesDeadConnection(t *testing.T) {
	hub := NewHub()

	dead := &fakeSink{sendErr: errors.New("connection reset")}
	live := &fakeSink{}
	hub.Connect("user-1", dead)
	hub.Connect("user-1", live)

	hub.Push("user-1", Event{Type: "activity_updated", Text: "updated"})

	require.Equal(t, 1, live.received())
	require.Equal(t, 1, hub.ConnectionCount("user-1"))
	require.True(t, dead.closed)

	// The dead connection is gone; a second push only reaches the live one.
	hub.Push("user-1", Event{Type: "activity_updated", Text: "again"})
	require.Equal(t, 2, live.received())
}

func TestHubPushDoesNotTouchOtherUsers(t *testing.T) {
	hub := NewHub()

	alice := &fakeSink{}
	bob := &fakeSink{}
	hub.Connect("alice", alice)
	hub.Connect("bob", bob)

	hub.PushMany([]string{"alice"}, Event{Type: "rule_overdue", Text: "overdue"})

	require.Equal(t, 1, alice.received())
	require.Equal(t, 0, bob.received())
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n%4)
			sink := &fakeSink{}
			hub.Connect(userID, sink)
			hub.Push(userID, Event{Type: "activity_created", Text: "ping"})
			hub.Disconnect(userID, sink)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.Equal(t, 0, hub.ConnectionCount(fmt.Sprintf("user-%d", i)))
	}
}
