package realtime

import (
	"encoding/json"
	"testing"

	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/progress"
)

func newTestClient(userID, role string) *Client {
	return &Client{userID: userID, role: role, send: make(chan []byte, 4)}
}

func TestVisibleToOwnerScoping(t *testing.T) {
	scoped := NewHub(true)
	open := NewHub(false)

	owner := newTestClient("alice", structs.RoleUser)
	other := newTestClient("bob", structs.RoleUser)
	admin := newTestClient("root", structs.RoleAdmin)

	event := &progress.Event{JobID: "job1", Owner: "alice", Status: structs.StatusProcessing, Progress: 40}

	if !scoped.visibleTo(owner, event) {
		t.Error("owner must see own events")
	}
	if scoped.visibleTo(other, event) {
		t.Error("scoped hub must hide other owners' events")
	}
	if !scoped.visibleTo(admin, event) {
		t.Error("admin must see all events")
	}
	if !open.visibleTo(other, event) {
		t.Error("unscoped hub delivers to everyone")
	}
}

func TestBroadcastEventDelivers(t *testing.T) {
	hub := NewHub(true)
	owner := newTestClient("alice", structs.RoleUser)
	other := newTestClient("bob", structs.RoleUser)
	hub.clients[owner] = true
	hub.clients[other] = true

	event := &progress.Event{JobID: "job1", Owner: "alice", Status: structs.StatusCompleted, Progress: 100}
	hub.broadcastEvent(t.Context(), event)

	select {
	case data := <-owner.send:
		var got progress.Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.JobID != "job1" || got.Progress != 100 {
			t.Errorf("unexpected event: %+v", got)
		}
	default:
		t.Fatal("owner should receive the event")
	}

	select {
	case <-other.send:
		t.Fatal("other owner must not receive the event")
	default:
	}
}

func TestBroadcastSkipsSaturatedClient(t *testing.T) {
	hub := NewHub(false)
	client := &Client{userID: "alice", role: structs.RoleUser, send: make(chan []byte)}
	hub.clients[client] = true

	// Unbuffered channel with no reader; the broadcast must not block.
	hub.broadcastEvent(t.Context(), &progress.Event{JobID: "job1", Owner: "alice"})
}
