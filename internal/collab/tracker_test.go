package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func decodePayload(t *testing.T, msg *Message, v any) {
	t.Helper()
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		t.Fatalf("decode %s payload: %v", msg.Type, err)
	}
}

type mockTransport struct {
	mu       sync.Mutex
	messages []*Message
	closed   bool
	refuse   bool
}

func (m *mockTransport) Send(msg *Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false
	}
	m.messages = append(m.messages, msg)
	return true
}

func (m *mockTransport) Close(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockTransport) byType(msgType string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.messages {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeGate struct {
	roles   map[string]Role // "presentationID/userID" -> role
	gateErr error
}

func (g *fakeGate) key(presentationID, userID string) string {
	return presentationID + "/" + userID
}

func (g *fakeGate) HasAccess(_ context.Context, presentationID, userID string) (bool, error) {
	if g.gateErr != nil {
		return false, g.gateErr
	}
	_, ok := g.roles[g.key(presentationID, userID)]
	return ok, nil
}

func (g *fakeGate) GetRole(_ context.Context, presentationID, userID string) (Role, error) {
	if g.gateErr != nil {
		return "", g.gateErr
	}
	return g.roles[g.key(presentationID, userID)], nil
}

func newTestTracker(roles map[string]Role) (*Tracker, *fakeGate) {
	gate := &fakeGate{roles: roles}
	return NewTracker(gate), gate
}

func mustJoin(t *testing.T, tr *Tracker, userID, username, presentationID string) (string, *mockTransport) {
	t.Helper()
	transport := &mockTransport{}
	connID, err := tr.Join(context.Background(), userID, username, presentationID, transport)
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return connID, transport
}

func TestJoinAccessDenied(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{})
	transport := &mockTransport{}

	_, err := tr.Join(context.Background(), "user-a", "Alice", "pres-1", transport)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if !transport.isClosed() {
		t.Error("transport should be closed on denied join")
	}
	if len(transport.byType(TypeError)) != 1 {
		t.Error("expected one error message to the rejected client")
	}
	if len(tr.conns) != 0 || len(tr.rooms) != 0 {
		t.Error("denied join must not create state")
	}
}

func TestJoinRoleUnavailable(t *testing.T) {
	tr, gate := newTestTracker(map[string]Role{"pres-1/user-a": RoleEditor})
	// Access passes but the role comes back empty, as in a revocation race.
	gate.roles["pres-1/user-a"] = ""
	transport := &mockTransport{}

	_, err := tr.Join(context.Background(), "user-a", "Alice", "pres-1", transport)
	if !errors.Is(err, ErrRoleUnavailable) {
		t.Fatalf("expected ErrRoleUnavailable, got %v", err)
	}
	if len(tr.conns) != 0 {
		t.Error("failed join must not create state")
	}
}

func TestRoomLifecycle(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
	})

	a, _ := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	b, _ := mustJoin(t, tr, "user-b", "Bob", "pres-1")

	if _, ok := tr.rooms["pres-1"]; !ok {
		t.Fatal("room should exist while members are present")
	}

	tr.Leave(a)
	if _, ok := tr.rooms["pres-1"]; !ok {
		t.Fatal("room should survive while one member remains")
	}

	tr.Leave(b)
	if _, ok := tr.rooms["pres-1"]; ok {
		t.Fatal("room should be deleted when its last member leaves")
	}
	if len(tr.conns) != 0 {
		t.Error("registry should be empty after all leaves")
	}
}

func TestUniqueConnectionIDs(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{"pres-1/user-a": RoleEditor})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := mustJoin(t, tr, "user-a", "Alice", "pres-1")
		if seen[id] {
			t.Fatalf("duplicate connection id %s", id)
		}
		seen[id] = true
	}
}

func TestJoinSnapshotIncludesSelfBroadcastExcludesSelf(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-42/user-a": RoleEditor,
		"pres-42/user-b": RoleViewer,
	})

	_, ta := mustJoin(t, tr, "user-a", "Alice", "pres-42")

	joined := ta.byType(TypeJoined)
	if len(joined) != 1 {
		t.Fatalf("expected one joined message, got %d", len(joined))
	}
	var jp JoinedPayload
	decodePayload(t, joined[0], &jp)
	if len(jp.ActiveUsers) != 1 || jp.ActiveUsers[0].UserID != "user-a" {
		t.Fatalf("first joiner should see only itself, got %+v", jp.ActiveUsers)
	}
	if jp.Role != RoleEditor {
		t.Errorf("expected editor role, got %s", jp.Role)
	}

	_, tb := mustJoin(t, tr, "user-b", "Bob", "pres-42")

	var jpB JoinedPayload
	decodePayload(t, tb.byType(TypeJoined)[0], &jpB)
	if len(jpB.ActiveUsers) != 2 {
		t.Fatalf("second joiner should see both members, got %d", len(jpB.ActiveUsers))
	}

	// A hears about B; B must not hear about itself.
	if len(ta.byType(TypeUserJoined)) != 1 {
		t.Error("existing member should receive user_joined for the new member")
	}
	if len(tb.byType(TypeUserJoined)) != 0 {
		t.Error("joiner must not receive its own join broadcast")
	}
}

func TestLeaveIdempotent(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
	})

	a, _ := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	_, tb := mustJoin(t, tr, "user-b", "Bob", "pres-1")

	tr.Leave(a)
	tr.Leave(a)

	if got := len(tb.byType(TypeUserLeft)); got != 1 {
		t.Fatalf("expected exactly one user_left broadcast, got %d", got)
	}
}

func TestViewerCannotEdit(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-42/user-a": RoleEditor,
		"pres-42/user-b": RoleViewer,
	})

	a, ta := mustJoin(t, tr, "user-a", "Alice", "pres-42")
	b, tb := mustJoin(t, tr, "user-b", "Bob", "pres-42")

	tr.Edit(b, []byte(`{"op":"insert"}`))

	if len(ta.byType(TypeEditEvent)) != 0 {
		t.Error("viewer edit must never reach other members")
	}
	if len(tb.byType(TypeError)) != 1 {
		t.Error("viewer should receive exactly one permission notice")
	}
	if tb.isClosed() {
		t.Error("permission denial must not close the connection")
	}

	tr.Edit(a, []byte(`{"op":"insert"}`))

	edits := tb.byType(TypeEditEvent)
	if len(edits) != 1 {
		t.Fatalf("editor edit should reach the viewer, got %d", len(edits))
	}
	var ep EditPayload
	decodePayload(t, edits[0], &ep)
	if ep.UserID != "user-a" || string(ep.EditData) != `{"op":"insert"}` {
		t.Errorf("unexpected edit payload: %+v", ep)
	}
	if len(ta.byType(TypeEditEvent)) != 0 {
		t.Error("edit broadcast must exclude the sender")
	}
}

func TestStatusThreshold(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{"pres-1/user-a": RoleEditor})

	base := time.Now()
	tr.now = func() time.Time { return base }
	mustJoin(t, tr, "user-a", "Alice", "pres-1")

	tr.now = func() time.Time { return base.Add(4*time.Minute + 59*time.Second) }
	users := tr.ListActive("pres-1")
	if len(users) != 1 || users[0].Status != StatusOnline {
		t.Fatalf("expected online at 4m59s, got %+v", users)
	}

	tr.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	users = tr.ListActive("pres-1")
	if len(users) != 1 || users[0].Status != StatusIdle {
		t.Fatalf("expected idle at 5m01s, got %+v", users)
	}
}

func TestSweepEvictsPastCeiling(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
	})

	base := time.Now()
	tr.now = func() time.Time { return base }
	a, ta := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	b, tb := mustJoin(t, tr, "user-b", "Bob", "pres-1")

	// B stays active; A goes silent past the ceiling.
	tr.now = func() time.Time { return base.Add(10*time.Minute + time.Second) }
	tr.Touch(b)

	tr.Sweep()

	if _, ok := tr.conns[a]; ok {
		t.Fatal("stale connection should be evicted by the sweep")
	}
	if !ta.isClosed() {
		t.Error("evicted transport should be closed")
	}
	if len(tb.byType(TypeUserLeft)) == 0 {
		t.Error("remaining member should receive user_left for the evicted one")
	}
}

func TestSweepKeepsFreshConnections(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{"pres-1/user-a": RoleEditor})

	base := time.Now()
	tr.now = func() time.Time { return base }
	a, _ := mustJoin(t, tr, "user-a", "Alice", "pres-1")

	tr.now = func() time.Time { return base.Add(9 * time.Minute) }
	tr.Sweep()

	if _, ok := tr.conns[a]; !ok {
		t.Fatal("connection under the ceiling must survive the sweep")
	}
}

func TestDisconnectLeavesOtherRoomsAlone(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-7/user-a": RoleEditor,
		"pres-8/user-b": RoleEditor,
	})

	a, _ := mustJoin(t, tr, "user-a", "Alice", "pres-7")
	mustJoin(t, tr, "user-b", "Bob", "pres-8")

	tr.Leave(a)

	if _, ok := tr.rooms["pres-7"]; ok {
		t.Error("room 7 should be removed after its only member disconnects")
	}
	if room, ok := tr.rooms["pres-8"]; !ok || len(room) != 1 {
		t.Error("room 8 must be unaffected")
	}
}

func TestRevokeClosesLiveConnections(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-5/user-u": RoleEditor,
		"pres-5/user-v": RoleViewer,
	})

	_, tu := mustJoin(t, tr, "user-u", "Uma", "pres-5")
	_, tv := mustJoin(t, tr, "user-v", "Vik", "pres-5")

	tr.Revoke("pres-5", "user-u")

	if !tu.isClosed() {
		t.Error("revoked connection should be closed")
	}
	for _, u := range tr.ListActive("pres-5") {
		if u.UserID == "user-u" {
			t.Error("revoked user must be gone from the room")
		}
	}
	left := tv.byType(TypeUserLeft)
	if len(left) != 1 {
		t.Fatalf("remaining member should see one user_left, got %d", len(left))
	}
	var lp UserLeftPayload
	decodePayload(t, left[0], &lp)
	if lp.UserID != "user-u" {
		t.Errorf("user_left should name the revoked user, got %s", lp.UserID)
	}
}

func TestUpdateRoleHitsEveryTab(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleViewer,
		"pres-1/user-b": RoleEditor,
	})

	// Same user with two tabs open.
	_, tab1 := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	_, tab2 := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	_, tb := mustJoin(t, tr, "user-b", "Bob", "pres-1")

	tr.UpdateRole("pres-1", "user-a", RoleEditor)

	for i, tab := range []*mockTransport{tab1, tab2} {
		notices := tab.byType(TypeRoleUpdated)
		if len(notices) != 1 {
			t.Fatalf("tab %d: expected one role_updated, got %d", i+1, len(notices))
		}
		var rp RoleUpdatedPayload
		decodePayload(t, notices[0], &rp)
		if rp.Role != RoleEditor {
			t.Errorf("tab %d: expected editor, got %s", i+1, rp.Role)
		}
	}
	if len(tb.byType(TypeRoleUpdated)) != 0 {
		t.Error("role_updated must go only to the affected user's connections")
	}

	for _, u := range tr.ListActive("pres-1") {
		if u.UserID == "user-a" && u.Role != RoleEditor {
			t.Errorf("live role should be updated in place, got %s", u.Role)
		}
	}
}

func TestChangeSlideBroadcast(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
	})

	a, ta := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	mustJoin(t, tr, "user-b", "Bob", "pres-1")

	tr.ChangeSlide(a, 3)

	if len(ta.byType(TypeSlideChanged)) != 0 {
		t.Error("slide_changed must exclude the sender")
	}
	for _, u := range tr.ListActive("pres-1") {
		if u.UserID == "user-a" {
			if u.CurrentSlide == nil || *u.CurrentSlide != 3 {
				t.Errorf("currentSlide should be 3, got %v", u.CurrentSlide)
			}
		}
	}
}

func TestDeadTransportImpliesLeave(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
		"pres-1/user-c": RoleViewer,
	})

	a, _ := mustJoin(t, tr, "user-a", "Alice", "pres-1")
	b, tb := mustJoin(t, tr, "user-b", "Bob", "pres-1")
	_, tc := mustJoin(t, tr, "user-c", "Cara", "pres-1")

	tb.mu.Lock()
	tb.refuse = true
	tb.mu.Unlock()

	tr.ChangeSlide(a, 1)

	if _, ok := tr.conns[b]; ok {
		t.Error("unwritable transport should have been removed")
	}
	// The failing send must not stop delivery to the healthy member.
	if len(tc.byType(TypeSlideChanged)) != 1 {
		t.Error("healthy member should still receive the broadcast")
	}
}

func TestJoinDeadTransportIsEvicted(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{
		"pres-1/user-a": RoleEditor,
		"pres-1/user-b": RoleViewer,
	})

	_, ta := mustJoin(t, tr, "user-a", "Alice", "pres-1")

	dead := &mockTransport{refuse: true}
	connID, err := tr.Join(context.Background(), "user-b", "Bob", "pres-1", dead)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, ok := tr.conns[connID]; ok {
		t.Fatal("connection whose joined reply cannot be delivered must not stay registered")
	}
	if !dead.isClosed() {
		t.Error("dead transport should be closed")
	}
	// The room saw the join, then the matching leave.
	if len(ta.byType(TypeUserJoined)) != 1 || len(ta.byType(TypeUserLeft)) != 1 {
		t.Errorf("existing member saw %d user_joined and %d user_left, want 1 and 1",
			len(ta.byType(TypeUserJoined)), len(ta.byType(TypeUserLeft)))
	}
}

func TestUnknownConnectionIsNoop(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{"pres-1/user-a": RoleEditor})
	mustJoin(t, tr, "user-a", "Alice", "pres-1")

	tr.Leave("no-such-id")
	tr.ChangeSlide("no-such-id", 1)
	tr.Edit("no-such-id", []byte(`{}`))
	tr.Touch("no-such-id")

	if len(tr.conns) != 1 {
		t.Error("unknown-connection calls must not disturb the registry")
	}
}

func TestListActiveUnknownRoom(t *testing.T) {
	tr, _ := newTestTracker(map[string]Role{})
	users := tr.ListActive("nope")
	if users == nil || len(users) != 0 {
		t.Fatalf("unknown room should yield an empty slice, got %v", users)
	}
}
