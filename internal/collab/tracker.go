package collab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

type Status string

const (
	StatusOnline Status = "online"
	StatusIdle   Status = "idle"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrRoleUnavailable = errors.New("role unavailable")
)

const (
	// idleAfter is the threshold past which a connection is reported as
	// idle. It changes the reported status only.
	idleAfter = 5 * time.Minute
	// evictAfter is the hard inactivity ceiling. The sweep closes
	// connections older than this.
	evictAfter = 10 * time.Minute
	// sweepInterval is how often the sweep runs.
	sweepInterval = 30 * time.Second
)

// AccessGate answers authorization questions against the durable
// collaborator roster. It is the source of truth; the tracker caches the
// role per connection and invalidates it only through UpdateRole/Revoke.
type AccessGate interface {
	HasAccess(ctx context.Context, presentationID, userID string) (bool, error)
	// GetRole returns the user's role on the presentation. An empty role
	// or an error both mean the role is unavailable.
	GetRole(ctx context.Context, presentationID, userID string) (Role, error)
}

// Transport is the send side of one realtime connection. Send must not
// block; it reports false when the transport can no longer accept writes,
// which the tracker treats as an implicit leave. Close must be idempotent.
type Transport interface {
	Send(msg *Message) bool
	Close(reason string)
}

// connection is one live realtime session. Owned exclusively by the
// Tracker; nothing outside this package holds a reference.
type connection struct {
	id             string
	userID         string
	username       string
	presentationID string
	role           Role
	currentSlide   *int
	lastActivity   time.Time
	transport      Transport
}

// ActiveUser is the read-only presence view returned to clients.
type ActiveUser struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	CurrentSlide *int      `json:"currentSlide,omitempty"`
}

// Tracker maintains the live connection registry and the room index and
// fans presence events out to room members. All access to both structures
// goes through its methods.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]*connection         // connectionID -> connection
	rooms map[string]map[string]struct{} // presentationID -> set of connectionIDs

	gate AccessGate
	now  func() time.Time

	idleAfter  time.Duration
	evictAfter time.Duration
}

func NewTracker(gate AccessGate) *Tracker {
	return &Tracker{
		conns:      make(map[string]*connection),
		rooms:      make(map[string]map[string]struct{}),
		gate:       gate,
		now:        time.Now,
		idleAfter:  idleAfter,
		evictAfter: evictAfter,
	}
}

// Run drives the periodic sweep until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

type recipient struct {
	connID    string
	transport Transport
}

// Join authorizes the user against the gate, registers the connection, and
// replies with the room snapshot. The gate calls complete before any local
// state is touched, so a failed join leaves nothing behind.
func (t *Tracker) Join(ctx context.Context, userID, username, presentationID string, transport Transport) (string, error) {
	ok, err := t.gate.HasAccess(ctx, presentationID, userID)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("access check failed", "presentation", presentationID, "user", userID, "error", err)
		}
		transport.Send(newMessage(TypeError, ErrorPayload{Message: "access denied"}))
		transport.Close("access denied")
		return "", ErrAccessDenied
	}

	role, err := t.gate.GetRole(ctx, presentationID, userID)
	if err != nil || role == "" {
		transport.Send(newMessage(TypeError, ErrorPayload{Message: "role unavailable"}))
		transport.Close("role unavailable")
		return "", ErrRoleUnavailable
	}

	connID := uuid.New().String()
	now := t.now()
	conn := &connection{
		id:             connID,
		userID:         userID,
		username:       username,
		presentationID: presentationID,
		role:           role,
		lastActivity:   now,
		transport:      transport,
	}

	t.mu.Lock()
	t.conns[connID] = conn
	room, ok := t.rooms[presentationID]
	if !ok {
		room = make(map[string]struct{})
		t.rooms[presentationID] = room
	}
	room[connID] = struct{}{}

	active := t.listActiveLocked(presentationID)
	others := t.roomRecipientsLocked(presentationID, connID)
	t.mu.Unlock()

	delivered := transport.Send(newMessage(TypeJoined, JoinedPayload{
		ConnectionID:   connID,
		PresentationID: presentationID,
		Role:           role,
		ActiveUsers:    active,
	}))

	t.deliver(newMessage(TypeUserJoined, UserJoinedPayload{
		UserID:    userID,
		Username:  username,
		Role:      role,
		Timestamp: now,
	}), others)

	// A transport that cannot take the joined reply is already gone; the
	// room saw it join, so an immediate leave keeps the picture consistent
	// instead of waiting for the sweep.
	if !delivered {
		slog.Debug("transport not writable at join", "connection", connID)
		t.Leave(connID)
		return connID, nil
	}

	slog.Info("client joined", "user", userID, "presentation", presentationID, "connection", connID)
	return connID, nil
}

// Leave removes the connection from the registry and its room. It is
// idempotent: unknown connection ids are a silent no-op, so the three
// triggers (client leave frame, transport close, sweep) can race freely.
func (t *Tracker) Leave(connectionID string) {
	t.mu.Lock()
	conn, ok := t.conns[connectionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.conns, connectionID)

	if room, ok := t.rooms[conn.presentationID]; ok {
		delete(room, connectionID)
		if len(room) == 0 {
			delete(t.rooms, conn.presentationID)
		}
	}
	remaining := t.roomRecipientsLocked(conn.presentationID, "")
	t.mu.Unlock()

	conn.transport.Close("left")

	t.deliver(newMessage(TypeUserLeft, UserLeftPayload{
		UserID:    conn.userID,
		Username:  conn.username,
		Timestamp: t.now(),
	}), remaining)

	slog.Info("client left", "user", conn.userID, "presentation", conn.presentationID, "connection", connectionID)
}

// ChangeSlide records the sender's slide cursor and fans the change out to
// the rest of the room.
func (t *Tracker) ChangeSlide(connectionID string, slideNumber int) {
	t.mu.Lock()
	conn, ok := t.conns[connectionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	slide := slideNumber
	conn.currentSlide = &slide
	conn.lastActivity = t.now()
	userID, username, presentationID := conn.userID, conn.username, conn.presentationID
	others := t.roomRecipientsLocked(presentationID, connectionID)
	t.mu.Unlock()

	t.deliver(newMessage(TypeSlideChanged, SlideChangedPayload{
		UserID:      userID,
		Username:    username,
		SlideNumber: slideNumber,
		Timestamp:   t.now(),
	}), others)
}

// Edit broadcasts an opaque edit payload to the rest of the room. Viewers
// get a permission notice back and nothing reaches the room.
func (t *Tracker) Edit(connectionID string, payload []byte) {
	t.mu.Lock()
	conn, ok := t.conns[connectionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if conn.role == RoleViewer {
		transport := conn.transport
		t.mu.Unlock()
		transport.Send(newMessage(TypeError, ErrorPayload{Message: "permission denied: viewers cannot edit"}))
		return
	}
	conn.lastActivity = t.now()
	userID, username, presentationID := conn.userID, conn.username, conn.presentationID
	others := t.roomRecipientsLocked(presentationID, connectionID)
	t.mu.Unlock()

	t.deliver(newMessage(TypeEditEvent, EditPayload{
		UserID:    userID,
		Username:  username,
		EditData:  payload,
		Timestamp: t.now(),
	}), others)
}

// Touch refreshes the connection's activity clock. Unknown ids are a no-op.
func (t *Tracker) Touch(connectionID string) {
	t.mu.Lock()
	if conn, ok := t.conns[connectionID]; ok {
		conn.lastActivity = t.now()
	}
	t.mu.Unlock()
}

// ListActive returns the presence snapshot for a room. Unknown or empty
// rooms yield an empty slice, never an error.
func (t *Tracker) ListActive(presentationID string) []ActiveUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.listActiveLocked(presentationID)
}

func (t *Tracker) listActiveLocked(presentationID string) []ActiveUser {
	room := t.rooms[presentationID]
	users := make([]ActiveUser, 0, len(room))
	now := t.now()
	for connID := range room {
		conn, ok := t.conns[connID]
		if !ok {
			continue
		}
		status := StatusOnline
		if now.Sub(conn.lastActivity) >= t.idleAfter {
			status = StatusIdle
		}
		users = append(users, ActiveUser{
			UserID:       conn.userID,
			Username:     conn.username,
			Role:         conn.role,
			Status:       status,
			LastActivity: conn.lastActivity,
			CurrentSlide: conn.currentSlide,
		})
	}
	return users
}

// UpdateRole applies a durable roster change to every live connection for
// that user in the room and notifies each affected connection only. The
// caller has already written the new role to storage.
func (t *Tracker) UpdateRole(presentationID, userID string, newRole Role) {
	t.mu.Lock()
	var affected []recipient
	for connID := range t.rooms[presentationID] {
		conn, ok := t.conns[connID]
		if !ok || conn.userID != userID {
			continue
		}
		conn.role = newRole
		affected = append(affected, recipient{connID: connID, transport: conn.transport})
	}
	t.mu.Unlock()

	t.deliver(newMessage(TypeRoleUpdated, RoleUpdatedPayload{Role: newRole}), affected)
}

// Revoke force-closes every live connection the user has in the room. Used
// when a collaborator is removed so stale sessions do not linger until the
// sweep catches them.
func (t *Tracker) Revoke(presentationID, userID string) {
	t.mu.RLock()
	var ids []string
	for connID := range t.rooms[presentationID] {
		if conn, ok := t.conns[connID]; ok && conn.userID == userID {
			ids = append(ids, connID)
		}
	}
	t.mu.RUnlock()

	for _, id := range ids {
		t.Leave(id)
	}
}

// Sweep evicts connections idle past the inactivity ceiling. It visits a
// snapshot of the registry so concurrent joins and leaves cannot skip or
// double-process entries.
func (t *Tracker) Sweep() {
	cutoff := t.now().Add(-t.evictAfter)

	t.mu.RLock()
	var stale []string
	for connID, conn := range t.conns {
		if conn.lastActivity.Before(cutoff) {
			stale = append(stale, connID)
		}
	}
	t.mu.RUnlock()

	for _, id := range stale {
		slog.Info("evicting inactive connection", "connection", id)
		t.Leave(id)
	}
}

func (t *Tracker) roomRecipientsLocked(presentationID, excludeConnID string) []recipient {
	room := t.rooms[presentationID]
	out := make([]recipient, 0, len(room))
	for connID := range room {
		if connID == excludeConnID {
			continue
		}
		if conn, ok := t.conns[connID]; ok {
			out = append(out, recipient{connID: connID, transport: conn.transport})
		}
	}
	return out
}

// deliver sends msg to each recipient. A transport that refuses the send is
// treated as gone and removed; one dead client never blocks the rest of the
// room.
func (t *Tracker) deliver(msg *Message, recipients []recipient) {
	for _, r := range recipients {
		if !r.transport.Send(msg) {
			slog.Debug("transport not writable, leaving", "connection", r.connID)
			t.Leave(r.connID)
		}
	}
}
