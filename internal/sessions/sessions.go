// Package sessions tracks the sessions of the host server. The PubSub core
// only consumes the liveness view: the admin session id and the set of active
// session ids.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ua-sessions")

const sessionNamespace = 1

// Session is one active session.
type Session struct {
	ID        *ua.NodeID
	Name      string
	CreatedAt time.Time
}

// Registry holds the admin session and all active sessions.
type Registry struct {
	mu      sync.RWMutex
	admin   *ua.NodeID
	active  map[string]*Session
	nowFunc func() time.Time
}

// NewRegistry creates a registry with a fresh admin session id.
func NewRegistry() *Registry {
	return &Registry{
		admin:   newSessionID(),
		active:  make(map[string]*Session),
		nowFunc: time.Now,
	}
}

func newSessionID() *ua.NodeID {
	return ua.NewGUIDNodeID(sessionNamespace, uuid.NewString())
}

// AdminSessionID returns the id of the administrative session. The admin
// session is always considered alive.
func (r *Registry) AdminSessionID() *ua.NodeID {
	return r.admin
}

// Open creates a new active session and returns its id.
func (r *Registry) Open(name string) *ua.NodeID {
	s := &Session{
		ID:        newSessionID(),
		Name:      name,
		CreatedAt: r.nowFunc(),
	}
	r.mu.Lock()
	r.active[s.ID.String()] = s
	r.mu.Unlock()
	log.Debugf("opened session %s (%s)", s.ID, name)
	return s.ID
}

// Close removes a session from the active set. Closing an unknown id is
// ignored.
func (r *Registry) Close(id *ua.NodeID) {
	if id == nil {
		return
	}
	r.mu.Lock()
	_, ok := r.active[id.String()]
	delete(r.active, id.String())
	r.mu.Unlock()
	if ok {
		log.Debugf("closed session %s", id)
	}
}

// IsActive reports whether the session is the admin session or currently open.
func (r *Registry) IsActive(id *ua.NodeID) bool {
	if id == nil {
		return false
	}
	if id.String() == r.admin.String() {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id.String()]
	return ok
}

// ActiveSessionIDs returns the ids of all open sessions, the admin session
// excluded.
func (r *Registry) ActiveSessionIDs() []*ua.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]*ua.NodeID, 0, len(r.active))
	for _, s := range r.active {
		ids = append(ids, s.ID)
	}
	return ids
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
