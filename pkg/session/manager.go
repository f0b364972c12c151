package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru"

	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/rpc"
)

const managerLogPrefix = "session:manager"

// DefaultSessionID names the session used by requests that carry no session id.
const DefaultSessionID = "default"

// DefaultRetiredLimit is how many closed session ids are remembered.
const DefaultRetiredLimit = 4096

// Manager maps session ids to sessions.
type Manager struct {
	types   TypeSource
	factory platform.HostFactory

	mu       sync.Mutex
	sessions map[string]*Session
	// retired remembers the most recently closed ids so requests against them
	// fail with RECEIVER_CLOSED rather than INVALID_REQUEST.
	retired *lru.Cache
	closed  bool
}

// NewManagerParams holds parameters for NewManager.
type NewManagerParams struct {
	Types       TypeSource
	HostFactory platform.HostFactory
	// RetiredLimit caps the remembered closed ids; 0 means DefaultRetiredLimit.
	RetiredLimit int
}

// NewManager creates a session manager.
func NewManager(params NewManagerParams) *Manager {
	limit := params.RetiredLimit
	if limit <= 0 {
		limit = DefaultRetiredLimit
	}
	retired, _ := lru.New(limit)
	return &Manager{
		types:    params.Types,
		factory:  params.HostFactory,
		sessions: make(map[string]*Session),
		retired:  retired,
	}
}

// Open starts a new session and returns its id. Apart from the default session,
// only ids issued here are accepted by Acquire.
func (m *Manager) Open() (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", rpc.NewError(rpc.CodeReceiverClosed, "Session manager is shut down")
	}
	if _, err := m.create(id); err != nil {
		return "", err
	}
	slog.Info(fmt.Sprintf("%s - opened session %s", managerLogPrefix, id))
	return id, nil
}

// Acquire returns the session for id. An empty id selects the default session,
// which is created on first use. Any other id must have been issued by Open.
func (m *Manager) Acquire(id string) (*Session, error) {
	if id == "" {
		id = DefaultSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, rpc.NewError(rpc.CodeReceiverClosed, "Session manager is shut down")
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if m.retired.Contains(id) {
		return nil, rpc.NewError(rpc.CodeReceiverClosed, fmt.Sprintf("Session %s is closed", id))
	}
	if id != DefaultSessionID {
		return nil, &rpc.Error{
			Code:    rpc.CodeInvalidRequest,
			Message: fmt.Sprintf("Unknown session %s", id),
			Details: map[string]interface{}{"session": id},
		}
	}
	return m.create(id)
}

// create builds and stores a session. Callers hold m.mu.
func (m *Manager) create(id string) (*Session, error) {
	host, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to build host for session %s: %w", managerLogPrefix, id, err)
	}
	s := New(id, host, m.types)
	m.sessions[id] = s
	slog.Debug(fmt.Sprintf("%s - created session %s", managerLogPrefix, id))
	return s, nil
}

// Close shuts down a session and forgets it. It reports whether the session
// existed. Closing the default session only resets it.
func (m *Manager) Close(id string) (bool, error) {
	if id == "" {
		id = DefaultSessionID
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if id != DefaultSessionID {
			m.retired.Add(id, struct{}{})
		}
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	err := s.ShutdownAll()
	slog.Info(fmt.Sprintf("%s - closed session %s", managerLogPrefix, id))
	return true, err
}

// CloseAll shuts down every session and refuses new ones.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var result *multierror.Error
	for _, s := range sessions {
		if err := s.ShutdownAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", s.ID(), err))
		}
	}
	slog.Info(fmt.Sprintf("%s - closed %d sessions", managerLogPrefix, len(sessions)))
	return result.ErrorOrNil()
}

// Sessions returns the ids of live sessions, sorted.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
