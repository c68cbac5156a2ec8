package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kairoslabs/delegate/internal/config"
	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/internal/telemetry"
	"github.com/kairoslabs/delegate/mcp"
	"github.com/kairoslabs/delegate/memory"
)

// defaultIdleTimeout is used when a Manager is constructed with a
// non-positive timeout; spec §6 exposes this as the sessionTimeout config
// key, in minutes.
const defaultIdleTimeout = 30 * time.Minute

// ErrMissingSessionID is returned by Manager methods given an empty or
// whitespace-only session id.
var ErrMissingSessionID = errs.New(errs.KindInvariantViolation, "session.manager", "session id is required")

// Manager tracks every session currently resident in process memory and
// runs idle-timeout GC over them (spec §5: "Sessions have idle-timeout GC;
// GC never cancels an in-flight task — it waits for quiescence, then
// releases resources").
type Manager struct {
	root        string
	idleTimeout time.Duration
	log         telemetry.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager rooted at root (the <root> of spec §6's
// persisted-state layout). A non-positive idleTimeout uses the 30-minute
// default.
func NewManager(root string, idleTimeout time.Duration, log telemetry.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	if log == nil {
		log = telemetry.Noop().Log
	}
	return &Manager{root: root, idleTimeout: idleTimeout, log: log, sessions: make(map[string]*Session)}
}

func key(domain, sessionID string) string { return domain + "/" + sessionID }

// Open resumes an existing session's resources, reusing the in-process
// Session if one is already resident or loading its memory store from
// disk otherwise. Returns memory.ErrSessionNotFound if no memory.json
// exists yet; callers should run Bootstrap instead.
func (m *Manager) Open(ctx context.Context, domain, sessionID string) (*Session, error) {
	domain, sessionID = strings.TrimSpace(domain), strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	if s, ok := m.resident(domain, sessionID); ok {
		s.Touch()
		return s, nil
	}

	mem, err := memory.Open(m.root, domain, sessionID)
	if err != nil {
		return nil, err
	}
	return m.adopt(domain, sessionID, mem), nil
}

// Bootstrap creates a brand-new session's memory store from an
// Initializer-produced skeleton and registers its resources with the
// Manager.
func (m *Manager) Bootstrap(ctx context.Context, domain, sessionID, description string, skeleton memory.Skeleton) (*Session, error) {
	domain, sessionID = strings.TrimSpace(domain), strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	mem, err := memory.Bootstrap(m.root, domain, sessionID, description, skeleton, time.Now())
	if err != nil {
		return nil, err
	}
	return m.adopt(domain, sessionID, mem), nil
}

func (m *Manager) resident(domain, sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key(domain, sessionID)]
	return s, ok
}

func (m *Manager) adopt(domain, sessionID string, mem *memory.Store) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(domain, sessionID)
	if existing, ok := m.sessions[k]; ok {
		return existing
	}
	s := newSession(domain, sessionID, mem, time.Now())
	m.sessions[k] = s
	return s
}

// StartMCP connects a session's multiplexer to the configured MCP servers,
// translating the engine's config.MCPServerConfig (the on-disk mcpServers
// shape) into mcp.ServerConfig (the multiplexer's transport shape).
func (m *Manager) StartMCP(ctx context.Context, s *Session, servers map[string]config.MCPServerConfig) error {
	return s.MCP.Start(ctx, toMCPServerConfigs(servers))
}

func toMCPServerConfigs(servers map[string]config.MCPServerConfig) map[string]mcp.ServerConfig {
	out := make(map[string]mcp.ServerConfig, len(servers))
	for name, sc := range servers {
		if !sc.IsEnabled() {
			continue
		}
		out[name] = mcp.ServerConfig{
			Type:    sc.Transport,
			Command: sc.Command,
			Args:    sc.Args,
			Env:     sc.Env,
			URL:     sc.URL,
		}
	}
	return out
}

// Close releases one session's in-process resources immediately,
// regardless of idle time, and forgets it. Used for an explicit
// end-session request rather than idle GC.
func (m *Manager) Close(domain, sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[key(domain, sessionID)]
	if ok {
		delete(m.sessions, key(domain, sessionID))
	}
	m.mu.Unlock()
	if ok {
		s.release()
	}
}

// GC releases every resident session that has been quiescent (no
// in-flight tasks) for at least the Manager's idle timeout. It never
// forces a session to quiesce; a busy session is simply skipped and
// retried on the next GC pass.
func (m *Manager) GC(now time.Time) {
	var toRelease []*Session

	m.mu.Lock()
	for k, s := range m.sessions {
		if !s.Quiescent() {
			continue
		}
		if s.idleFor(now) < m.idleTimeout {
			continue
		}
		toRelease = append(toRelease, s)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	for _, s := range toRelease {
		s.release()
	}
}

// Run launches a blocking GC loop that wakes every interval until ctx is
// canceled. Intended to run in its own goroutine for the lifetime of the
// process.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.GC(now)
		}
	}
}
