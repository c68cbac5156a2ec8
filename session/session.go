// Package session owns the per-session resources a plan run needs: the
// Goals→Features domain-memory store, the MCP transport multiplexer, and
// the bounded artifact-execution ring (spec §3/§5/§6). A Session is the
// durable conversational container; the Manager tracks which sessions are
// currently resident in process memory and garbage-collects idle ones.
package session

import (
	"sync"
	"time"

	"github.com/kairoslabs/delegate/artifact"
	"github.com/kairoslabs/delegate/mcp"
	"github.com/kairoslabs/delegate/memory"
	"github.com/kairoslabs/delegate/tools"
)

// Session is one (domain, sessionID) pair's live, in-process resources.
// Safe for concurrent use: Memory and MCP are already internally
// synchronized, and Session adds its own bookkeeping for idle-timeout GC.
type Session struct {
	ID     string
	Domain string

	Memory    *memory.Store
	MCP       *mcp.Multiplexer
	Artifacts *artifact.Ring

	CreatedAt time.Time

	mu           sync.Mutex
	lastActiveAt time.Time
	inFlight     int
}

func newSession(domain, id string, mem *memory.Store, now time.Time) *Session {
	return &Session{
		ID:           id,
		Domain:       domain,
		Memory:       mem,
		MCP:          mcp.New(nil),
		Artifacts:    artifact.NewRing(0),
		CreatedAt:    now,
		lastActiveAt: now,
	}
}

// BeginTask marks one task as in-flight against this session and touches
// its last-active time. Every BeginTask must be matched by exactly one
// EndTask.
func (s *Session) BeginTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	s.lastActiveAt = time.Now()
}

// EndTask reports that one in-flight task has reached a terminal state.
func (s *Session) EndTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.lastActiveAt = time.Now()
}

// Touch refreshes the session's last-active time without an associated
// task, e.g. for read-only queries against its memory store.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// Quiescent reports whether the session currently has no in-flight tasks,
// the precondition spec §5 places on idle-timeout GC: "GC never cancels an
// in-flight task — it waits for quiescence, then releases resources."
func (s *Session) Quiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight == 0
}

// idleFor reports how long it has been since the session's last BeginTask,
// EndTask or Touch, whether or not a task is still in flight.
func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActiveAt)
}

// release tears down the session's suspending resources. Per spec §5,
// this must only ever be called from the scheduling context that owns the
// session (here, the Manager's GC loop, which never runs concurrently
// with a session's own in-flight tasks by construction of Quiescent).
func (s *Session) release() {
	s.MCP.Close()
}

// ToolContext builds the tools.Context a task's built-in tool calls
// dispatch through, bound to this session's own memory store so a
// memory-mutating tool call (spec §4.4) never touches another session's
// state.
func (s *Session) ToolContext(workspaceRoot string, cfg tools.ConfigAccessor) *tools.Context {
	return &tools.Context{WorkspaceRoot: workspaceRoot, Memory: s.Memory, Config: cfg}
}
