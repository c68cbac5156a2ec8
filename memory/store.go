package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/internal/telemetry"
)

const maxBackups = 10

// ErrSessionNotFound is returned by Open when no memory.json exists yet for
// the given (domain, session) pair; callers should run the Initializer role
// and call Bootstrap instead.
var ErrSessionNotFound = errs.New(errs.KindInvariantViolation, "memory.open", "session memory not found")

// Store owns the single DomainMemory document for one (domain, session)
// pair: the live in-memory tree, its on-disk layout, and the mutex that
// every mutation serializes through (§4.4/§5: memory mutations serialize
// per-session; reads are unlocked copy-on-read snapshots).
type Store struct {
	domain    string
	sessionID string
	dir       string // <root>/<domain>/<session>

	mu       sync.Mutex
	doc      *Document
	goalSeq  int
	featSeq  int

	log    telemetry.Logger
	mirror DocumentStore
}

// SetLogger overrides the Store's logger, used for best-effort mirror-backend
// failures. The default is a no-op logger.
func (s *Store) SetLogger(log telemetry.Logger) {
	if log != nil {
		s.log = log
	}
}

// SetMirror wires an optional secondary DocumentStore (e.g. a Mongo-backed
// one) that every successful filesystem persist is best-effort replicated
// to. A mirror failure is logged, not surfaced: the filesystem layout
// remains the system of record.
func (s *Store) SetMirror(ds DocumentStore) {
	s.mirror = ds
}

func layout(root, domain, sessionID string) string {
	return filepath.Join(root, domain, sessionID)
}

func (s *Store) memoryPath() string    { return filepath.Join(s.dir, "memory.json") }
func (s *Store) progressLogPath() string { return filepath.Join(s.dir, "progress.log") }
func (s *Store) artifactsDir() string  { return filepath.Join(s.dir, "artifacts") }
func (s *Store) backupsDir() string    { return filepath.Join(s.dir, "backups") }

// Open resumes a session's memory from disk. It returns ErrSessionNotFound
// itself if memory.json does not yet exist for this (domain, session).
func Open(root, domain, sessionID string) (*Store, error) {
	const op = "memory.open"
	dir := layout(root, domain, sessionID)
	data, err := os.ReadFile(filepath.Join(dir, "memory.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, errs.Wrap(errs.KindInvariantViolation, op, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Errorf(errs.KindInvariantViolation, op, "parsing memory.json: %w", err)
	}
	doc.reindex()

	s := &Store{domain: domain, sessionID: sessionID, dir: dir, doc: &doc, log: telemetry.Noop().Log}
	s.recoverSequences()
	return s, nil
}

// InitializerFeature is one Feature entry in the JSON skeleton the
// Initializer role produces to bootstrap a new session's memory.
type InitializerFeature struct {
	Description string   `json:"description"`
	Criteria    []string `json:"criteria,omitempty"`
	Tests       []string `json:"tests,omitempty"`
	Priority    int      `json:"priority,omitempty"`
}

// InitializerGoal is one Goal entry in the Initializer's skeleton output.
type InitializerGoal struct {
	Description string               `json:"description"`
	Constraints []string             `json:"constraints,omitempty"`
	Features    []InitializerFeature `json:"features,omitempty"`
}

// Skeleton is the JSON shape the Initializer role's sole output must match
// (§4.4: "a JSON skeleton of Goals and Features that becomes the new memory
// document").
type Skeleton struct {
	Goals []InitializerGoal `json:"goals"`
}

// Bootstrap creates a brand-new session memory document from an
// Initializer-produced skeleton and persists it immediately.
func Bootstrap(root, domain, sessionID, description string, skeleton Skeleton, now time.Time) (*Store, error) {
	dir := layout(root, domain, sessionID)
	doc := newDocument(sessionID, domain, description, now)

	s := &Store{domain: domain, sessionID: sessionID, dir: dir, doc: doc, log: telemetry.Noop().Log}
	for _, ig := range skeleton.Goals {
		g := &Goal{
			ID:          s.nextGoalID(),
			Description: ig.Description,
			Constraints: ig.Constraints,
			Status:      GoalStatusOpen,
			Features:    []*Feature{},
			CreatedAt:   now,
		}
		for _, ifeat := range ig.Features {
			g.Features = append(g.Features, &Feature{
				ID:          s.nextFeatureID(),
				GoalID:      g.ID,
				Description: ifeat.Description,
				Criteria:    ifeat.Criteria,
				Tests:       ifeat.Tests,
				Priority:    ifeat.Priority,
				Status:      FeatureStatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		doc.Goals = append(doc.Goals, g)
	}
	doc.reindex()

	if err := os.MkdirAll(s.artifactsDir(), 0o755); err != nil {
		return nil, errs.Wrap(errs.KindInvariantViolation, "memory.bootstrap", err)
	}
	if err := os.MkdirAll(s.backupsDir(), 0o755); err != nil {
		return nil, errs.Wrap(errs.KindInvariantViolation, "memory.bootstrap", err)
	}
	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) recoverSequences() {
	for _, g := range s.doc.Goals {
		if n, ok := parseSeq(g.ID, "G"); ok && n > s.goalSeq {
			s.goalSeq = n
		}
		for _, f := range g.Features {
			if n, ok := parseSeq(f.ID, "F"); ok && n > s.featSeq {
				s.featSeq = n
			}
		}
	}
}

func parseSeq(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Store) nextGoalID() string {
	s.goalSeq++
	return fmt.Sprintf("G%d", s.goalSeq)
}

func (s *Store) nextFeatureID() string {
	s.featSeq++
	return fmt.Sprintf("F%d", s.featSeq)
}

// Snapshot returns an unlocked, deep-copied view of the current memory
// document, safe for the caller to read or format without holding the
// Store's mutex (§4.4 concurrency: "reads are unlocked snapshots").
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.clone()
}

// persistLocked writes memory.json atomically (temp file + rename) after
// rotating a backup of the previous version, then saves a copy to the mirror
// backend if one is set. It does not write progress.log; that is done by
// appendProgressLocked. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	const op = "memory.persist"
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}

	if existing, err := os.ReadFile(s.memoryPath()); err == nil {
		if err := s.rotateBackupLocked(existing); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	data = append(data, '\n')

	tmp := s.memoryPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	if err := os.Rename(tmp, s.memoryPath()); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}

	if s.mirror != nil {
		if err := s.mirror.Save(context.Background(), s.domain, s.sessionID, s.doc.clone()); err != nil {
			s.log.Warn("memory mirror backend save failed", telemetry.F("domain", s.domain), telemetry.F("session_id", s.sessionID), telemetry.F("error", err.Error()))
		}
	}
	return nil
}

func (s *Store) rotateBackupLocked(existing []byte) error {
	const op = "memory.rotate_backup"
	if err := os.MkdirAll(s.backupsDir(), 0o755); err != nil {
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	name := fmt.Sprintf("memory-%s.json", time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(s.backupsDir(), name), existing, 0o644); err != nil {
		return errs.Wrap(errs.KindInvariantViolation, op, err)
	}
	return s.pruneBackupsLocked()
}

func (s *Store) pruneBackupsLocked() error {
	entries, err := os.ReadDir(s.backupsDir())
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= maxBackups {
		return nil
	}
	sort.Strings(names)
	for _, n := range names[:len(names)-maxBackups] {
		os.Remove(filepath.Join(s.backupsDir(), n))
	}
	return nil
}
