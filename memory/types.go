// Package memory implements the per-session Domain Memory Store: a
// structured Goals -> Features hierarchy persisted as a single JSON document
// alongside an append-only progress log, mutated only through a small set of
// invariant-checked operations.
package memory

import (
	"context"
	"time"
)

// DocumentStore is an alternative persistence backend for whole DomainMemory
// documents, keyed by (domain, sessionID). The filesystem layout (§6) is the
// default and what cmd/delegate wires up; a Store may additionally mirror
// writes to a DocumentStore (e.g. memory/backends/mongo) so a deployment can
// move DomainMemory off local disk without changing the mutation API.
type DocumentStore interface {
	Load(ctx context.Context, domain, sessionID string) (*Document, error)
	Save(ctx context.Context, domain, sessionID string, doc *Document) error
}

// FeatureStatus is the closed set of states a Feature can occupy.
type FeatureStatus string

const (
	FeatureStatusPending    FeatureStatus = "pending"
	FeatureStatusInProgress FeatureStatus = "in_progress"
	FeatureStatusCompleted  FeatureStatus = "completed"
	FeatureStatusFailed     FeatureStatus = "failed"
	FeatureStatusBlocked    FeatureStatus = "blocked"
)

// GoalStatus is the closed set of states a Goal can occupy.
type GoalStatus string

const (
	GoalStatusOpen     GoalStatus = "open"
	GoalStatusComplete GoalStatus = "complete"
)

// TestResult is one recorded outcome of a test run against a Feature.
type TestResult struct {
	TestID    string    `json:"test_id"`
	Passed    bool      `json:"passed"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feature is an atomic, testable unit of work owned by exactly one Goal.
type Feature struct {
	ID          string        `json:"id"`
	GoalID      string        `json:"goal_id"`
	Description string        `json:"description"`
	Criteria    []string      `json:"criteria,omitempty"`
	Tests       []string      `json:"tests,omitempty"`
	TestResults []TestResult  `json:"test_results,omitempty"`
	Status      FeatureStatus `json:"status"`
	Priority    int           `json:"priority,omitempty"`
	Assignee    string        `json:"assignee,omitempty"`
	Notes       []string      `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Goal is a top-level objective that owns an ordered set of Features.
type Goal struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Constraints []string   `json:"constraints,omitempty"`
	Status      GoalStatus `json:"status"`
	Features    []*Feature `json:"features"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ProgressEntry is one immutable line of the append-only progress log.
type ProgressEntry struct {
	Timestamp time.Time `json:"ts"`
	Agent     string    `json:"agent,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome,omitempty"`
	FeatureID string    `json:"feature_id,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
}

// Metadata identifies the session a DomainMemory document belongs to.
type Metadata struct {
	SessionID   string    `json:"session_id"`
	Domain      string    `json:"domain"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is the on-disk JSON shape of a DomainMemory: metadata, a
// domain-specific state bag, the Goal/Feature hierarchy, and the progress
// log, all in one file per the persisted-state layout.
type Document struct {
	Metadata Metadata        `json:"metadata"`
	State    map[string]any  `json:"state"`
	Goals    []*Goal         `json:"goals"`
	Progress []ProgressEntry `json:"progress"`

	goalIdx map[string]*Goal
	featIdx map[string]featureLoc
}

type featureLoc struct {
	goal    *Goal
	feature *Feature
}

func newDocument(sessionID, domain, description string, now time.Time) *Document {
	return &Document{
		Metadata: Metadata{
			SessionID:   sessionID,
			Domain:      domain,
			Description: description,
			CreatedAt:   now,
		},
		State:    map[string]any{},
		Goals:    []*Goal{},
		Progress: []ProgressEntry{},
	}
}

// Reindex rebuilds the lookup maps a Document needs for id-based lookups.
// Callers that construct or decode a Document outside of Store (e.g. a
// DocumentStore.Load implementation) must call this before using it as a
// live tree.
func (d *Document) Reindex() {
	d.reindex()
}

// reindex rebuilds the lookup maps after load or mutation. Callers must hold
// the owning Store's mutex.
func (d *Document) reindex() {
	d.goalIdx = make(map[string]*Goal, len(d.Goals))
	d.featIdx = make(map[string]featureLoc, len(d.Goals)*4)
	for _, g := range d.Goals {
		d.goalIdx[g.ID] = g
		for _, f := range g.Features {
			d.featIdx[f.ID] = featureLoc{goal: g, feature: f}
		}
	}
}

func (d *Document) goal(id string) (*Goal, bool) {
	g, ok := d.goalIdx[id]
	return g, ok
}

func (d *Document) feature(id string) (featureLoc, bool) {
	loc, ok := d.featIdx[id]
	return loc, ok
}

// clone produces a deep copy suitable for handing out as an unlocked,
// copy-on-read snapshot (§4.4 concurrency: reads never share the live tree).
func (d *Document) clone() *Document {
	out := &Document{
		Metadata: d.Metadata,
		State:    make(map[string]any, len(d.State)),
		Goals:    make([]*Goal, len(d.Goals)),
		Progress: make([]ProgressEntry, len(d.Progress)),
	}
	for k, v := range d.State {
		out.State[k] = v
	}
	copy(out.Progress, d.Progress)
	for i, g := range d.Goals {
		ng := &Goal{
			ID:          g.ID,
			Description: g.Description,
			Status:      g.Status,
			CreatedAt:   g.CreatedAt,
			Constraints: append([]string(nil), g.Constraints...),
			Features:    make([]*Feature, len(g.Features)),
		}
		for j, f := range g.Features {
			nf := *f
			nf.Criteria = append([]string(nil), f.Criteria...)
			nf.Tests = append([]string(nil), f.Tests...)
			nf.TestResults = append([]TestResult(nil), f.TestResults...)
			nf.Notes = append([]string(nil), f.Notes...)
			ng.Features[j] = &nf
		}
		out.Goals[i] = ng
	}
	out.reindex()
	return out
}
