// Package router implements the Model Router (spec §4.5): given an agent
// role and a task description, it ranks a pool of (endpoint, model,
// concurrency) entries by empirical per-dimension scores and a recent
// failure history, returning a primary model plus ordered fallbacks.
package router

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kairoslabs/delegate/internal/errs"
	"github.com/kairoslabs/delegate/model"
)

// Dimension is a named quality axis a model is scored on for a role, e.g.
// "code_quality", "instruction_following", "reasoning".
type Dimension string

// Profile is one (endpoint, model) entry in the Router's pool.
type Profile struct {
	Endpoint      string
	Model         string
	Client        model.Client
	MaxConcurrent int64

	// SmallParameterModel marks a model with fewer than ~7B parameters,
	// which takes a score penalty on tier-3 tasks (§4.5).
	SmallParameterModel bool

	// TierScores maps a task tier (1, 2, 3) to this model's general
	// capability score at that tier, in [0, 1].
	TierScores map[int]float64

	// Dimensions maps a Dimension name to this model's score on it, in
	// [0, 1]. A role's critical/important dimensions are looked up here.
	Dimensions map[Dimension]float64

	// AvgLatencyMS is this model's observed average response latency,
	// used as the final tie-breaker (lower is preferred).
	AvgLatencyMS float64
}

func (p *Profile) dimension(d Dimension) float64 {
	return p.Dimensions[d]
}

// RoleConfig is the per-agent-role selection policy (§4.5).
type RoleConfig struct {
	Role string

	// MinScore is the floor a candidate's tier-T TierScore must clear.
	MinScore float64
	// MinTier is the minimum task tier this role's models must support
	// (a model lacking a TierScores entry for a tier at or above MinTier
	// is not eligible for this role at all).
	MinTier int
	// CriticalDimensions must each exceed CriticalFloor or the model is
	// disqualified outright.
	CriticalDimensions []Dimension
	// CriticalFloor is the per-role threshold every critical dimension
	// must exceed.
	CriticalFloor float64
	// ImportantDimensions are summed as a tiebreaker among candidates
	// that already passed the critical-dimension filter.
	ImportantDimensions []Dimension
}

// DefaultFallbackCount is how many fallbacks Select returns after the
// primary when the caller doesn't override K (§4.5: "up to K (default 2)").
const DefaultFallbackCount = 2

// Router ranks a model pool for each agent role and tracks per-endpoint
// concurrency and per-(model,role) failure history.
type Router struct {
	mu    sync.RWMutex
	pool  []*Profile
	roles map[string]RoleConfig

	histogram Histogram

	slotsMu sync.Mutex
	slots   map[string]*semaphore.Weighted
}

// New constructs a Router. A nil histogram defaults to an in-memory one.
func New(histogram Histogram) *Router {
	if histogram == nil {
		histogram = NewInMemoryHistogram()
	}
	return &Router{
		roles:     map[string]RoleConfig{},
		histogram: histogram,
		slots:     map[string]*semaphore.Weighted{},
	}
}

// SetPool replaces the Router's model pool wholesale.
func (r *Router) SetPool(pool []*Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = pool

	r.slotsMu.Lock()
	defer r.slotsMu.Unlock()
	r.slots = make(map[string]*semaphore.Weighted, len(pool))
	for _, p := range pool {
		n := p.MaxConcurrent
		if n <= 0 {
			n = 1
		}
		r.slots[p.Endpoint] = semaphore.NewWeighted(n)
	}
}

// SetRole registers (or replaces) the selection policy for an agent role.
func (r *Router) SetRole(cfg RoleConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[cfg.Role] = cfg
}

// Selection is the result of Select: a primary model and its ordered
// fallbacks.
type Selection struct {
	Primary   *Profile
	Fallbacks []*Profile
	Tier      int
}

type scored struct {
	profile   *Profile
	score     float64
	important float64
}

// Select ranks the pool for role against a task description, returning a
// primary plus up to k fallbacks (k<=0 uses DefaultFallbackCount).
func (r *Router) Select(ctx context.Context, role, taskDescription string, k int) (*Selection, error) {
	const op = "router.select"
	if k <= 0 {
		k = DefaultFallbackCount
	}

	r.mu.RLock()
	cfg, ok := r.roles[role]
	pool := make([]*Profile, len(r.pool))
	copy(pool, r.pool)
	r.mu.RUnlock()
	if !ok {
		return nil, errs.Errorf(errs.KindUnknownAgent, op, "no selection policy registered for role %q", role)
	}

	tier := EstimateTier(taskDescription)

	candidates := make([]scored, 0, len(pool))
	for _, p := range pool {
		tierScore, hasTier := p.TierScores[tier]
		if !hasTier || tierScore < cfg.MinScore {
			continue
		}
		if !p.supportsTier(cfg.MinTier) {
			continue
		}
		if disqualifiedByCriticalFloor(p, cfg) {
			continue
		}

		adjusted := tierScore
		if tier == 3 && p.SmallParameterModel {
			adjusted *= 0.7
		}

		score := 0.6*adjusted + 0.4*meanDimensions(p, cfg.CriticalDimensions)
		score -= r.histogram.Penalty(ctx, p.Model, role)

		important := 0.0
		for _, d := range cfg.ImportantDimensions {
			important += p.dimension(d)
		}

		candidates = append(candidates, scored{profile: p, score: score, important: important})
	}

	if len(candidates) == 0 {
		return nil, errs.Errorf(errs.KindEscalationUnavailable, op, "no model in the pool qualifies for role %q at tier %d", role, tier)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].important != candidates[j].important {
			return candidates[i].important > candidates[j].important
		}
		return candidates[i].profile.AvgLatencyMS < candidates[j].profile.AvgLatencyMS
	})

	sel := &Selection{Primary: candidates[0].profile, Tier: tier}
	for i := 1; i < len(candidates) && len(sel.Fallbacks) < k; i++ {
		sel.Fallbacks = append(sel.Fallbacks, candidates[i].profile)
	}
	return sel, nil
}

func (p *Profile) supportsTier(minTier int) bool {
	if minTier <= 0 {
		return true
	}
	for tier := range p.TierScores {
		if tier >= minTier {
			return true
		}
	}
	return false
}

func disqualifiedByCriticalFloor(p *Profile, cfg RoleConfig) bool {
	for _, d := range cfg.CriticalDimensions {
		if p.dimension(d) < cfg.CriticalFloor {
			return true
		}
	}
	return false
}

func meanDimensions(p *Profile, dims []Dimension) float64 {
	if len(dims) == 0 {
		return 0
	}
	total := 0.0
	for _, d := range dims {
		total += p.dimension(d)
	}
	return total / float64(len(dims))
}

// ReportOutcome feeds an Executor's observed (model, role) outcome into the
// Router's failure history, used by Select's ranking penalty.
func (r *Router) ReportOutcome(ctx context.Context, modelName, role string, outcome Outcome) {
	r.histogram.Record(ctx, modelName, role, outcome)
}

// AcquireSlot blocks until a concurrency slot for endpoint is available, or
// ctx is canceled. Callers must call ReleaseSlot exactly once per successful
// Acquire.
func (r *Router) AcquireSlot(ctx context.Context, endpoint string) error {
	r.slotsMu.Lock()
	sem, ok := r.slots[endpoint]
	r.slotsMu.Unlock()
	if !ok {
		return nil
	}
	return sem.Acquire(ctx, 1)
}

// ReleaseSlot releases a concurrency slot acquired via AcquireSlot.
func (r *Router) ReleaseSlot(endpoint string) {
	r.slotsMu.Lock()
	sem, ok := r.slots[endpoint]
	r.slotsMu.Unlock()
	if ok {
		sem.Release(1)
	}
}
