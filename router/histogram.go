package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Outcome is the result an Executor reports for one (model, role) dispatch,
// fed back into the Router's ranking penalty (§4.5 feedback loop).
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeEmptyResponse  Outcome = "empty_response"
	OutcomeValidationFail Outcome = "validation_fail"
	OutcomeError          Outcome = "error"
)

// failurePenaltyWeight scales the observed recent-failure rate into the
// score penalty rule 2 of §4.5 subtracts.
const failurePenaltyWeight = 0.3

// windowSize bounds how many recent outcomes contribute to a (model, role)
// pair's failure rate; older outcomes age out.
const windowSize = 20

// Histogram tracks recent per-(model, role) outcomes and converts them into
// a ranking penalty. The default is an in-memory, mutex-protected map
// (§5: "process-global, mutex-protected"); RedisHistogram is an optional
// cross-process alternative for multi-instance deployments sharing one
// failure history.
type Histogram interface {
	Record(ctx context.Context, model, role string, outcome Outcome)
	Penalty(ctx context.Context, model, role string) float64
}

type window struct {
	outcomes []Outcome
	next     int
	filled   int
}

func (w *window) push(o Outcome) {
	if cap(w.outcomes) == 0 {
		w.outcomes = make([]Outcome, windowSize)
	}
	w.outcomes[w.next] = o
	w.next = (w.next + 1) % windowSize
	if w.filled < windowSize {
		w.filled++
	}
}

func (w *window) failureRate() float64 {
	if w.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < w.filled; i++ {
		if w.outcomes[i] != OutcomeSuccess {
			failures++
		}
	}
	return float64(failures) / float64(w.filled)
}

// InMemoryHistogram is the default Histogram: a mutex-protected map of
// fixed-size sliding windows, one per (model, role) pair.
type InMemoryHistogram struct {
	mu       sync.Mutex
	windows  map[string]*window
}

// NewInMemoryHistogram returns an empty InMemoryHistogram.
func NewInMemoryHistogram() *InMemoryHistogram {
	return &InMemoryHistogram{windows: map[string]*window{}}
}

func histogramKey(model, role string) string {
	return model + "\x00" + role
}

func (h *InMemoryHistogram) Record(_ context.Context, model, role string, outcome Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := histogramKey(model, role)
	w, ok := h.windows[key]
	if !ok {
		w = &window{}
		h.windows[key] = w
	}
	w.push(outcome)
}

func (h *InMemoryHistogram) Penalty(_ context.Context, model, role string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[histogramKey(model, role)]
	if !ok {
		return 0
	}
	return w.failureRate() * failurePenaltyWeight
}

// RedisHistogram backs the same sliding-window failure rate with a Redis
// list per (model, role) key, so multiple delegation-engine processes
// observing the same model pool share one failure history instead of each
// learning its own in isolation.
type RedisHistogram struct {
	client *redis.Client
	prefix string
}

// NewRedisHistogram returns a RedisHistogram using keys under prefix
// (default "delegate:router:histogram:" if empty).
func NewRedisHistogram(client *redis.Client, prefix string) *RedisHistogram {
	if prefix == "" {
		prefix = "delegate:router:histogram:"
	}
	return &RedisHistogram{client: client, prefix: prefix}
}

func (h *RedisHistogram) key(model, role string) string {
	return fmt.Sprintf("%s%s:%s", h.prefix, sanitizeKeyPart(model), sanitizeKeyPart(role))
}

func sanitizeKeyPart(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

func (h *RedisHistogram) Record(ctx context.Context, model, role string, outcome Outcome) {
	key := h.key(model, role)
	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, key, string(outcome))
	pipe.LTrim(ctx, key, 0, windowSize-1)
	// Best-effort: a Redis hiccup should not block task dispatch, only leave
	// the histogram momentarily stale.
	_, _ = pipe.Exec(ctx)
}

func (h *RedisHistogram) Penalty(ctx context.Context, model, role string) float64 {
	vals, err := h.client.LRange(ctx, h.key(model, role), 0, windowSize-1).Result()
	if err != nil || len(vals) == 0 {
		return 0
	}
	failures := 0
	for _, v := range vals {
		if Outcome(v) != OutcomeSuccess {
			failures++
		}
	}
	return float64(failures) / float64(len(vals)) * failurePenaltyWeight
}
