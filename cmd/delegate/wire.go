package main

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/kairoslabs/delegate/aggregator"
	"github.com/kairoslabs/delegate/executor"
	"github.com/kairoslabs/delegate/internal/config"
	"github.com/kairoslabs/delegate/internal/telemetry"
	"github.com/kairoslabs/delegate/model"
	"github.com/kairoslabs/delegate/model/providers/anthropic"
	"github.com/kairoslabs/delegate/model/providers/openai"
	"github.com/kairoslabs/delegate/plan"
	"github.com/kairoslabs/delegate/router"
	"github.com/kairoslabs/delegate/session"
	"github.com/kairoslabs/delegate/tools"
	"github.com/kairoslabs/delegate/validator"
)

// engine holds every long-lived component the run command drives one
// query through. Built once per invocation by buildEngine. Its Executor is
// not among them: an Executor closes over one session's tool context and
// MCP multiplexer, so run.go builds one fresh per session after opening it.
type engine struct {
	cfg               *config.Config
	log               telemetry.Logger
	sessions          *session.Manager
	router            *router.Router
	validator         *validator.Validator
	registry          *tools.Registry
	roles             map[string]executor.RoleConfig
	knownRoles        map[string]bool
	escalation        *router.Profile
	escalationLimiter *rate.Limiter
	planner           *plan.Planner
	aggreg            *aggregator.Aggregator
}

// defaultTierScores is the flat per-tier capability assumed for a
// modelPool entry when config gives no other signal: spec §4.5 only
// requires tier-aware scoring, not that the config format carry scores
// explicitly, so absent better information every pool model is treated as
// progressively less suited to higher-tier (harder) tasks.
var defaultTierScores = map[int]float64{1: 0.8, 2: 0.7, 3: 0.6}

func buildEngine(cfg *config.Config, log telemetry.Logger) (*engine, error) {
	rtr := router.New(nil)

	profiles := make([]*router.Profile, 0, len(cfg.ModelPool))
	for _, entry := range cfg.ModelPool {
		client, err := openai.NewFromAPIKey(os.Getenv("LOCAL_MODEL_API_KEY"), entry.URL, entry.Model, 4096, 0.2)
		if err != nil {
			return nil, fmt.Errorf("wire model pool entry %q: %w", entry.Model, err)
		}
		maxConcurrent := int64(entry.MaxConcurrent)
		if maxConcurrent <= 0 {
			maxConcurrent = 4
		}
		profiles = append(profiles, &router.Profile{
			Endpoint:      entry.URL,
			Model:         entry.Model,
			Client:        client,
			MaxConcurrent: maxConcurrent,
			TierScores:    defaultTierScores,
		})
	}
	rtr.SetPool(profiles)

	roleConfigs := executor.DefaultRoleConfigs()
	for role, overrides := range cfg.Delegation.LoopLimitOverrides {
		rc, ok := roleConfigs[role]
		if !ok {
			rc = executor.RoleConfig{Role: role}
		}
		rc.LoopLimit = overrides
		roleConfigs[role] = rc
	}

	knownRoles := make(map[string]bool, len(roleConfigs))
	for role := range roleConfigs {
		knownRoles[role] = true
		rtr.SetRole(router.RoleConfig{Role: role, MinScore: 0.1, MinTier: 1})
	}

	var val *validator.Validator
	if cfg.Validation.Enabled {
		rubrics := validator.DefaultRubrics()
		if len(cfg.Validation.ValidateTasks) > 0 {
			filtered := make(map[string]validator.Rubric, len(cfg.Validation.ValidateTasks))
			for _, role := range cfg.Validation.ValidateTasks {
				if r, ok := rubrics[role]; ok {
					filtered[role] = r
				}
			}
			rubrics = filtered
		}
		valClient := modelByName(profiles, cfg.Validation.ValidationModel)
		if valClient == nil {
			return nil, fmt.Errorf("validation.validation_model %q not found in modelPool", cfg.Validation.ValidationModel)
		}
		val = validator.New(valClient, rubrics)
	}

	plannerClient, err := roleClient(profiles, cfg.AgentModels, "PLANNER")
	if err != nil {
		return nil, err
	}
	planner := plan.New(plannerClient, nil)

	aggClient, err := roleClient(profiles, cfg.AgentModels, "AGGREGATOR")
	if err != nil {
		return nil, err
	}
	agg := aggregator.New(aggClient, "")

	registry := tools.NewRegistry()

	storageDir := cfg.Memory.StorageDir
	if storageDir == "" {
		storageDir = "./delegate-data"
	}
	idleTimeout := time.Duration(cfg.SessionTimeout) * time.Minute

	var escalation *router.Profile
	var escalationLimiter *rate.Limiter
	if cfg.Escalation.Enabled {
		escClient, err := buildEscalationClient(cfg.Escalation)
		if err != nil {
			return nil, fmt.Errorf("wire escalation provider: %w", err)
		}
		escalation = &router.Profile{Endpoint: "escalation", Model: cfg.Escalation.Provider, Client: escClient}
		escalationLimiter = newEscalationLimiter(cfg.Escalation)
	}

	return &engine{
		cfg:               cfg,
		log:               log,
		sessions:          session.NewManager(storageDir, idleTimeout, log),
		router:            rtr,
		validator:         val,
		registry:          registry,
		roles:             roleConfigs,
		knownRoles:        knownRoles,
		escalation:        escalation,
		escalationLimiter: escalationLimiter,
		planner:           planner,
		aggreg:            agg,
	}, nil
}

// newEscalationLimiter builds the token-bucket gate for how often the paid
// escalation provider may run: Threshold is the bucket's burst capacity,
// RateLimit its refill rate in escalations per minute. Leaving both at their
// zero value (the common case — most deployments don't configure either)
// means no gate at all, preserving escalate-unconditionally-once-fallbacks-
// are-exhausted as the default. Setting just one of the two still produces a
// usable limiter: an unset RateLimit with a set Threshold never refills past
// its initial burst, an unset Threshold with a set RateLimit gets a
// single-slot bucket.
func newEscalationLimiter(cfg config.Escalation) *rate.Limiter {
	if cfg.Threshold <= 0 && cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.Threshold
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.RateLimit / 60)
	if cfg.RateLimit <= 0 {
		limit = 0
	}
	return rate.NewLimiter(limit, burst)
}

func modelByName(profiles []*router.Profile, name string) model.Client {
	if name == "" {
		if len(profiles) == 0 {
			return nil
		}
		return profiles[0].Client
	}
	for _, p := range profiles {
		if p.Model == name {
			return p.Client
		}
	}
	return nil
}

func roleClient(profiles []*router.Profile, agentModels map[string]string, role string) (model.Client, error) {
	client := modelByName(profiles, agentModels[role])
	if client == nil {
		return nil, fmt.Errorf("no model available for role %s (check agentModels.%s and modelPool)", role, role)
	}
	return client, nil
}

// buildEscalationClient constructs the paid-cloud-style escalation
// provider named by cfg.Provider. Bedrock is deliberately not one of the
// options here: see DESIGN.md for why it stays unwired from this default
// path.
func buildEscalationClient(cfg config.Escalation) (model.Client, error) {
	apiKey := config.ExpandEnv(cfg.APIKeyRef)
	switch cfg.Provider {
	case "", "anthropic":
		return anthropic.NewFromAPIKey(apiKey, anthropic.Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 4096})
	case "openai":
		return openai.NewFromAPIKey(apiKey, "", "gpt-4o", 4096, 0.2)
	default:
		return nil, fmt.Errorf("unknown escalation provider %q", cfg.Provider)
	}
}
