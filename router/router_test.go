package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kairoslabs/delegate/internal/errs"
)

func basicRouter() *Router {
	r := New(nil)
	r.SetPool([]*Profile{
		{
			Endpoint:      "local",
			Model:         "local-small",
			MaxConcurrent: 4,
			TierScores:    map[int]float64{1: 0.9, 2: 0.8, 3: 0.7},
			Dimensions:    map[Dimension]float64{"code_quality": 0.8, "instruction_following": 0.7},
		},
		{
			Endpoint:            "local",
			Model:               "local-tiny",
			MaxConcurrent:       4,
			SmallParameterModel: true,
			TierScores:          map[int]float64{1: 0.85, 2: 0.6, 3: 0.6},
			Dimensions:          map[Dimension]float64{"code_quality": 0.5, "instruction_following": 0.6},
		},
		{
			Endpoint:      "cloud",
			Model:         "cloud-big",
			MaxConcurrent: 2,
			TierScores:    map[int]float64{1: 0.95, 2: 0.95, 3: 0.95},
			Dimensions:    map[Dimension]float64{"code_quality": 0.95, "instruction_following": 0.9},
			AvgLatencyMS:  800,
		},
	})
	r.SetRole(RoleConfig{
		Role:                "CODER",
		MinScore:            0.5,
		MinTier:             1,
		CriticalDimensions:  []Dimension{"code_quality"},
		CriticalFloor:       0.4,
		ImportantDimensions: []Dimension{"instruction_following"},
	})
	return r
}

func TestSelectUnknownRoleErrors(t *testing.T) {
	r := basicRouter()
	_, err := r.Select(context.Background(), "NOPE", "do something", 0)
	require.Error(t, err)
	require.Equal(t, errs.KindUnknownAgent, errs.KindOf(err))
}

func TestSelectRanksPrimaryByWeightedScore(t *testing.T) {
	r := basicRouter()
	sel, err := r.Select(context.Background(), "CODER", "write a helper function", 0)
	require.NoError(t, err)
	require.Equal(t, "cloud-big", sel.Primary.Model)
	require.Len(t, sel.Fallbacks, 2)
}

func TestSelectAppliesSmallModelTierThreePenalty(t *testing.T) {
	r := basicRouter()
	sel, err := r.Select(context.Background(), "CODER", "batch process each file in the repo", 0)
	require.NoError(t, err)
	require.Equal(t, 3, sel.Tier)
	require.NotEqual(t, "local-tiny", sel.Primary.Model, "the tier-3 small-model penalty should push local-tiny out of first place")
}

func TestSelectDisqualifiesBelowCriticalFloor(t *testing.T) {
	r := New(nil)
	r.SetPool([]*Profile{
		{Endpoint: "e", Model: "weak", MaxConcurrent: 1, TierScores: map[int]float64{1: 0.9}, Dimensions: map[Dimension]float64{"code_quality": 0.1}},
	})
	r.SetRole(RoleConfig{Role: "CODER", MinScore: 0.1, CriticalDimensions: []Dimension{"code_quality"}, CriticalFloor: 0.5})

	_, err := r.Select(context.Background(), "CODER", "task", 0)
	require.Error(t, err)
	require.Equal(t, errs.KindEscalationUnavailable, errs.KindOf(err))
}

func TestReportOutcomePenalizesSubsequentSelection(t *testing.T) {
	r := New(nil)
	r.SetPool([]*Profile{
		{Endpoint: "a", Model: "model-a", MaxConcurrent: 1, TierScores: map[int]float64{1: 0.9}, Dimensions: map[Dimension]float64{}},
		{Endpoint: "b", Model: "model-b", MaxConcurrent: 1, TierScores: map[int]float64{1: 0.89}, Dimensions: map[Dimension]float64{}},
	})
	r.SetRole(RoleConfig{Role: "READER", MinScore: 0.1, MinTier: 1})

	sel, err := r.Select(context.Background(), "READER", "read a file", 0)
	require.NoError(t, err)
	require.Equal(t, "model-a", sel.Primary.Model)

	for i := 0; i < 10; i++ {
		r.ReportOutcome(context.Background(), "model-a", "READER", OutcomeError)
	}

	sel, err = r.Select(context.Background(), "READER", "read a file", 0)
	require.NoError(t, err)
	require.Equal(t, "model-b", sel.Primary.Model, "repeated failures for model-a should drop it below model-b")
}

func TestAcquireReleaseSlotBoundsConcurrency(t *testing.T) {
	r := New(nil)
	r.SetPool([]*Profile{{Endpoint: "solo", Model: "m", MaxConcurrent: 1}})

	require.NoError(t, r.AcquireSlot(context.Background(), "solo"))

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	err := r.AcquireSlot(ctx, "solo")
	require.Error(t, err, "a second acquire must block until the first releases")

	r.ReleaseSlot("solo")
	require.NoError(t, r.AcquireSlot(context.Background(), "solo"))
}

func TestEstimateTierKeywords(t *testing.T) {
	require.Equal(t, 1, EstimateTier("say hello"))
	require.Equal(t, 2, EstimateTier("read the file, then summarize it"))
	require.Equal(t, 3, EstimateTier("batch convert each file to png"))
}
