// Package lifecycle computes a plantation's growth progression and stage.
//
// Progression is the share of the template's expected harvest time that has
// elapsed since the planting was confirmed, expressed as a percentage clamped
// to [0, 100]. Stages are ordered buckets over that percentage. An unconfirmed
// plantation is always at 0 % in the "awaiting planting" stage.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"gardenwatch/internal/types"
)

// Stage labels, in growth order.
const (
	StageAwaitingPlanting = "En attente de plantation"
	StageGermination      = "Germination"
	StageGrowth           = "Croissance"
	StageFlowering        = "Floraison"
	StageMaturity         = "Maturité"
	StageHarvestReady     = "Prêt à récolter"
)

// bucketStages are the stages below 100 %; StageHarvestReady is reached only
// at exactly 100.
var bucketStages = []string{StageGermination, StageGrowth, StageFlowering, StageMaturity}

// DefaultStageThresholds are the progression percentages at which Croissance,
// Floraison and Maturité begin. Germination covers [0, first threshold).
var DefaultStageThresholds = []float64{10, 40, 70}

// DefaultHarvestDays is used when a template has no usable harvest duration.
const DefaultHarvestDays = 90

// Config holds the stage bucket boundaries.
type Config struct {
	// StageThresholds must hold len(bucketStages)-1 strictly ascending values
	// inside (0, 100).
	StageThresholds []float64
	// DefaultHarvestDays replaces a template's non-positive harvest duration.
	DefaultHarvestDays int
}

// DefaultConfig returns the documented default buckets.
func DefaultConfig() Config {
	return Config{
		StageThresholds:    append([]float64(nil), DefaultStageThresholds...),
		DefaultHarvestDays: DefaultHarvestDays,
	}
}

// Result is the output of Compute.
type Result struct {
	Progression float64
	Stage       string
	Details     types.LifecycleDetails
}

// Calculator is a pure LifecycleCalculator. It is safe for concurrent use.
type Calculator struct {
	thresholds  []float64
	harvestDays int
}

// NewCalculator validates cfg and returns a Calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if len(cfg.StageThresholds) == 0 {
		cfg.StageThresholds = DefaultStageThresholds
	}
	if len(cfg.StageThresholds) != len(bucketStages)-1 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidArgument,
			fmt.Sprintf("expected %d stage thresholds, got %d", len(bucketStages)-1, len(cfg.StageThresholds)), nil)
	}
	prev := 0.0
	for _, th := range cfg.StageThresholds {
		if th <= prev || th >= 100 {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidArgument,
				fmt.Sprintf("stage thresholds must be ascending within (0, 100): %v", cfg.StageThresholds), nil)
		}
		prev = th
	}
	if cfg.DefaultHarvestDays <= 0 {
		cfg.DefaultHarvestDays = DefaultHarvestDays
	}
	return &Calculator{
		thresholds:  append([]float64(nil), cfg.StageThresholds...),
		harvestDays: cfg.DefaultHarvestDays,
	}, nil
}

// Compute derives progression and stage for p as of now. now's location
// defines the calendar day.
func (c *Calculator) Compute(p *types.Plantation, tpl *types.Template, now time.Time) Result {
	if !p.Confirmed() {
		return Result{
			Progression: 0,
			Stage:       StageAwaitingPlanting,
			Details: types.LifecycleDetails{
				StageSource: types.StageSourcePending,
				Explanation: "Plantation non confirmée : la progression démarre à la mise en terre.",
			},
		}
	}

	harvest := c.harvestDays
	fallback := true
	if tpl != nil && tpl.HarvestDays > 0 {
		harvest = tpl.HarvestDays
		fallback = false
	}

	elapsed := types.DaysBetween(*p.PlantedAt, now)
	if elapsed < 0 {
		elapsed = 0
	}

	progression := progressionFor(elapsed, harvest)
	explanation := fmt.Sprintf("%d jour(s) écoulé(s) sur %d jusqu'à la récolte.", elapsed, harvest)
	if fallback {
		explanation += fmt.Sprintf(" Durée par défaut de %d jours utilisée.", harvest)
	}

	return Result{
		Progression: progression,
		Stage:       c.stageFor(progression),
		Details: types.LifecycleDetails{
			StageSource: types.StageSourceDefault,
			ElapsedDays: elapsed,
			HarvestDays: harvest,
			Explanation: explanation,
		},
	}
}

// progressionFor returns elapsed/harvest as a 2-decimal percentage. It reaches
// 100 only when elapsed >= harvest, even where rounding would say otherwise.
func progressionFor(elapsed, harvest int) float64 {
	if elapsed >= harvest {
		return 100
	}
	pct := math.Round(float64(elapsed)/float64(harvest)*100*100) / 100
	if pct >= 100 {
		pct = 99.99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

func (c *Calculator) stageFor(progression float64) string {
	if progression >= 100 {
		return StageHarvestReady
	}
	for i, th := range c.thresholds {
		if progression < th {
			return bucketStages[i]
		}
	}
	return bucketStages[len(bucketStages)-1]
}
