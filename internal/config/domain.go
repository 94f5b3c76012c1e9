package config

import (
	"time"

	"gardenwatch/internal/alerts"
	"gardenwatch/internal/lifecycle"
	"gardenwatch/internal/runstate"
	"gardenwatch/internal/watering"
)

// Location returns the scheduler timezone. Validate has already checked the
// name, so a failure here falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LifecycleCalculatorConfig maps the env group onto the calculator's config.
func (c *Config) LifecycleCalculatorConfig() lifecycle.Config {
	thresholds := make([]float64, len(c.Lifecycle.StageThresholds))
	copy(thresholds, c.Lifecycle.StageThresholds)
	return lifecycle.Config{
		StageThresholds:    thresholds,
		DefaultHarvestDays: c.Lifecycle.DefaultHarvestDays,
	}
}

// WateringCalculatorConfig maps the env group onto the calculator's config.
func (c *Config) WateringCalculatorConfig() watering.Config {
	return watering.Config{
		Thresholds:           c.Watering.Thresholds,
		DefaultQuantityML:    c.Watering.DefaultQuantityML,
		DefaultFrequencyDays: c.Watering.DefaultFrequencyDays,
	}
}

// AlertEngineConfig maps the env group onto the rule engine's config.
func (c *Config) AlertEngineConfig() alerts.Config {
	a := c.Alerts
	return alerts.Config{
		FrostC:                    a.FrostC,
		FrostUrgentC:              a.FrostUrgentC,
		HeatC:                     a.HeatC,
		HeatUrgentC:               a.HeatUrgentC,
		HeatwaveDays:              a.HeatwaveDays,
		HeatwaveWindowDays:        a.HeatwaveWindowDays,
		RainPostponeMM:            a.RainPostponeMM,
		DrainageSingleDayMM:       a.DrainageSingleDayMM,
		DrainageTwoDayMM:          a.DrainageTwoDayMM,
		MissedWateringDays:        a.MissedWateringDays,
		FertilizationIntervalDays: a.FertilizationIntervalDays,
		MorningCutoff:             a.MorningCutoff,
		EveningStart:              a.EveningStart,
		EveningEnd:                a.EveningEnd,
		AdviceCooldown:            a.AdviceCooldown,
	}
}

// GuardConfig maps the scheduler group onto the run-state guard's config.
func (c *Config) GuardConfig() runstate.Config {
	return runstate.Config{
		Key:       c.Scheduler.RunStateKey,
		Staleness: c.Scheduler.LockStaleness,
	}
}
