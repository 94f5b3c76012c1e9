// Package watering computes the next recommended watering date and quantity
// for a plantation from its care profile, schedule state and the forecast.
package watering

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gardenwatch/internal/types"
)

const (
	DefaultQuantityML    = 500.0
	DefaultFrequencyDays = 3
)

// Config groups the calculator's tunables.
type Config struct {
	Thresholds           types.WateringThresholds
	DefaultQuantityML    float64
	DefaultFrequencyDays int
}

// DefaultThresholds returns the documented rain/temperature limits.
func DefaultThresholds() types.WateringThresholds {
	return types.WateringThresholds{
		AutoRainMM:     5,
		ReduceRainMM:   2,
		PostponeRainMM: 7,
		HighTempC:      32,
		LowTempC:       10,
	}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:           DefaultThresholds(),
		DefaultQuantityML:    DefaultQuantityML,
		DefaultFrequencyDays: DefaultFrequencyDays,
	}
}

// Result is the output of Compute.
type Result struct {
	Date     time.Time
	Quantity float64
	Details  types.WateringDetails
}

// Calculator is a pure WateringCalculator.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a Calculator. Zero defaults are replaced with the
// documented ones.
func NewCalculator(cfg Config) *Calculator {
	if cfg.DefaultQuantityML <= 0 {
		cfg.DefaultQuantityML = DefaultQuantityML
	}
	if cfg.DefaultFrequencyDays <= 0 {
		cfg.DefaultFrequencyDays = DefaultFrequencyDays
	}
	if cfg.Thresholds == (types.WateringThresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Calculator{cfg: cfg}
}

// Thresholds returns the limits this calculator applies.
func (c *Calculator) Thresholds() types.WateringThresholds {
	return c.cfg.Thresholds
}

// Compute returns the next watering recommendation as of now. forecast and
// last may be nil; missing weather simply skips the weather branches.
func (c *Calculator) Compute(p *types.Plantation, tpl *types.Template, forecast *types.Forecast, last *types.Snapshot, now time.Time) Result {
	th := c.cfg.Thresholds
	freq := c.FrequencyDays(tpl)
	today := types.StartOfDay(now)
	next := c.nextDate(p, last, freq, today)

	quantity := c.cfg.DefaultQuantityML
	if tpl != nil && tpl.WateringQuantity != nil && *tpl.WateringQuantity > 0 {
		quantity = *tpl.WateringQuantity
	}

	details := types.WateringDetails{
		Notes:         []string{},
		FrequencyDays: freq,
		Thresholds:    th,
	}

	outdoor := IsOutdoor(p, tpl)
	todayWx, _ := forecast.Today()
	tomorrowWx, _ := forecast.Tomorrow()
	rainToday, hasRainToday := todayWx.Rain()
	rainTomorrow, hasRainTomorrow := tomorrowWx.Rain()

	if outdoor && hasRainToday && rainToday >= th.AutoRainMM {
		details.AutoWateredDueToRain = true
		details.Notes = append(details.Notes, fmt.Sprintf(
			"Pluie de %.1f mm prévue aujourd'hui : arrosage naturel, prochain arrosage dans %d jour(s).",
			rainToday, freq))
		return Result{
			Date:     types.AddDays(today, freq),
			Quantity: round2(quantity),
			Details:  details,
		}
	}

	if outdoor && hasRainToday && rainToday >= th.ReduceRainMM {
		quantity *= 0.8
		details.Notes = append(details.Notes, fmt.Sprintf(
			"Pluie légère (%.1f mm) aujourd'hui : quantité réduite de 20 %%.", rainToday))
	}
	if outdoor && hasRainTomorrow && rainTomorrow >= th.PostponeRainMM {
		next = types.AddDays(next, 1)
		details.Notes = append(details.Notes, fmt.Sprintf(
			"Forte pluie (%.1f mm) prévue demain : arrosage décalé d'un jour.", rainTomorrow))
	}
	if high, ok := todayWx.MaxTemp(); ok {
		switch {
		case high >= th.HighTempC:
			quantity *= 1.2
			details.Notes = append(details.Notes, fmt.Sprintf(
				"Chaleur (%.1f °C) : quantité augmentée de 20 %%.", high))
		case high <= th.LowTempC:
			quantity *= 0.9
			details.Notes = append(details.Notes, fmt.Sprintf(
				"Fraîcheur (%.1f °C) : quantité réduite de 10 %%.", high))
		}
	}

	return Result{
		Date:     next,
		Quantity: round2(quantity),
		Details:  details,
	}
}

// nextDate resolves the reference date and applies clamping or catch-up.
// Catch-up by whole intervals is only applied when a manual watering anchors
// the schedule; otherwise a past reference is clamped to today.
func (c *Calculator) nextDate(p *types.Plantation, last *types.Snapshot, freq int, today time.Time) time.Time {
	if anchor := manualAnchor(p, last); anchor != nil {
		next := types.AddDays(types.StartOfDay(anchor.In(today.Location())), freq)
		for next.Before(today) {
			next = types.AddDays(next, freq)
		}
		return next
	}

	ref := today
	switch {
	case p.PlantedAt != nil:
		ref = types.StartOfDay(p.PlantedAt.In(today.Location()))
	case !p.PlantingDate.IsZero():
		ref = p.PlantingDay(today.Location())
	}
	if ref.Before(today) {
		return today
	}
	return ref
}

// manualAnchor returns the most recent explicit watering event, if any.
func manualAnchor(p *types.Plantation, last *types.Snapshot) *time.Time {
	if p.LastWateredAt != nil {
		return p.LastWateredAt
	}
	if last != nil && last.Details.Manual {
		t := last.CreatedAt
		return &t
	}
	return nil
}

var frequencyKeywords = []struct {
	keyword string
	days    int
}{
	{"quotidien", 1},
	{"journalier", 1},
	{"chaque jour", 1},
	{"tous les jours", 1},
	{"daily", 1},
	{"tous les 2 jours", 2},
	{"tous les deux jours", 2},
	{"hebdomadaire", 7},
	{"weekly", 7},
	{"mensuel", 30},
	{"monthly", 30},
}

var embeddedInt = regexp.MustCompile(`\d+`)

// FrequencyDays resolves the template's free-text frequency label into a
// number of days between waterings.
func (c *Calculator) FrequencyDays(tpl *types.Template) int {
	if tpl == nil {
		return c.cfg.DefaultFrequencyDays
	}
	return ParseFrequency(tpl.WateringFrequency, c.cfg.DefaultFrequencyDays)
}

// ParseFrequency maps a frequency label to days, returning fallback when the
// label cannot be resolved.
func ParseFrequency(label string, fallback int) int {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return fallback
	}
	for _, kw := range frequencyKeywords {
		if strings.Contains(s, kw.keyword) {
			return kw.days
		}
	}
	if m := embeddedInt.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// outdoorPattern matches whole location words, optionally plural, so
// "jardinière" or "parcours" do not count as outdoor.
var outdoorPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` +
	`balcon|balcony|terrasse|terrace|jardin|garden|extérieur|exterieur|` +
	`outdoor|patio|cour|yard|potager)s?(?:$|[^\p{L}\p{N}])`)

// IsOutdoor reports whether the plantation is exposed to the weather, judged
// from its location text and the template's location hint.
func IsOutdoor(p *types.Plantation, tpl *types.Template) bool {
	if outdoorPattern.MatchString(strings.ToLower(p.Location)) {
		return true
	}
	return tpl != nil && outdoorPattern.MatchString(strings.ToLower(tpl.LocationHint))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
