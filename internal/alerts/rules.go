package alerts

import (
	"fmt"
	"strings"

	"gardenwatch/internal/types"
)

// candidate is what a rule proposes once its guard passes. The engine owns
// dedup and persistence.
type candidate struct {
	typ      types.NotificationType
	priority types.Priority
	title    string
	message  string

	// windowDays is the dedup lookback in calendar days. Ignored when
	// unreadDedup is set.
	windowDays  int
	unreadDedup bool
}

type rule struct {
	name     string
	reminder bool
	check    func(ev *evaluation) *candidate
}

// defaultRules returns the evaluation order.
func defaultRules() []rule {
	return []rule{
		{name: "upcoming_planting", check: upcomingPlanting},
		{name: "planting_due_today", check: plantingDueToday},
		{name: "planting_overdue", check: plantingOverdue},
		{name: "frost", check: frost},
		{name: "heat", check: heat},
		{name: "heatwave", check: heatwave},
		{name: "rain_postponement", check: rainPostponement},
		{name: "excess_rain_drainage", check: excessRainDrainage},
		{name: "missed_watering", check: missedWatering},
		{name: "fertilization", check: fertilization},
		{name: "watering_morning", reminder: true, check: wateringMorning},
		{name: "watering_evening", reminder: true, check: wateringEvening},
	}
}

func plantName(ev *evaluation) string {
	if ev.tpl != nil && ev.tpl.Name != "" {
		return ev.tpl.Name
	}
	return "votre plantation"
}

// daysUntilStart is negative once the planned planting date has passed.
func daysUntilStart(ev *evaluation) int {
	return types.DaysBetween(ev.today, ev.p.PlantingDay(ev.today.Location()))
}

// -----------------------------------------------------------------------------
// Planting rules (unconfirmed plantations only)
// -----------------------------------------------------------------------------

func upcomingPlanting(ev *evaluation) *candidate {
	if ev.p.Confirmed() {
		return nil
	}
	switch daysUntilStart(ev) {
	case 2:
		return &candidate{
			typ:        types.NotifPlantingReminder2d,
			priority:   types.PriorityInfo,
			title:      "Plantation dans 2 jours",
			message:    fmt.Sprintf("Préparez le sol : la plantation de %s est prévue dans 2 jours.", plantName(ev)),
			windowDays: 1,
		}
	case 1:
		return &candidate{
			typ:        types.NotifPlantingReminder1d,
			priority:   types.PriorityImportant,
			title:      "Plantation demain",
			message:    fmt.Sprintf("La plantation de %s est prévue demain.", plantName(ev)),
			windowDays: 1,
		}
	}
	return nil
}

func plantingDueToday(ev *evaluation) *candidate {
	if ev.p.Confirmed() || daysUntilStart(ev) != 0 {
		return nil
	}
	return &candidate{
		typ:        types.NotifPlantingDueToday,
		priority:   types.PriorityImportant,
		title:      "C'est le jour de planter",
		message:    fmt.Sprintf("La plantation de %s est prévue aujourd'hui. Confirmez-la une fois en terre.", plantName(ev)),
		windowDays: 1,
	}
}

func plantingOverdue(ev *evaluation) *candidate {
	if ev.p.Confirmed() {
		return nil
	}
	late := -daysUntilStart(ev)
	if late <= 0 {
		return nil
	}
	return &candidate{
		typ:      types.NotifPlantingOverdue,
		priority: types.PriorityImportant,
		title:    "Plantation en retard",
		message: fmt.Sprintf("La plantation de %s était prévue il y a %s. Plantez-la ou mettez à jour la date.",
			plantName(ev), pluralDays(late)),
		windowDays: 1,
	}
}

// -----------------------------------------------------------------------------
// Weather rules (outdoor plantations only)
// -----------------------------------------------------------------------------

func frost(ev *evaluation) *candidate {
	if !ev.outdoor {
		return nil
	}
	day, _ := ev.forecast.Today()
	low, ok := day.MinTemp()
	if !ok || low > ev.cfg.FrostC {
		return nil
	}
	prio := types.PriorityImportant
	if low <= ev.cfg.FrostUrgentC {
		prio = types.PriorityUrgent
	}
	return &candidate{
		typ:        types.NotifFrostAlert,
		priority:   prio,
		title:      "Risque de gel",
		message:    fmt.Sprintf("Minimum prévu de %.1f °C : protégez %s (voile d'hivernage, paillage).", low, plantName(ev)),
		windowDays: 1,
	}
}

func heat(ev *evaluation) *candidate {
	if !ev.outdoor || !heatSensitive(ev.tpl) {
		return nil
	}
	day, _ := ev.forecast.Today()
	high, ok := day.MaxTemp()
	if !ok || high < ev.cfg.HeatC {
		return nil
	}
	prio := types.PriorityImportant
	if high >= ev.cfg.HeatUrgentC {
		prio = types.PriorityUrgent
	}
	return &candidate{
		typ:        types.NotifHeatAlert,
		priority:   prio,
		title:      "Forte chaleur",
		message:    fmt.Sprintf("Maximum prévu de %.1f °C : ombragez %s et arrosez tôt le matin.", high, plantName(ev)),
		windowDays: 1,
	}
}

func heatwave(ev *evaluation) *candidate {
	if !ev.outdoor || !heatSensitive(ev.tpl) || ev.last == nil {
		return nil
	}
	if types.DaysBetween(ev.today, ev.last.WateringDate.In(ev.today.Location())) <= 1 {
		return nil
	}
	hot := 0
	for _, d := range ev.forecast.Slice(ev.cfg.HeatwaveWindowDays) {
		if high, ok := d.MaxTemp(); ok && high >= ev.cfg.HeatC {
			hot++
		}
	}
	if hot < ev.cfg.HeatwaveDays {
		return nil
	}
	return &candidate{
		typ:      types.NotifHeatwaveWarning,
		priority: types.PriorityImportant,
		title:    "Vague de chaleur annoncée",
		message: fmt.Sprintf("%s à plus de %.0f °C dans les prochains jours : avancez l'arrosage de %s sans attendre la date prévue.",
			pluralDays(hot), ev.cfg.HeatC, plantName(ev)),
		windowDays: 2,
	}
}

func rainPostponement(ev *evaluation) *candidate {
	if !ev.outdoor || !ev.wateringDueToday() {
		return nil
	}
	day, _ := ev.forecast.Today()
	rain, ok := day.Rain()
	if !ok || rain < ev.cfg.RainPostponeMM {
		return nil
	}
	rainy := 0
	for _, d := range ev.forecast.Daily {
		if mm, ok := d.Rain(); !ok || mm < ev.cfg.RainPostponeMM {
			break
		}
		rainy++
	}
	prio := types.PriorityInfo
	msg := fmt.Sprintf("%.1f mm de pluie prévus aujourd'hui : inutile d'arroser %s.", rain, plantName(ev))
	if rainy >= 2 {
		prio = types.PriorityImportant
		msg = fmt.Sprintf("Pluie soutenue pendant %s : arrosage de %s reporté.", pluralDays(rainy), plantName(ev))
	}
	return &candidate{
		typ:        types.NotifRainPostponement,
		priority:   prio,
		title:      "Arrosage reporté (pluie)",
		message:    msg,
		windowDays: 1,
	}
}

func excessRainDrainage(ev *evaluation) *candidate {
	if !ev.outdoor {
		return nil
	}
	today, _ := ev.forecast.Today()
	tomorrow, _ := ev.forecast.Tomorrow()
	todayMM, hasToday := today.Rain()
	tomorrowMM, hasTomorrow := tomorrow.Rain()
	if !hasToday && !hasTomorrow {
		return nil
	}
	total := todayMM + tomorrowMM
	single := todayMM >= ev.cfg.DrainageSingleDayMM || tomorrowMM >= ev.cfg.DrainageSingleDayMM
	if !single && total < ev.cfg.DrainageTwoDayMM {
		return nil
	}
	return &candidate{
		typ:        types.NotifExcessRainDrainage,
		priority:   types.PriorityInfo,
		title:      "Excès de pluie",
		message:    fmt.Sprintf("%.1f mm attendus d'ici demain : vérifiez le drainage de %s (soucoupes, pots).", total, plantName(ev)),
		windowDays: 2,
	}
}

// -----------------------------------------------------------------------------
// Care rules
// -----------------------------------------------------------------------------

func missedWatering(ev *evaluation) *candidate {
	if ev.last == nil {
		return nil
	}
	due := types.StartOfDay(ev.last.WateringDate.In(ev.today.Location()))
	stale := types.DaysBetween(due, ev.today)
	if stale < ev.cfg.MissedWateringDays {
		return nil
	}
	if ev.manualWateringSince(due) {
		return nil
	}
	return &candidate{
		typ:      types.NotifMissedWatering,
		priority: types.PriorityUrgent,
		title:    "Arrosage oublié",
		message: fmt.Sprintf("L'arrosage de %s était prévu il y a %s. Arrosez dès que possible puis enregistrez-le.",
			plantName(ev), pluralDays(stale)),
		unreadDedup: true,
	}
}

func fertilization(ev *evaluation) *candidate {
	if !ev.p.Confirmed() || ev.cfg.FertilizationIntervalDays <= 0 {
		return nil
	}
	days := types.DaysBetween(ev.p.PlantedAt.In(ev.today.Location()), ev.today)
	if days <= 0 || days%ev.cfg.FertilizationIntervalDays != 0 {
		return nil
	}
	return &candidate{
		typ:        types.NotifFertilization,
		priority:   types.PriorityInfo,
		title:      "Pensez à fertiliser",
		message:    fmt.Sprintf("%s est en terre depuis %d jours : un apport d'engrais est recommandé.", plantName(ev), days),
		windowDays: 7,
	}
}

func wateringMorning(ev *evaluation) *candidate {
	if !ev.wateringDueToday() || ev.clock() >= ev.cfg.MorningCutoff || ev.manualWateringSince(ev.today) {
		return nil
	}
	return &candidate{
		typ:        types.NotifWateringMorning,
		priority:   types.PriorityImportant,
		title:      "Arrosage prévu aujourd'hui",
		message:    wateringMessage(ev, "aujourd'hui"),
		windowDays: 1,
	}
}

func wateringEvening(ev *evaluation) *candidate {
	c := ev.clock()
	if !ev.wateringDueToday() || c < ev.cfg.EveningStart || c > ev.cfg.EveningEnd || ev.manualWateringSince(ev.today) {
		return nil
	}
	return &candidate{
		typ:        types.NotifWateringEvening,
		priority:   types.PriorityImportant,
		title:      "N'oubliez pas l'arrosage",
		message:    wateringMessage(ev, "ce soir"),
		windowDays: 1,
	}
}

func wateringMessage(ev *evaluation, when string) string {
	if ev.last != nil && ev.last.WateringQuantity > 0 {
		return fmt.Sprintf("Arrosez %s %s avec environ %.0f ml.", plantName(ev), when, ev.last.WateringQuantity)
	}
	return fmt.Sprintf("Arrosez %s %s.", plantName(ev), when)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

var (
	shadeKeywords     = []string{"ombre", "shade", "mi-ombre"}
	sensitiveKeywords = []string{"salade", "laitue", "lettuce", "leafy", "feuille", "aromatique", "herb", "semis", "seedling"}
)

// heatSensitive reports whether the template describes a plant that suffers
// in strong heat: shade lovers, leafy vegetables, herbs and seedlings.
func heatSensitive(tpl *types.Template) bool {
	if tpl == nil {
		return false
	}
	if containsAny(strings.ToLower(tpl.SunExposure), shadeKeywords) {
		return true
	}
	return containsAny(strings.ToLower(tpl.Type), sensitiveKeywords) ||
		containsAny(strings.ToLower(tpl.Name), sensitiveKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 jour"
	}
	return fmt.Sprintf("%d jours", n)
}
