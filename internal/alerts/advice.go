package alerts

import (
	"context"
	"fmt"
	"strings"

	"gardenwatch/internal/lifecycle"
	"gardenwatch/internal/types"
	"gardenwatch/internal/watering"
)

// Advice is a freshly computed decision to summarize for the user. Either
// part may be nil.
type Advice struct {
	Watering  *watering.Result
	Lifecycle *lifecycle.Result
}

// PushDecisionAdvice turns a computed decision into one informational
// notification. It is suppressed when a decision advice was already created
// within the cooldown, or when the decision carries nothing worth reporting.
// It returns whether a notification was created.
func (e *Engine) PushDecisionAdvice(ctx context.Context, p *types.Plantation, advice Advice) (bool, error) {
	body := adviceBody(advice)
	if body == "" {
		return false, nil
	}

	now := e.clock.Now()
	exists, err := e.store.HasRecentNotification(ctx, p.ID, types.NotifDecisionAdvice, now.Add(-e.cfg.AdviceCooldown))
	if err != nil {
		return false, fmt.Errorf("decision advice dedup: %w", err)
	}
	if exists {
		return false, nil
	}

	title := "Conseil du jour"
	if p.Template != nil && p.Template.Name != "" {
		title = "Conseil pour " + p.Template.Name
	}
	n, err := e.build(p, types.NotifDecisionAdvice, types.PriorityInfo, title, body, now)
	if err != nil {
		return false, err
	}
	if err := e.store.Create(ctx, n); err != nil {
		return false, fmt.Errorf("persist decision advice: %w", err)
	}
	e.dispatch(ctx, p, n)
	return true, nil
}

func adviceBody(a Advice) string {
	var lines []string
	if w := a.Watering; w != nil {
		if w.Details.FrequencyDays > 0 {
			lines = append(lines, fmt.Sprintf("Prochain arrosage le %s (%.0f ml, tous les %d jour(s)).",
				w.Date.Format("02/01"), w.Quantity, w.Details.FrequencyDays))
		}
		lines = append(lines, w.Details.Notes...)
	}
	if l := a.Lifecycle; l != nil && (l.Details.Explanation != "" || l.Stage != "") {
		line := fmt.Sprintf("Stade : %s (%.0f %%).", l.Stage, l.Progression)
		if l.Details.Explanation != "" {
			line += " " + l.Details.Explanation
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
