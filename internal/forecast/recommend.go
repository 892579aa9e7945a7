package forecast

import "fmt"

// buildRecommendation maps the forecast output to a follow-up action. The
// rule is purely a function of the highest per-day probability and its day
// offset: a near-certain order within 3 days warrants an urgent reminder, a
// likely order within 5 days a normal one, anything else is just monitored.
func buildRecommendation(probabilities []float32) *Recommendation {
	maxProb := float64(0)
	daysUntil := 1
	for i, p := range probabilities {
		if float64(p) > maxProb {
			maxProb = float64(p)
			daysUntil = i + 1
		}
	}

	switch {
	case maxProb > 0.8 && daysUntil <= 3:
		return &Recommendation{
			Action:  "send_urgent_reminder",
			Message: fmt.Sprintf("You'll likely need gas in %d days. Order now to avoid running out!", daysUntil),
			Urgency: "high",
		}
	case maxProb > 0.6 && daysUntil <= 5:
		return &Recommendation{
			Action:  "send_reminder",
			Message: fmt.Sprintf("Based on your usage, you may need gas around %d days from now.", daysUntil),
			Urgency: "medium",
		}
	default:
		return &Recommendation{
			Action:  "monitor",
			Message: "Your gas supply looks good for now. We'll remind you when it's time.",
			Urgency: "low",
		}
	}
}
