package enrich

import (
	"log/slog"

	"github.com/cellarist/sommelier/pkg/models"
)

// grapeSumTolerance is the accepted deviation of a grape composition from
// 100 percent.
const grapeSumTolerance = 5.0

// validate enforces the payload invariants, dropping an offending section
// rather than failing the enrichment. It returns the names of the dropped
// sections so streamed callers can correct what was already emitted.
func validate(e *models.Enrichment, logger *slog.Logger) []string {
	var dropped []string

	if len(e.GrapeComposition) > 0 {
		var sum float64
		for _, g := range e.GrapeComposition {
			sum += g.Percentage
		}
		if sum < 100-grapeSumTolerance || sum > 100+grapeSumTolerance {
			logger.Warn("Dropping grape composition, percentages do not sum to 100",
				"wine", e.WineName, "sum", sum)
			e.GrapeComposition = nil
			dropped = append(dropped, "grapeComposition")
		}
	}

	if w := e.DrinkWindow; w != nil {
		ordered := w.Start <= w.End
		if w.Peak != 0 {
			ordered = ordered && w.Start <= w.Peak && w.Peak <= w.End
		}
		if !ordered {
			logger.Warn("Dropping drink window, years out of order",
				"wine", e.WineName, "start", w.Start, "peak", w.Peak, "end", w.End)
			e.DrinkWindow = nil
			dropped = append(dropped, "drinkWindow")
		}
	}

	for _, c := range e.CriticScores {
		if c.Score < 0 || c.Score > 100 {
			logger.Warn("Dropping critic scores, score out of range",
				"wine", e.WineName, "critic", c.Critic, "score", c.Score)
			e.CriticScores = nil
			dropped = append(dropped, "criticScores")
			break
		}
	}

	return dropped
}

// merge combines a fresh payload over a prior one section-wise. Newer values
// win; a section the fresh payload lacks is kept from the prior, never
// silently deleted.
func merge(prior, fresh *models.Enrichment) *models.Enrichment {
	if prior == nil {
		return fresh
	}
	out := *fresh
	if out.Overview == "" {
		out.Overview = prior.Overview
	}
	if len(out.GrapeComposition) == 0 {
		out.GrapeComposition = prior.GrapeComposition
	}
	if out.StyleProfile == nil {
		out.StyleProfile = prior.StyleProfile
	}
	if out.TastingNotes == nil {
		out.TastingNotes = prior.TastingNotes
	}
	if len(out.CriticScores) == 0 {
		out.CriticScores = prior.CriticScores
	}
	if out.DrinkWindow == nil {
		out.DrinkWindow = prior.DrinkWindow
	}
	if len(out.FoodPairings) == 0 {
		out.FoodPairings = prior.FoodPairings
	}
	return &out
}
