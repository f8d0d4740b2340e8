package recommend

import (
	"fmt"

	"github.com/pathwise/adaptive-tutor/go-recommender/internal/action"
	"github.com/pathwise/adaptive-tutor/go-recommender/internal/mastery"
)

// #region explain

// Explain builds the recommendation rationale from the target outcome, its
// current mastery, the tier's EMA rate, and the item difficulty. It applies
// the tracker's own projection formula, so the text is reproducible without
// any free-text generation.
func Explain(outcomeID string, currentMastery, masteryRate float64, difficulty action.Difficulty) string {
	projected := currentMastery + masteryRate*(mastery.PotentialTarget-currentMastery)
	return fmt.Sprintf(
		"Targets %s, your weakest outcome at %.0f%% mastery; completing this %s activity should move it toward %.0f%%.",
		outcomeID, currentMastery*100, difficulty, projected*100)
}

// #endregion
