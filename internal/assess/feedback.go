package assess

import (
	"fmt"

	"github.com/opsgrade/opsgrade/internal/models"
)

// buildFeedback partitions criteria into achieved checks and suggestions for
// the missed ones. Lines follow definition order so repeated runs over the
// same state produce identical feedback.
func buildFeedback(def models.AssessmentDefinition, outcomes []models.CheckOutcome, total, maxScore int) models.Feedback {
	fb := models.Feedback{
		Summary: fmt.Sprintf("%s: scored %d of %d (threshold %d)", def.Name, total, maxScore, def.PassThreshold),
	}
	for i, c := range def.Criteria {
		out := outcomes[i]
		line := models.FeedbackLine{
			CriterionID: c.ID,
			Name:        c.Name,
			Points:      c.Points,
		}
		if out.Implemented {
			line.Detail = fmt.Sprintf("%s is in place (+%d points)", c.Name, c.Points)
			fb.Implemented = append(fb.Implemented, line)
			continue
		}
		if out.Error != "" {
			line.Detail = fmt.Sprintf("%s not achieved (%d points missed): %s", c.Name, c.Points, out.Error)
		} else {
			line.Detail = fmt.Sprintf("%s not achieved (%d points missed)", c.Name, c.Points)
		}
		fb.Suggestions = append(fb.Suggestions, line)
	}
	return fb
}
