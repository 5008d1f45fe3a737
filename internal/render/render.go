// Package render turns decision outcomes into the text shown to people.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/straja-ai/ulap/internal/decision"
)

// View is the display form of an outcome. Description and Indication are
// empty whenever no category is reported, which clears anything shown for a
// previous image.
type View struct {
	Status      string  `json:"status"`
	Headline    string  `json:"message"`
	Category    string  `json:"category,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Percent     string  `json:"confidence_pct,omitempty"`
	Description string  `json:"description,omitempty"`
	Indication  string  `json:"indication,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

const lowConfidence = "Prediction confidence is too low. Try uploading/capturing a different picture."

var failureText = map[decision.ErrorKind]string{
	decision.ImageUnreadable:          "Error: the image could not be read. Use a JPEG, PNG, BMP, TIFF, GIF or WebP file.",
	decision.PredictionSchemaMismatch: "Error: invalid predictions or class names.",
	decision.IndexOutOfRange:          "Error: the predicted class is not in the category list.",
	decision.SchemaMismatch:           "Error: the category files do not line up.",
	decision.MissingCategoryData:      "Error: missing description or indication for the predicted class.",
}

// Outcome renders out.
func Outcome(out decision.Outcome) View {
	v := View{Status: string(out.Tier)}

	switch out.Tier {
	case decision.TierConfident, decision.TierTentative:
		if out.Record == nil {
			return Outcome(decision.Failed(decision.MissingCategoryData))
		}
		v.Category = out.Record.Name
		v.Confidence = finite(out.Confidence)
		v.Percent = Percent(out.Confidence)
		v.Description = out.Record.Description
		v.Indication = out.Record.Indication
		v.Headline = fmt.Sprintf("AI Prediction: %s\nConfidence: %s", out.Record.Name, v.Percent)
	case decision.TierInconclusive:
		v.Headline = lowConfidence
	default:
		v.Status = string(decision.TierFailed)
		v.Reason = string(out.Reason)
		msg, ok := failureText[out.Reason]
		if !ok {
			msg = "Error: classification failed."
		}
		v.Headline = msg
	}
	return v
}

// Percent formats a confidence as "85.00%".
func Percent(conf float64) string {
	return fmt.Sprintf("%.2f%%", finite(conf)*100)
}

// Text renders a view as the multi-line block the desktop tool displayed.
func Text(v View) string {
	var b strings.Builder
	b.WriteString(v.Headline)
	if v.Description != "" {
		b.WriteString("\n• Description:\n")
		b.WriteString(v.Description)
	}
	if v.Indication != "" {
		b.WriteString("\n• Weather Indication:\n")
		b.WriteString(v.Indication)
	}
	return b.String()
}

// finite maps +Inf to 1 and -Inf or NaN to 0 so a confident outcome never
// shows as 0%.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return 1
	case math.IsNaN(v), math.IsInf(v, -1):
		return 0
	}
	return v
}
