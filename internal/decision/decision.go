// Package decision turns raw per-category scores into the single category,
// if any, that should be reported for an image.
//
// The engine holds no state between calls and does no I/O, so one Engine can
// be shared by any number of goroutines.
package decision

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/straja-ai/ulap/internal/registry"
)

// Default tier boundaries.
const (
	DefaultConfidentThreshold = 0.80
	DefaultTentativeThreshold = 0.50
)

// Tier is the variant tag of an Outcome.
type Tier string

const (
	TierConfident    Tier = "confident"
	TierTentative    Tier = "tentative"
	TierInconclusive Tier = "inconclusive"
	TierFailed       Tier = "failed"
)

// ErrorKind names why a decision could not be made.
type ErrorKind string

const (
	ImageUnreadable          ErrorKind = "image_unreadable"
	PredictionSchemaMismatch ErrorKind = "prediction_schema_mismatch"
	IndexOutOfRange          ErrorKind = "index_out_of_range"
	SchemaMismatch           ErrorKind = "schema_mismatch"
	MissingCategoryData      ErrorKind = "missing_category_data"
)

// Catalog is the read side of a category registry.
type Catalog interface {
	Size() int
	RecordAt(index int) (registry.Record, error)
}

// Prediction is what a classifier reports for one image. ClassIndex and
// ClassName are advisory; the engine recomputes the top class from Scores.
type Prediction struct {
	Scores     []float64
	ClassIndex *int
	ClassName  string
}

// Outcome is the result of one decision.
//
// Record is set only for TierConfident and TierTentative. Reason is set only
// for TierFailed. Confidence is the top score whenever the vector was
// accepted (it is informational for TierInconclusive).
type Outcome struct {
	Tier       Tier             `json:"tier"`
	Record     *registry.Record `json:"record,omitempty"`
	Confidence float64          `json:"confidence"`
	Reason     ErrorKind        `json:"reason,omitempty"`

	// AdvisoryMismatch is true when the classifier's own top class
	// disagreed with the recomputed argmax.
	AdvisoryMismatch bool `json:"advisory_mismatch,omitempty"`
}

// Reportable reports whether the outcome names a category.
func (o Outcome) Reportable() bool {
	return o.Tier == TierConfident || o.Tier == TierTentative
}

// Failed builds a failed outcome.
func Failed(reason ErrorKind) Outcome {
	return Outcome{Tier: TierFailed, Reason: reason}
}

// Thresholds are the lower bounds of the confident and tentative tiers.
type Thresholds struct {
	Confident float64
	Tentative float64
}

// DefaultThresholds returns the 0.80 / 0.50 split.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Confident: DefaultConfidentThreshold,
		Tentative: DefaultTentativeThreshold,
	}
}

// Validate checks 0.50 <= tentative <= confident <= 1. Tightening the
// tiers is allowed; loosening the tentative floor is not, since a category
// must never be reported below 0.50.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Confident) || math.IsNaN(t.Tentative) {
		return fmt.Errorf("thresholds must be numbers")
	}
	if t.Tentative < DefaultTentativeThreshold || t.Tentative > 1 {
		return fmt.Errorf("tentative threshold %.4f must be in [%.2f, 1]", t.Tentative, DefaultTentativeThreshold)
	}
	if t.Confident < t.Tentative || t.Confident > 1 {
		return fmt.Errorf("confident threshold %.4f must be in [%.4f, 1]", t.Confident, t.Tentative)
	}
	return nil
}

// Engine applies Thresholds to prediction vectors.
type Engine struct {
	thresholds Thresholds
}

// NewEngine returns an engine using t. Invalid thresholds are rejected.
func NewEngine(t Thresholds) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Engine{thresholds: t}, nil
}

// Thresholds returns the engine's tier boundaries.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Decide picks the category to report for scores.
//
// Checks run in order and the first match wins: an unreadable image fails
// with ImageUnreadable, then a vector that is empty or not the catalog's size
// fails with PredictionSchemaMismatch. Otherwise the highest score is found by
// scanning every entry, with ties going to the lowest index.
func (e *Engine) Decide(imageValid bool, scores []float64, catalog Catalog) Outcome {
	if !imageValid {
		return Failed(ImageUnreadable)
	}
	if catalog == nil || len(scores) == 0 || len(scores) != catalog.Size() {
		return Failed(PredictionSchemaMismatch)
	}

	top, conf := Argmax(scores)
	if top < 0 {
		// Every score was NaN.
		return Outcome{Tier: TierInconclusive}
	}

	var tier Tier
	switch {
	case conf >= e.thresholds.Confident:
		tier = TierConfident
	case conf >= e.thresholds.Tentative:
		tier = TierTentative
	default:
		return Outcome{Tier: TierInconclusive, Confidence: conf}
	}

	rec, err := catalog.RecordAt(top)
	if err != nil {
		return Failed(MissingCategoryData)
	}
	return Outcome{Tier: tier, Record: &rec, Confidence: conf}
}

// DecidePrediction is Decide plus a cross-check of the classifier's advisory
// top class. A disagreement is logged and flagged but never changes the
// chosen category.
func (e *Engine) DecidePrediction(imageValid bool, p Prediction, catalog Catalog) Outcome {
	out := e.Decide(imageValid, p.Scores, catalog)
	if !out.Reportable() {
		return out
	}

	idx := out.Record.Index
	if p.ClassIndex != nil && *p.ClassIndex != idx {
		out.AdvisoryMismatch = true
	}
	if p.ClassName != "" && p.ClassName != out.Record.Name {
		out.AdvisoryMismatch = true
	}
	if out.AdvisoryMismatch {
		advisory := -1
		if p.ClassIndex != nil {
			advisory = *p.ClassIndex
		}
		slog.Debug("decision: advisory top class ignored",
			"advisory_index", advisory,
			"advisory_name", p.ClassName,
			"argmax_index", idx,
			"argmax_name", out.Record.Name)
	}
	return out
}

// KindOf maps a registry error to its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registry.ErrIndexOutOfRange):
		return IndexOutOfRange
	case errors.Is(err, registry.ErrSchemaMismatch), errors.Is(err, registry.ErrEmpty):
		return SchemaMismatch
	default:
		return MissingCategoryData
	}
}

// Argmax returns the index and value of the largest score. Ties go to the
// lowest index and NaN entries are skipped; -1 is returned when no entry is
// comparable.
func Argmax(scores []float64) (int, float64) {
	best := -1
	bestVal := math.Inf(-1)
	for i, v := range scores {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > bestVal {
			best = i
			bestVal = v
		}
	}
	if best < 0 {
		return -1, math.NaN()
	}
	return best, bestVal
}
