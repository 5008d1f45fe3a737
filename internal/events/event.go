// Package events records every classification decision and delivers the
// records to configured sinks in the background.
package events

import (
	"crypto/rand"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/straja-ai/ulap/internal/decision"
)

// Source is where the classified image came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceFile   Source = "file"
	SourceCamera Source = "camera"
)

// Event is one decision as written to sinks.
type Event struct {
	ID               string             `json:"id"`
	Time             time.Time          `json:"time"`
	Source           Source             `json:"source"`
	Path             string             `json:"path,omitempty"`
	Tier             decision.Tier      `json:"tier"`
	Category         string             `json:"category,omitempty"`
	CategoryIndex    *int               `json:"category_index,omitempty"`
	Confidence       float64            `json:"confidence"`
	Reason           decision.ErrorKind `json:"reason,omitempty"`
	AdvisoryMismatch bool               `json:"advisory_mismatch,omitempty"`
	Cached           bool               `json:"cached,omitempty"`
	ImageHash        string             `json:"image_hash,omitempty"`
	LatencyMs        float64            `json:"latency_ms"`
}

// NewEvent builds an event from an outcome.
func NewEvent(src Source, path string, out decision.Outcome, latency time.Duration) *Event {
	ev := &Event{
		ID:               newID(),
		Time:             time.Now().UTC(),
		Source:           src,
		Path:             path,
		Tier:             out.Tier,
		Confidence:       finite(out.Confidence),
		Reason:           out.Reason,
		AdvisoryMismatch: out.AdvisoryMismatch,
		LatencyMs:        float64(latency.Microseconds()) / 1000,
	}
	if out.Record != nil {
		idx := out.Record.Index
		ev.Category = out.Record.Name
		ev.CategoryIndex = &idx
	}
	return ev
}

func newID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// finite keeps non-finite scores out of JSON, which cannot encode them.
// +Inf becomes 1 to stay consistent with the tier it produced.
func finite(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return 1
	case math.IsNaN(v), math.IsInf(v, -1):
		return 0
	}
	return v
}
