// Package pipeline implements the per-responder 55->38->39 state machine.
//
// Spec §9 flags the source's sentinel-result convention (NF, Timeout,
// Multiple) as something a typed reimplementation should turn into a sum
// type rather than carry forward as ad-hoc string sentinels. Outcome is that
// sum type: a closed set of tagged states plus the data each state carries.
package pipeline

import (
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

// Kind discriminates an Outcome. The zero value, KindPending, is never a
// terminal state for a finished pipeline.
type Kind int

const (
	KindPending Kind = iota
	KindMatched
	KindNotFound
	KindMultiple
	KindTimeout
	KindDocsFound
)

func (k Kind) String() string {
	switch k {
	case KindPending:
		return "Pending"
	case KindMatched:
		return "Matched"
	case KindNotFound:
		return "NF"
	case KindMultiple:
		return "Multiple"
	case KindTimeout:
		return "Timeout"
	case KindDocsFound:
		return "DocsFound"
	default:
		return "Unknown"
	}
}

// Outcome is the tagged result of driving a pipeline through one stage.
// Only the fields relevant to Kind are populated; this is the typed
// replacement for the source's "NF" / "Timeout" / "Multiple" sentinels.
type Outcome struct {
	Kind Kind

	// Populated when Kind == KindMatched.
	Patient    model.PatientMetadata
	PatientIDs []model.PatientID

	// Populated when Kind == KindDocsFound.
	PidsAndDocIDs []model.PatientDocID
	DocsFound     map[string][]string // LOINC code -> CDA XML strings
	FHIRID        string
}

// Dropped reports whether this outcome ends the pipeline at the conflict
// check (spec §4.6 step 3): NF, Timeout, and Multiple are all dropped: only
// Matched survives to ITI-38/39.
func (o Outcome) Dropped() bool {
	switch o.Kind {
	case KindNotFound, KindTimeout, KindMultiple:
		return true
	default:
		return false
	}
}

// Pipeline is the per-responder stateful execution record described in
// spec §3. It is owned exclusively by its own driver goroutine; the search
// that created it only reads the final Outcome after the driver returns.
type Pipeline struct {
	Responder model.ResponderEndpoint

	RawITI55Response []byte
	ITI55Outcome     Outcome

	RawITI38Response []byte
	ITI38Outcome     Outcome

	RawITI39Responses [][]byte
	FinalOutcome      Outcome
}

// New creates a pipeline bound to a single responder. It carries no shared
// mutable state with any other pipeline in the same search.
func New(responder model.ResponderEndpoint) *Pipeline {
	return &Pipeline{Responder: responder}
}
