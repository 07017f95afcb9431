package domain

// Decision is the outcome of resolving a candidate change against the
// current canonical record.
type Decision int

const (
	// DecisionIgnore drops the candidate: the canonical record is at least
	// as new. Echoes of our own propagated writes land here because the
	// mirror reports them back with a timestamp that is not strictly newer.
	DecisionIgnore Decision = iota
	// DecisionApply overwrites the canonical record with the candidate.
	DecisionApply
	// DecisionCreate inserts a new canonical record and binds the external
	// id to it.
	DecisionCreate
)

// String returns the lowercase decision name, used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionCreate:
		return "create"
	default:
		return "ignore"
	}
}

// Resolve decides whether a candidate change wins against the current
// canonical record. It is a pure function; current is nil when no canonical
// item binds to the candidate's external id.
//
// Rules, in order:
//   - no current record: always create, regardless of timestamp.
//   - canonical source: always apply — an internal edit already is the
//     canonical state and never competes with its own history.
//   - otherwise last-writer-wins on the source store's clock, strictly:
//     a tie favors the existing record. The strictness is what suppresses
//     feedback loops — a propagated write read back by the origin store's
//     own hook carries a timestamp no newer than what canonical already
//     recorded, so the echo resolves to ignore.
func Resolve(c CandidateChange, current *ItineraryItem) Decision {
	if current == nil {
		return DecisionCreate
	}
	if c.Source == SourceCanonical {
		return DecisionApply
	}
	if c.Timestamp.After(current.UpdatedAt) {
		return DecisionApply
	}
	return DecisionIgnore
}
