// Package flagbag is a client-side feature-flag evaluation SDK. A Client
// resolves which flags apply to a visitor/user/trait combination by asking a
// remote evaluation service, caches outcomes by input fingerprint, and
// exposes a consistent view of the current flags that stays correct under
// overlapping and out-of-order evaluations.
//
// All sequencing runs through a single goroutine per client: actions are
// reduced one at a time, network fetches settle back onto the same loop, and
// a response whose input no longer matches the pending evaluation is
// silently discarded. The consumer-facing FlagBag is recomputed after every
// transition and read via an atomic snapshot.
package flagbag

import (
	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/machine"
)

// Re-exported evaluation types, so consumers never import internal packages.
type (
	// Input is one canonical evaluation request. Build it with NewInput.
	Input = evaluation.Input
	// RequestBody is the JSON body sent to the evaluation service.
	RequestBody = evaluation.RequestBody
	// User identifies an authenticated user.
	User = evaluation.User
	// Traits is the free-form trait payload attached to an evaluation.
	Traits = evaluation.Traits
	// Flags maps flag keys to their evaluated values.
	Flags = evaluation.Flags
	// Outcome is one successful evaluation result.
	Outcome = evaluation.Outcome
	// ResponseBody is the JSON body of a successful evaluation response.
	ResponseBody = evaluation.ResponseBody
	// Visitor carries a server-assigned visitor identity.
	Visitor = evaluation.Visitor
	// ResolvingError is the recoverable evaluation failure kind.
	ResolvingError = evaluation.ResolvingError
)

// Resolution error kinds surfaced through LastError and WaitSettled.
const (
	ErrResponseNotOK       = evaluation.ErrResponseNotOK
	ErrInvalidResponseBody = evaluation.ErrInvalidResponseBody
	ErrNetwork             = evaluation.ErrNetwork
)

// NewInput builds an immutable evaluation input. Mainly useful for
// constructing an InitialState from a server-side prefetch.
func NewInput(endpoint, envKey string, body RequestBody) (Input, error) {
	return evaluation.NewInput(endpoint, envKey, body)
}

// FlagBag is the consumer-facing view of the current evaluation state. It is
// a value: derived from the state machine after every transition, never
// mutated in place.
type FlagBag struct {
	// Flags is RawFlags overlaid onto the configured defaults, or nil when
	// no evaluation has produced flags yet. Defaults alone are never
	// presented as a settled answer.
	Flags Flags `json:"flags"`
	// RawFlags is the latest known flags straight from the service: the
	// settled outcome's flags, or on failure the stale cached outcome's.
	RawFlags Flags `json:"rawFlags"`
	// Fetching reports whether an evaluation is in flight.
	Fetching bool `json:"fetching"`
	// Settled reports whether a non-static evaluation has reached a
	// terminal result. Static results are provisional and stay unsettled.
	Settled bool `json:"settled"`
	// VisitorKey is the visitor identity the current state knows about.
	VisitorKey string `json:"visitorKey"`

	revalidate func()
}

// Revalidate asks the owning client to re-fetch the latest input. Safe to
// call on a zero FlagBag.
func (b FlagBag) Revalidate() {
	if b.revalidate != nil {
		b.revalidate()
	}
}

// view is the internal snapshot: the derived bag plus the settle status the
// bag itself does not carry.
type view struct {
	bag        FlagBag
	err        evaluation.ResolvingError
	hasCurrent bool
}

// compose derives the externally visible view from machine state.
func compose(st machine.State, defaults Flags, revalidate func()) view {
	v := view{bag: FlagBag{revalidate: revalidate}}

	if st.Current != nil {
		v.hasCurrent = true
		v.err = st.Current.Err
		if st.Current.Outcome != nil {
			v.bag.RawFlags = st.Current.Outcome.Body.Flags
		} else if st.Current.CachedOutcome != nil {
			v.bag.RawFlags = st.Current.CachedOutcome.Body.Flags
		}
		v.bag.Settled = !st.Current.Input.Body().Static
	}
	v.bag.Flags = evaluation.MergeFlags(defaults, v.bag.RawFlags)
	v.bag.Fetching = st.Pending != nil
	v.bag.VisitorKey = stateVisitorKey(st)
	return v
}

// stateVisitorKey resolves the visible visitor key: the settled outcome's
// server-assigned key, else the settled input's client key, else the pending
// input's client key, else "".
func stateVisitorKey(st machine.State) string {
	if st.Current != nil {
		if key := st.Current.Outcome.ServerVisitorKey(); key != "" {
			return key
		}
		if key := st.Current.Input.Body().VisitorKey; key != "" {
			return key
		}
	}
	if st.Pending != nil {
		return st.Pending.Input.Body().VisitorKey
	}
	return ""
}
