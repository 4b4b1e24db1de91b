// Package machine implements the evaluation state machine: a reducer that
// turns (state, action) into (state, effects). The reducer is the single
// place where pending and settled evaluation state changes, so every
// ordering rule — one pending at a time, stale settles dropped — lives here
// and nowhere else.
package machine

import (
	"github.com/TimurManjosov/goflagbag/internal/cache"
	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

// Current is the last settled evaluation: either a success (Outcome set) or
// a failure (Err set, Outcome nil, CachedOutcome holding whatever stale
// result was known for that input).
type Current struct {
	Input         evaluation.Input
	Outcome       *evaluation.Outcome
	Err           evaluation.ResolvingError
	CachedOutcome *evaluation.Outcome
}

// Pending is an in-flight evaluation plus the cached outcome that existed
// for its input at dispatch time.
type Pending struct {
	Input         evaluation.Input
	CachedOutcome *evaluation.Outcome
}

// State is the whole machine state. Current and Pending may both be set at
// once (a revalidation in flight while a previous result is displayed); at
// most one Pending exists, a new dispatch replaces it.
type State struct {
	Current *Current
	Pending *Pending
}

// LatestInput returns the input a revalidation should re-fetch: the pending
// input if one is in flight, else the last settled input. ok is false when
// the machine has never seen an input.
func (s State) LatestInput() (evaluation.Input, bool) {
	if s.Pending != nil {
		return s.Pending.Input, true
	}
	if s.Current != nil {
		return s.Current.Input, true
	}
	return evaluation.Input{}, false
}

// Action is a closed set of state transitions. Reduce panics on any type
// outside this package: an unhandled action is a programming error, not a
// condition to ignore.
type Action interface {
	action()
}

// Evaluate dispatches a fresh evaluation for a (possibly new) input.
type Evaluate struct {
	Input evaluation.Input
}

// Revalidate re-dispatches the latest known input. A no-op when no input
// was ever evaluated.
type Revalidate struct{}

// SettleSuccess reports a completed fetch for Input. Ignored when Input no
// longer matches the pending evaluation.
type SettleSuccess struct {
	Input   evaluation.Input
	Outcome evaluation.Outcome
}

// SettleFailure reports a failed fetch for Input. Ignored when stale.
type SettleFailure struct {
	Input evaluation.Input
	Err   evaluation.ResolvingError
}

func (Evaluate) action()      {}
func (Revalidate) action()    {}
func (SettleSuccess) action() {}
func (SettleFailure) action() {}

// Effect is a side-effect request emitted by the reducer. Each emitted
// effect must be executed exactly once by the runner, independent of any
// later state change.
type Effect interface {
	effect()
}

// FetchEffect asks the runner to perform one evaluation request.
type FetchEffect struct {
	Input evaluation.Input
}

func (FetchEffect) effect() {}

// Deps are the collaborators the reducer reads and writes while
// transitioning: the outcome cache and the visitor identity store. Visitors
// may be nil when no persistence is wanted.
type Deps struct {
	Cache    *cache.Cache
	Visitors visitor.Store
}
