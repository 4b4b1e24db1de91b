package machine

import (
	"fmt"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/telemetry"
)

// Reduce applies one action to the state and returns the new state plus the
// effects to execute. It never blocks and performs no I/O beyond the cache
// and visitor store in deps; callers own sequencing (one Reduce at a time).
func Reduce(st State, act Action, deps Deps) (State, []Effect) {
	switch a := act.(type) {
	case Evaluate:
		st.Pending = &Pending{Input: a.Input, CachedOutcome: lookup(deps, a.Input)}
		return st, []Effect{FetchEffect{Input: a.Input}}

	case Revalidate:
		in, ok := st.LatestInput()
		if !ok {
			return st, nil
		}
		st.Pending = &Pending{Input: in, CachedOutcome: lookup(deps, in)}
		return st, []Effect{FetchEffect{Input: in}}

	case SettleSuccess:
		if st.Pending == nil || !st.Pending.Input.Equal(a.Input) {
			telemetry.StaleResponses.Inc()
			return st, nil
		}
		deps.Cache.Set(a.Input, a.Outcome)
		if key := a.Outcome.ServerVisitorKey(); key != "" && deps.Visitors != nil {
			deps.Visitors.Set(key)
		}
		out := a.Outcome
		st.Current = &Current{Input: a.Input, Outcome: &out}
		st.Pending = nil
		return st, nil

	case SettleFailure:
		if st.Pending == nil || !st.Pending.Input.Equal(a.Input) {
			telemetry.StaleResponses.Inc()
			return st, nil
		}
		st.Current = &Current{
			Input:         a.Input,
			Err:           a.Err,
			CachedOutcome: deps.Cache.Get(a.Input),
		}
		st.Pending = nil
		return st, nil

	default:
		panic(fmt.Sprintf("machine: unhandled action %T", act))
	}
}

func lookup(deps Deps, in evaluation.Input) *evaluation.Outcome {
	out := deps.Cache.Get(in)
	if out != nil {
		telemetry.CacheHits.Inc()
	} else {
		telemetry.CacheMisses.Inc()
	}
	return out
}
