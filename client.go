package flagbag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagbag/internal/cache"
	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/fetcher"
	"github.com/TimurManjosov/goflagbag/internal/machine"
	"github.com/TimurManjosov/goflagbag/internal/telemetry"
	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

// ErrClosed is returned by blocking calls interrupted by Close.
var ErrClosed = errors.New("flagbag: client closed")

// Revalidation triggers recorded in metrics.
const (
	triggerManual = "manual"
	triggerFocus  = "focus"
)

// Client owns one evaluation state machine. A single run-loop goroutine
// processes all actions sequentially; fetches run concurrently but settle
// back onto the loop, where stale ones are discarded. All exported methods
// are safe for concurrent use.
type Client struct {
	endpoint string
	envKey   string
	defaults Flags

	revalidateOnFocus bool

	log       zerolog.Logger
	fetch     *fetcher.Fetcher
	deps      machine.Deps
	generated string // per-client fallback visitor key

	ctx      context.Context
	cancel   context.CancelFunc
	cmds     chan any
	loopDone chan struct{}
	fetches  sync.WaitGroup
	closed   atomic.Bool

	focusCh    <-chan struct{}
	focusUnsub func()

	snap atomic.Pointer[view]

	subMu sync.Mutex
	subs  map[chan FlagBag]struct{}

	// loop-owned, never touched outside the run loop after New returns
	state  machine.State
	user   *User
	traits Traits
	ready  bool
}

// Commands processed by the run loop.
type (
	cmdAction     struct{ act machine.Action }
	cmdRevalidate struct{ trigger string }
	cmdReady      struct{ ready bool }
	cmdUpdate     struct {
		user   *User
		traits Traits
		reply  chan error
	}
)

// New creates and starts a client. Configuration errors are returned
// synchronously; everything that can fail at runtime is absorbed into the
// evaluation state instead.
func New(opts ...Option) (*Client, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	if s.visitors == nil {
		s.visitors = visitor.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		endpoint:          s.endpoint,
		envKey:            s.envKey,
		defaults:          s.defaults,
		revalidateOnFocus: s.revalidateOnFocus,
		log:               s.log,
		fetch:             fetcher.New(s.httpClient, s.log),
		deps:              machine.Deps{Cache: s.cache, Visitors: s.visitors},
		generated:         visitor.NewKey(),
		ctx:               ctx,
		cancel:            cancel,
		cmds:              make(chan any),
		loopDone:          make(chan struct{}),
		subs:              make(map[chan FlagBag]struct{}),
		user:              s.user,
		traits:            s.traits,
		ready:             s.ready,
	}

	if s.initialState != nil {
		out := s.initialState.Outcome
		c.state.Current = &machine.Current{Input: s.initialState.Input, Outcome: &out}
		s.cache.Set(s.initialState.Input, out)
	}

	// Validate the identity/trait payload before the loop starts, so a
	// non-serializable configuration fails construction rather than state.
	if _, err := c.buildInput(); err != nil {
		cancel()
		return nil, ConfigError{Field: "traits", Message: err.Error()}
	}

	if s.focusNotifier != nil && s.revalidateOnFocus {
		c.focusCh, c.focusUnsub = s.focusNotifier.Subscribe()
	}

	// The loop is not running yet, so seeding and the first dispatch are
	// still single-threaded.
	c.publish()
	if c.ready {
		c.syncInput()
	}

	go c.run()
	return c, nil
}

func (c *Client) run() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.cmds:
			c.handle(cmd)
		case _, ok := <-c.focusCh:
			if !ok {
				c.focusCh = nil
				continue
			}
			if c.ready && c.revalidateOnFocus {
				c.log.Debug().Msg("focus regained, revalidating")
				telemetry.Revalidations.WithLabelValues(triggerFocus).Inc()
				c.apply(machine.Revalidate{})
			}
		}
	}
}

func (c *Client) handle(cmd any) {
	switch m := cmd.(type) {
	case cmdAction:
		c.apply(m.act)
	case cmdRevalidate:
		if !c.ready {
			return
		}
		telemetry.Revalidations.WithLabelValues(m.trigger).Inc()
		c.apply(machine.Revalidate{})
	case cmdReady:
		wasReady := c.ready
		c.ready = m.ready
		if m.ready && !wasReady {
			c.syncInput()
		}
	case cmdUpdate:
		prevUser, prevTraits := c.user, c.traits
		c.user, c.traits = m.user, m.traits
		var err error
		if c.ready {
			err = c.syncInput()
		} else {
			_, err = c.buildInput()
		}
		if err != nil {
			c.user, c.traits = prevUser, prevTraits
		}
		m.reply <- err
	default:
		panic(fmt.Sprintf("flagbag: unhandled command %T", cmd))
	}
}

// apply reduces one action and executes any emitted effects. Each effect
// runs in its own goroutine; a superseded fetch is never aborted, its settle
// is discarded by the reducer instead.
func (c *Client) apply(act machine.Action) {
	st, effects := machine.Reduce(c.state, act, c.deps)
	c.state = st
	c.publish()

	for _, eff := range effects {
		switch e := eff.(type) {
		case machine.FetchEffect:
			c.fetches.Add(1)
			go c.runFetch(e.Input)
		default:
			panic(fmt.Sprintf("flagbag: unhandled effect %T", eff))
		}
	}
}

func (c *Client) runFetch(in evaluation.Input) {
	defer c.fetches.Done()

	out, kind := c.fetch.Do(c.ctx, in)
	var act machine.Action
	if kind != "" {
		act = machine.SettleFailure{Input: in, Err: kind}
	} else {
		act = machine.SettleSuccess{Input: in, Outcome: *out}
	}

	select {
	case c.cmds <- cmdAction{act: act}:
	case <-c.ctx.Done():
	}
}

// buildInput derives the canonical input for the client's current identity
// and traits. Visitor key priority: persisted store, then the pending
// request's key, then the last settled server-assigned key, then the
// per-client generated fallback.
func (c *Client) buildInput() (evaluation.Input, error) {
	var pendingKey, settledKey string
	if c.state.Pending != nil {
		pendingKey = c.state.Pending.Input.Body().VisitorKey
	}
	if c.state.Current != nil {
		settledKey = c.state.Current.Outcome.ServerVisitorKey()
	}
	key := visitor.ResolveKey(c.deps.Visitors.Get(), pendingKey, settledKey, c.generated)

	return evaluation.NewInput(c.endpoint, c.envKey, evaluation.RequestBody{
		VisitorKey: key,
		User:       c.user,
		Traits:     c.traits,
		Static:     false,
	})
}

// syncInput dispatches an evaluation when the derived input differs from the
// latest known one. Structurally equal inputs never cause a new fetch.
func (c *Client) syncInput() error {
	in, err := c.buildInput()
	if err != nil {
		return ConfigError{Field: "traits", Message: err.Error()}
	}
	if latest, ok := c.state.LatestInput(); ok && latest.Equal(in) {
		return nil
	}
	c.log.Debug().Str("env_key", c.envKey).Msg("input changed, evaluating")
	c.apply(machine.Evaluate{Input: in})
	return nil
}

// publish recomputes the derived view and hands it to snapshot readers and
// subscribers. Slow subscribers only ever lose intermediate bags, never the
// latest one.
func (c *Client) publish() {
	v := compose(c.state, c.defaults, c.Revalidate)
	c.snap.Store(&v)

	c.subMu.Lock()
	for ch := range c.subs {
		select {
		case ch <- v.bag:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v.bag:
			default:
			}
		}
	}
	c.subMu.Unlock()
}

// Bag returns the current flag bag. Cheap: one atomic load.
func (c *Client) Bag() FlagBag {
	return c.snap.Load().bag
}

// LastError returns the resolution error of the last settled evaluation, or
// nil when it succeeded or nothing has settled yet.
func (c *Client) LastError() error {
	if v := c.snap.Load(); v.err != "" {
		return v.err
	}
	return nil
}

// Revalidate asks the loop to re-fetch the latest input. A no-op when the
// client is closed, not ready, or has never seen an input.
func (c *Client) Revalidate() {
	select {
	case c.cmds <- cmdRevalidate{trigger: triggerManual}:
	case <-c.ctx.Done():
	}
}

// SetReady flips the readiness gate. Turning it on dispatches the held-back
// initial evaluation.
func (c *Client) SetReady(ready bool) {
	select {
	case c.cmds <- cmdReady{ready: ready}:
	case <-c.ctx.Done():
	}
}

// Update replaces the user and traits. A new evaluation is dispatched only
// when the derived input actually differs from the latest known one.
func (c *Client) Update(user *User, traits Traits) error {
	if user != nil && user.Key == "" {
		return ConfigError{Field: "user", Message: "user key is required when a user is set"}
	}
	reply := make(chan error, 1)
	select {
	case c.cmds <- cmdUpdate{user: user, traits: traits, reply: reply}:
		return <-reply
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Watch returns a channel of flag bags, primed with the current one and fed
// on every state transition until ctx is cancelled or the client closes.
// The channel carries latest-value semantics: intermediate bags may be
// dropped for a slow reader, the newest is always delivered.
func (c *Client) Watch(ctx context.Context) <-chan FlagBag {
	ch := make(chan FlagBag, 1)
	ch <- c.Bag()

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
		}
		c.removeSub(ch)
	}()
	return ch
}

func (c *Client) removeSub(ch chan FlagBag) {
	c.subMu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
}

// WaitSettled blocks until the current evaluation cycle reaches a terminal
// result and returns the bag at that point. When the evaluation settled with
// a failure, the resolving error is returned alongside the (possibly stale)
// bag.
func (c *Client) WaitSettled(ctx context.Context) (FlagBag, error) {
	sub := c.Watch(ctx)
	for {
		v := c.snap.Load()
		if v.hasCurrent && !v.bag.Fetching {
			if v.err != "" {
				return v.bag, v.err
			}
			return v.bag, nil
		}
		select {
		case <-ctx.Done():
			return c.Bag(), ctx.Err()
		case _, ok := <-sub:
			if !ok {
				return c.Bag(), ErrClosed
			}
		}
	}
}

// Close stops the run loop, waits for in-flight fetches to drain, and closes
// all subscriber channels. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.focusUnsub != nil {
		c.focusUnsub()
	}
	c.cancel()
	<-c.loopDone
	c.fetches.Wait()

	c.subMu.Lock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
	return nil
}
