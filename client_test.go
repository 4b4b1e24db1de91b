package flagbag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/testutil"
	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newTestClient(t *testing.T, svc *testutil.EvalService, extra ...Option) *Client {
	t.Helper()
	opts := append([]Option{
		WithEndpoint(svc.URL()),
		WithEnvKey("env-1"),
	}, extra...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_EvaluatesOnStart(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc)

	bag, err := c.WaitSettled(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if bag.Flags["x"] != true {
		t.Errorf("Expected flag x=true, got %v", bag.Flags["x"])
	}
	if bag.Fetching {
		t.Error("Expected fetching false after settle")
	}
	if !bag.Settled {
		t.Error("Expected settled true after a non-static success")
	}
	if bag.VisitorKey == "" {
		t.Error("Expected a generated visitor key on the settled bag")
	}
	if body, ok := svc.LastBody(); !ok || body.Static {
		t.Error("Expected a non-static evaluation request")
	}
}

func TestClient_DefaultsMergedUnderRawFlags(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc, WithDefaults(Flags{"x": false, "y": "fallback"}))

	bag, err := c.WaitSettled(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if bag.Flags["x"] != true {
		t.Error("Expected evaluated value to win over the default")
	}
	if bag.Flags["y"] != "fallback" {
		t.Error("Expected the default to fill the unevaluated key")
	}
	if len(bag.RawFlags) != 1 {
		t.Errorf("Expected raw flags to carry only evaluated keys, got %v", bag.RawFlags)
	}
}

func TestClient_OutOfOrderResponseDiscarded(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body evaluation.RequestBody
		_ = json.NewDecoder(r.Body).Decode(&body)

		plan, _ := body.Traits["plan"].(string)
		if plan == "free" {
			close(firstArrived)
			<-releaseFirst
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(evaluation.ResponseBody{Flags: Flags{"plan": plan}})
	}))
	defer srv.Close()

	c, err := New(
		WithEndpoint(srv.URL),
		WithEnvKey("env-1"),
		WithTraits(Traits{"plan": "free"}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	<-firstArrived
	if err := c.Update(nil, Traits{"plan": "pro"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	bag, err := c.WaitSettled(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if bag.Flags["plan"] != "pro" {
		t.Fatalf("Expected the newer evaluation to win, got %v", bag.Flags["plan"])
	}

	// Now let the superseded response arrive; it must be discarded.
	close(releaseFirst)
	time.Sleep(50 * time.Millisecond)

	if got := c.Bag().Flags["plan"]; got != "pro" {
		t.Errorf("Expected the stale response to be dropped, flags regressed to %v", got)
	}
}

func TestClient_NetworkErrorSurfacedNotThrown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c, err := New(WithEndpoint(srv.URL), WithEnvKey("env-1"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	bag, err := c.WaitSettled(waitCtx(t))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Expected network-error, got %v", err)
	}
	if bag.Flags != nil {
		t.Errorf("Expected nil flags after a transport failure with no cache, got %v", bag.Flags)
	}
	if c.LastError() == nil {
		t.Error("Expected LastError to report the failure")
	}
}

func TestClient_UpdateWithEqualInputDoesNotRefetch(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc, WithTraits(Traits{"plan": "pro", "seats": 3}))
	if _, err := c.WaitSettled(waitCtx(t)); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if svc.RequestCount() != 1 {
		t.Fatalf("Expected one initial request, got %d", svc.RequestCount())
	}

	// Same traits, different insertion order: structurally equal input.
	if err := c.Update(nil, Traits{"seats": 3, "plan": "pro"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if svc.RequestCount() != 1 {
		t.Errorf("Expected no new fetch for an equal input, got %d requests", svc.RequestCount())
	}

	if err := c.Update(nil, Traits{"plan": "free"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	waitFor(t, func() bool { return svc.RequestCount() == 2 },
		"Expected a changed input to dispatch a new evaluation")
}

func TestClient_ReadyGateHoldsBackEvaluation(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc, WithReady(false))

	time.Sleep(50 * time.Millisecond)
	if svc.RequestCount() != 0 {
		t.Fatalf("Expected no requests while not ready, got %d", svc.RequestCount())
	}
	if c.Bag().Fetching {
		t.Error("Expected fetching false while gated")
	}

	c.SetReady(true)
	bag, err := c.WaitSettled(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if bag.Flags["x"] != true {
		t.Error("Expected evaluation to run once ready")
	}
}

func TestClient_RevalidateOnFocus(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	notifier := NewFocusNotifier()

	c := newTestClient(t, svc, WithFocusNotifier(notifier))
	if _, err := c.WaitSettled(waitCtx(t)); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	notifier.Focus()
	waitFor(t, func() bool { return svc.RequestCount() == 2 },
		"Expected focus to trigger a revalidation")
}

func TestClient_FocusIgnoredWhenNotReady(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	notifier := NewFocusNotifier()

	newTestClient(t, svc, WithFocusNotifier(notifier), WithReady(false))

	notifier.Focus()
	time.Sleep(50 * time.Millisecond)
	if got := svc.RequestCount(); got != 0 {
		t.Errorf("Expected no requests while gated, got %d", got)
	}
}

func TestClient_FocusSubscriptionDisabled(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	notifier := NewFocusNotifier()

	newTestClient(t, svc, WithFocusNotifier(notifier), WithRevalidateOnFocus(false))

	if notifier.Len() != 0 {
		t.Error("Expected no focus subscription when revalidate-on-focus is disabled")
	}
}

func TestClient_FocusSubscriptionTornDownOnClose(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	notifier := NewFocusNotifier()

	c := newTestClient(t, svc, WithFocusNotifier(notifier))
	if notifier.Len() != 1 {
		t.Fatalf("Expected one focus subscription, got %d", notifier.Len())
	}

	_ = c.Close()
	if notifier.Len() != 0 {
		t.Error("Expected the focus subscription to be removed on Close")
	}
}

func TestClient_ServerAssignedVisitorKeyPersisted(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	svc.AssignVisitorKey("srv-9")
	store := visitor.NewMemoryStore()

	c := newTestClient(t, svc, WithIdentityStore(store))

	bag, err := c.WaitSettled(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}
	if bag.VisitorKey != "srv-9" {
		t.Errorf("Expected the server-assigned key on the bag, got %q", bag.VisitorKey)
	}
	if store.Get() != "srv-9" {
		t.Errorf("Expected the server-assigned key to be persisted, got %q", store.Get())
	}
}

func TestClient_PersistedVisitorKeyWinsOverGenerated(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{})
	store := visitor.NewMemoryStore()
	store.Set("cookie-key")

	c := newTestClient(t, svc, WithIdentityStore(store))
	if _, err := c.WaitSettled(waitCtx(t)); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	body, ok := svc.LastBody()
	if !ok || body.VisitorKey != "cookie-key" {
		t.Errorf("Expected the persisted key on the request, got %q", body.VisitorKey)
	}
}

func TestClient_InitialStateStaysProvisional(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true, "fresh": true})

	staticInput, err := NewInput(svc.URL(), "env-1", RequestBody{VisitorKey: "v1", Static: true})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}
	initial := InitialState{
		Input:   staticInput,
		Outcome: Outcome{Body: ResponseBody{Flags: Flags{"x": true}}},
	}

	c := newTestClient(t, svc, WithInitialState(initial), WithReady(false))

	bag := c.Bag()
	if bag.Flags["x"] != true {
		t.Error("Expected pre-rendered flags to be visible immediately")
	}
	if bag.Settled {
		t.Error("Expected a static initial result to stay unsettled")
	}

	c.SetReady(true)
	waitFor(t, func() bool { return c.Bag().Settled },
		"Expected a live evaluation to settle after ready")
	if c.Bag().Flags["fresh"] != true {
		t.Error("Expected the live evaluation's flags to replace the static ones")
	}
}

func TestClient_WatchDeliversTransitions(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc)
	if _, err := c.WaitSettled(waitCtx(t)); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	ctx := waitCtx(t)
	ch := c.Watch(ctx)

	svc.SetFlags("env-1", Flags{"x": false})
	c.Bag().Revalidate()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case bag, ok := <-ch:
			if !ok {
				t.Fatal("Expected watch channel to stay open")
			}
			if bag.Settled && bag.Flags["x"] == false {
				return
			}
		case <-deadline:
			t.Fatal("Expected watch to deliver the revalidated bag")
		}
	}
}

func TestClient_CloseIsIdempotentAndClosesWatchers(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})

	c := newTestClient(t, svc)
	ch := c.Watch(context.Background())

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	waitFor(t, func() bool {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, "Expected watch channel to be closed after Close")

	c.Revalidate() // must not block or panic on a closed client
}

func TestNew_ConfigErrors(t *testing.T) {
	cases := []struct {
		name  string
		opts  []Option
		field string
	}{
		{"missing endpoint", []Option{WithEnvKey("env-1")}, "endpoint"},
		{"missing env key", []Option{WithEndpoint("https://flags.example.com")}, "envKey"},
		{
			"user without key",
			[]Option{WithEndpoint("https://flags.example.com"), WithEnvKey("env-1"), WithUser(&User{Email: "a@b.c"})},
			"user",
		},
		{
			"nil identity store",
			[]Option{WithEndpoint("https://flags.example.com"), WithEnvKey("env-1"), WithIdentityStore(nil)},
			"identityStore",
		},
		{
			"unserializable traits",
			[]Option{WithEndpoint("https://flags.example.com"), WithEnvKey("env-1"), WithTraits(Traits{"ch": make(chan int)})},
			"traits",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts...)
			var cfgErr ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected a ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("Expected field %q, got %q", tc.field, cfgErr.Field)
			}
		})
	}
}

func TestClient_UpdateRejectsUserWithoutKey(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{})

	c := newTestClient(t, svc)
	err := c.Update(&User{Email: "a@b.c"}, nil)

	var cfgErr ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected a ConfigError, got %v", err)
	}
}

func TestClient_SharedCacheServesStaleOnFailure(t *testing.T) {
	svc := testutil.NewEvalService(t)
	svc.SetFlags("env-1", Flags{"x": true})
	shared := NewCache()

	c := newTestClient(t, svc, WithCache(shared))
	if _, err := c.WaitSettled(waitCtx(t)); err != nil {
		t.Fatalf("WaitSettled failed: %v", err)
	}

	// Kill the service and revalidate: the failure must fall back to the
	// cached outcome instead of blanking the flags.
	svc.Server.Close()
	c.Revalidate()

	waitFor(t, func() bool { return c.LastError() != nil },
		"Expected the revalidation to settle with a failure")
	if got := c.Bag().Flags["x"]; got != true {
		t.Errorf("Expected stale cached flags to remain visible, got %v", got)
	}
}
