package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
)

func mustInput(t *testing.T, visitorKey string, traits evaluation.Traits) evaluation.Input {
	t.Helper()
	in, err := evaluation.NewInput("https://flags.example.com", "env-1", evaluation.RequestBody{
		VisitorKey: visitorKey,
		Traits:     traits,
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}
	return in
}

func TestCache_GetMissReturnsNil(t *testing.T) {
	c := New()
	in := mustInput(t, "v1", nil)

	if got := c.Get(in); got != nil {
		t.Errorf("Expected nil for uncached input, got %+v", got)
	}
}

func TestCache_SetThenGet(t *testing.T) {
	c := New()
	in := mustInput(t, "v1", evaluation.Traits{"plan": "pro"})
	out := evaluation.Outcome{Body: evaluation.ResponseBody{Flags: evaluation.Flags{"x": true}}}

	c.Set(in, out)

	got := c.Get(in)
	if got == nil {
		t.Fatal("Expected cached outcome, got nil")
	}
	if got.Body.Flags["x"] != true {
		t.Errorf("Expected flag x=true, got %v", got.Body.Flags["x"])
	}
}

func TestCache_KeyedByStructuralIdentityNotInstance(t *testing.T) {
	c := New()
	out := evaluation.Outcome{Body: evaluation.ResponseBody{Flags: evaluation.Flags{"x": true}}}

	c.Set(mustInput(t, "v1", evaluation.Traits{"plan": "pro", "seats": 3}), out)

	// A separately constructed, structurally equal input must hit.
	lookup := mustInput(t, "v1", evaluation.Traits{"seats": 3, "plan": "pro"})
	if got := c.Get(lookup); got == nil {
		t.Error("Expected structurally equal input to hit the cache")
	}

	// A different input must miss.
	other := mustInput(t, "v1", evaluation.Traits{"plan": "free"})
	if got := c.Get(other); got != nil {
		t.Errorf("Expected different input to miss, got %+v", got)
	}
}

func TestCache_SetReplacesExistingEntry(t *testing.T) {
	c := New()
	in := mustInput(t, "v1", nil)

	c.Set(in, evaluation.Outcome{Body: evaluation.ResponseBody{Flags: evaluation.Flags{"x": false}}})
	c.Set(in, evaluation.Outcome{Body: evaluation.ResponseBody{Flags: evaluation.Flags{"x": true}}})

	if c.Len() != 1 {
		t.Errorf("Expected 1 entry after replacement, got %d", c.Len())
	}
	if got := c.Get(in); got.Body.Flags["x"] != true {
		t.Errorf("Expected replaced outcome, got %v", got.Body.Flags["x"])
	}
}

func TestCache_ReturnedOutcomeIsACopy(t *testing.T) {
	c := New()
	in := mustInput(t, "v1", nil)
	c.Set(in, evaluation.Outcome{Body: evaluation.ResponseBody{Visitor: &evaluation.Visitor{Key: "v1"}}})

	first := c.Get(in)
	first.Body.Visitor = nil

	second := c.Get(in)
	if second.Body.Visitor == nil {
		t.Error("Mutating a returned outcome struct affected the cached entry")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := mustInputConcurrent(t, fmt.Sprintf("v%d", n))
			c.Set(in, evaluation.Outcome{Body: evaluation.ResponseBody{Flags: evaluation.Flags{"n": float64(n)}}})
			for j := 0; j < 100; j++ {
				_ = c.Get(in)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 16 {
		t.Errorf("Expected 16 entries, got %d", c.Len())
	}
}

// mustInputConcurrent avoids t.Fatalf from non-test goroutines.
func mustInputConcurrent(t *testing.T, visitorKey string) evaluation.Input {
	in, err := evaluation.NewInput("https://flags.example.com", "env-1", evaluation.RequestBody{
		VisitorKey: visitorKey,
	})
	if err != nil {
		t.Errorf("NewInput failed: %v", err)
	}
	return in
}
