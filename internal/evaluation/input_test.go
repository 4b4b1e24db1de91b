package evaluation

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewInput_EqualityIgnoresTraitInsertionOrder(t *testing.T) {
	traitsA := Traits{}
	traitsA["plan"] = "pro"
	traitsA["seats"] = 12
	traitsA["beta"] = true

	traitsB := Traits{}
	traitsB["beta"] = true
	traitsB["seats"] = 12
	traitsB["plan"] = "pro"

	a, err := NewInput("https://flags.example.com", "env-1", RequestBody{
		VisitorKey: "v1",
		Traits:     traitsA,
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}
	b, err := NewInput("https://flags.example.com", "env-1", RequestBody{
		VisitorKey: "v1",
		Traits:     traitsB,
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	if !a.Equal(b) {
		t.Errorf("Expected inputs to be equal regardless of trait insertion order\na=%s\nb=%s", a, b)
	}
	if a.Sum() != b.Sum() {
		t.Errorf("Expected equal fingerprint sums, got %d and %d", a.Sum(), b.Sum())
	}
}

func TestNewInput_EqualityNormalizesNumbers(t *testing.T) {
	a, err := NewInput("https://flags.example.com", "env-1", RequestBody{
		VisitorKey: "v1",
		Traits:     Traits{"seats": 12},
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}
	b, err := NewInput("https://flags.example.com", "env-1", RequestBody{
		VisitorKey: "v1",
		Traits:     Traits{"seats": float64(12)},
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	if !a.Equal(b) {
		t.Error("Expected int and float64 trait values to normalize to the same input")
	}
}

func TestNewInput_NestedTraits(t *testing.T) {
	a, _ := NewInput("e", "k", RequestBody{
		VisitorKey: "v1",
		Traits: Traits{
			"team": map[string]any{"name": "core", "size": 3},
			"tags": []any{"a", "b"},
		},
	})
	b, _ := NewInput("e", "k", RequestBody{
		VisitorKey: "v1",
		Traits: Traits{
			"tags": []any{"a", "b"},
			"team": map[string]any{"size": 3, "name": "core"},
		},
	})

	if !a.Equal(b) {
		t.Error("Expected nested trait maps to compare structurally")
	}

	c, _ := NewInput("e", "k", RequestBody{
		VisitorKey: "v1",
		Traits: Traits{
			"team": map[string]any{"name": "core", "size": 4},
			"tags": []any{"a", "b"},
		},
	})
	if a.Equal(c) {
		t.Error("Expected differing nested values to produce unequal inputs")
	}
}

func TestNewInput_DifferentFieldsNotEqual(t *testing.T) {
	base := RequestBody{VisitorKey: "v1", Static: false}

	ref, err := NewInput("https://a", "env", base)
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	cases := []struct {
		name     string
		endpoint string
		envKey   string
		body     RequestBody
	}{
		{"endpoint differs", "https://b", "env", base},
		{"envKey differs", "https://a", "env2", base},
		{"visitor differs", "https://a", "env", RequestBody{VisitorKey: "v2"}},
		{"static differs", "https://a", "env", RequestBody{VisitorKey: "v1", Static: true}},
		{"user differs", "https://a", "env", RequestBody{VisitorKey: "v1", User: &User{Key: "u1"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := NewInput(tc.endpoint, tc.envKey, tc.body)
			if err != nil {
				t.Fatalf("NewInput failed: %v", err)
			}
			if ref.Equal(in) {
				t.Errorf("Expected inputs to differ: %s vs %s", ref, in)
			}
		})
	}
}

func TestNewInput_RejectsUnserializableTraits(t *testing.T) {
	_, err := NewInput("e", "k", RequestBody{
		VisitorKey: "v1",
		Traits:     Traits{"ch": make(chan int)},
	})
	if err == nil {
		t.Fatal("Expected error for unserializable trait value")
	}
	if !strings.Contains(err.Error(), "canonicalize") {
		t.Errorf("Expected canonicalization error, got: %v", err)
	}
}

func TestInput_DetachedFromCallerMaps(t *testing.T) {
	traits := Traits{"plan": "pro"}
	in, err := NewInput("e", "k", RequestBody{VisitorKey: "v1", Traits: traits})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	traits["plan"] = "enterprise"

	if got := in.Body().Traits["plan"]; got != "pro" {
		t.Errorf("Expected input to keep its own trait copy, got %v", got)
	}
}

func TestInput_JSONRoundTrip(t *testing.T) {
	in, err := NewInput("https://flags.example.com", "env-1", RequestBody{
		VisitorKey: "v1",
		User:       &User{Key: "u1", Email: "u1@example.com"},
		Traits:     Traits{"plan": "pro"},
		Static:     true,
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	blob, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Input
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !in.Equal(back) {
		t.Errorf("Expected round-tripped input to equal the original\nin=%s\nback=%s", in, back)
	}
	if back.Endpoint() != "https://flags.example.com" || back.EnvKey() != "env-1" {
		t.Errorf("Round trip lost location fields: %s %s", back.Endpoint(), back.EnvKey())
	}
	if !back.Body().Static {
		t.Error("Round trip lost the static marker")
	}
}

func TestInput_ZeroValue(t *testing.T) {
	var zero Input
	if !zero.IsZero() {
		t.Error("Expected zero input to report IsZero")
	}

	built, _ := NewInput("e", "k", RequestBody{VisitorKey: "v"})
	if built.IsZero() {
		t.Error("Expected constructed input not to report IsZero")
	}
	if built.Equal(zero) {
		t.Error("Expected constructed input to differ from zero input")
	}
}

func TestRequestBody_WireShape(t *testing.T) {
	in, err := NewInput("e", "k", RequestBody{
		VisitorKey: "v1",
		Traits:     Traits{"plan": "pro"},
	})
	if err != nil {
		t.Fatalf("NewInput failed: %v", err)
	}

	blob, err := json.Marshal(in.Body())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded["visitorKey"] != "v1" {
		t.Errorf("Expected visitorKey 'v1', got %v", decoded["visitorKey"])
	}
	if decoded["static"] != false {
		t.Errorf("Expected static false, got %v", decoded["static"])
	}
	if _, present := decoded["user"]; present {
		t.Error("Expected nil user to be omitted from the wire body")
	}
}
