package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Input is one canonical evaluation request: where to evaluate (endpoint,
// environment key) and for whom (request body). It is the unit of cache
// identity and of staleness comparison, so it must never change after
// construction; build a new one instead.
type Input struct {
	endpoint string
	envKey   string
	body     RequestBody

	canon []byte
	sum   uint64
}

// inputDoc fixes the canonical serialization of an Input. encoding/json
// writes struct fields in declaration order and sorts map keys, which makes
// the output deterministic for structurally equal inputs.
type inputDoc struct {
	Endpoint string      `json:"endpoint"`
	EnvKey   string      `json:"envKey"`
	Body     RequestBody `json:"requestBody"`
}

// NewInput builds an immutable Input. The request body is normalized through
// a JSON round-trip: numeric trait values collapse to float64, and the stored
// copy is detached from any maps the caller may keep mutating. It fails when
// the body contains values JSON cannot represent.
func NewInput(endpoint, envKey string, body RequestBody) (Input, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Input{}, fmt.Errorf("failed to canonicalize request body: %w", err)
	}
	var norm RequestBody
	if err := json.Unmarshal(raw, &norm); err != nil {
		return Input{}, fmt.Errorf("failed to normalize request body: %w", err)
	}

	canon, err := json.Marshal(inputDoc{Endpoint: endpoint, EnvKey: envKey, Body: norm})
	if err != nil {
		return Input{}, fmt.Errorf("failed to fingerprint input: %w", err)
	}

	return Input{
		endpoint: endpoint,
		envKey:   envKey,
		body:     norm,
		canon:    canon,
		sum:      xxhash.Sum64(canon),
	}, nil
}

// Endpoint returns the evaluation service base URL.
func (in Input) Endpoint() string { return in.endpoint }

// EnvKey returns the environment key the input evaluates against.
func (in Input) EnvKey() string { return in.envKey }

// Body returns the normalized request body. Treat the contained maps as
// read-only; mutating them would desynchronize the fingerprint.
func (in Input) Body() RequestBody { return in.body }

// Sum returns the xxhash of the canonical form, used as the cache bucket key.
func (in Input) Sum() uint64 { return in.sum }

// IsZero reports whether the input was never constructed via NewInput.
func (in Input) IsZero() bool { return in.canon == nil }

// Equal reports structural equality: true iff every field of both inputs is
// deep-equal. Trait map insertion order does not matter.
func (in Input) Equal(other Input) bool {
	return in.sum == other.sum && bytes.Equal(in.canon, other.canon)
}

// String returns the canonical JSON form, handy for debug logging.
func (in Input) String() string {
	if in.canon == nil {
		return "{}"
	}
	return string(in.canon)
}

// MarshalJSON serializes the canonical form.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.canon == nil {
		return []byte("null"), nil
	}
	return in.canon, nil
}

// UnmarshalJSON rebuilds an Input from its canonical form. Used when a
// pre-rendered initial state is transferred between processes.
func (in *Input) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*in = Input{}
		return nil
	}
	var doc inputDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	rebuilt, err := NewInput(doc.Endpoint, doc.EnvKey, doc.Body)
	if err != nil {
		return err
	}
	*in = rebuilt
	return nil
}
