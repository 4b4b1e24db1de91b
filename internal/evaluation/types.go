// Package evaluation defines the client-side evaluation data model: the
// canonical evaluation input, the outcome returned by the flag service, and
// the resolution error kinds.
//
// An Input is immutable once constructed. NewInput normalizes the request
// body through a JSON round-trip and precomputes a canonical fingerprint, so
// two inputs built from structurally equal data compare equal no matter how
// their trait maps were populated.
package evaluation

// Flags maps flag keys to their evaluated values. Values are restricted to
// the JSON scalar set the service emits: bool, string or float64.
type Flags map[string]any

// Traits is the free-form trait payload attached to an evaluation request.
// Values must be JSON-serializable (scalars, nested maps and slices).
type Traits map[string]any

// User identifies an authenticated user, distinct from the anonymous visitor.
type User struct {
	Key        string         `json:"key"`
	Email      string         `json:"email,omitempty"`
	Name       string         `json:"name,omitempty"`
	Country    string         `json:"country,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RequestBody is the JSON body sent to POST {endpoint}/{envKey}.
// An empty VisitorKey means no visitor identity accompanies the request.
type RequestBody struct {
	VisitorKey string `json:"visitorKey"`
	User       *User  `json:"user,omitempty"`
	Traits     Traits `json:"traits,omitempty"`
	Static     bool   `json:"static"`
}

// Visitor carries the server-assigned visitor identity in a response.
type Visitor struct {
	Key string `json:"key"`
}

// ResponseBody is the JSON body of a successful evaluation response.
type ResponseBody struct {
	Flags   Flags    `json:"flags"`
	Visitor *Visitor `json:"visitor,omitempty"`
}

// Outcome is one successful evaluation result, tied to exactly one Input.
type Outcome struct {
	Body ResponseBody `json:"responseBody"`
}

// ServerVisitorKey returns the server-assigned visitor key, or "" when the
// response carried none.
func (o *Outcome) ServerVisitorKey() string {
	if o == nil || o.Body.Visitor == nil {
		return ""
	}
	return o.Body.Visitor.Key
}

// MergeFlags overlays raw onto defaults, raw winning per key. A nil raw map
// yields nil: defaults alone are never presented as a settled answer.
func MergeFlags(defaults, raw Flags) Flags {
	if raw == nil {
		return nil
	}
	merged := make(Flags, len(defaults)+len(raw))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range raw {
		merged[k] = v
	}
	return merged
}

// ResolvingError enumerates the recoverable ways an evaluation can fail.
// These are absorbed into state rather than returned as call errors.
type ResolvingError string

const (
	// ErrResponseNotOK means the service answered with a non-2xx status.
	ErrResponseNotOK ResolvingError = "response-not-ok"
	// ErrInvalidResponseBody means the response body failed to parse.
	ErrInvalidResponseBody ResolvingError = "invalid-response-body"
	// ErrNetwork means the request produced no response at all.
	ErrNetwork ResolvingError = "network-error"
)

// Error implements the error interface.
func (e ResolvingError) Error() string { return string(e) }
