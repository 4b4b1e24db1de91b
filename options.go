package flagbag

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/goflagbag/internal/cache"
	"github.com/TimurManjosov/goflagbag/internal/focus"
	"github.com/TimurManjosov/goflagbag/internal/visitor"
)

// Collaborator types consumers may construct and share across clients.
type (
	// Cache is the fingerprint-keyed outcome cache.
	Cache = cache.Cache
	// IdentityStore persists the visitor key across evaluations.
	IdentityStore = visitor.Store
	// FocusNotifier fans focus signals out to subscribed clients.
	FocusNotifier = focus.Notifier
)

// NewCache creates an empty outcome cache, shareable via WithCache.
func NewCache() *Cache { return cache.New() }

// NewMemoryIdentityStore creates a process-lifetime visitor identity store.
func NewMemoryIdentityStore() IdentityStore { return visitor.NewMemoryStore() }

// NewCookieIdentityStore creates an identity store reading the visitor key
// from the request's cookie and writing assignments onto the response. For
// callers embedding the SDK inside an HTTP handler.
func NewCookieIdentityStore(r *http.Request, w http.ResponseWriter) IdentityStore {
	return visitor.NewCookieStore(r, w)
}

// VisitorCookieName is the cookie the cookie identity store reads and writes.
const VisitorCookieName = visitor.CookieName

// NewFocusNotifier creates a notifier, shareable via WithFocusNotifier.
func NewFocusNotifier() *FocusNotifier { return focus.NewNotifier() }

// ConfigError reports a configuration problem that makes the client unable
// to operate at all. It is returned synchronously from New or Update, never
// surfaced through evaluation state.
type ConfigError struct {
	Field   string // name of the offending option
	Message string // human-readable description
}

// Error implements the error interface.
func (e ConfigError) Error() string {
	return fmt.Sprintf("flagbag: invalid configuration [%s]: %s", e.Field, e.Message)
}

// InitialState pre-seeds the client with an already settled evaluation,
// typically transferred from a server-side prefetch. The outcome is cached
// under the input; a static input keeps the bag unsettled until a live
// evaluation settles.
type InitialState struct {
	Input   Input
	Outcome Outcome
}

type settings struct {
	endpoint          string
	envKey            string
	user              *User
	traits            Traits
	defaults          Flags
	initialState      *InitialState
	revalidateOnFocus bool
	ready             bool
	httpClient        *http.Client
	cache             *cache.Cache
	visitors          visitor.Store
	visitorsSet       bool
	log               zerolog.Logger
	focusNotifier     *focus.Notifier
}

// Option configures a Client.
type Option func(*settings)

// WithEndpoint sets the evaluation service base URL. Required.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) { s.endpoint = endpoint }
}

// WithEnvKey sets the environment key evaluations run against. Required.
func WithEnvKey(envKey string) Option {
	return func(s *settings) { s.envKey = envKey }
}

// WithUser sets the authenticated user identity, or nil for anonymous
// evaluation. A non-nil user must carry a Key.
func WithUser(user *User) Option {
	return func(s *settings) { s.user = user }
}

// WithTraits sets the trait payload sent with every evaluation.
func WithTraits(traits Traits) Option {
	return func(s *settings) { s.traits = traits }
}

// WithDefaults sets fallback flag values overlaid under the evaluated flags.
// Defaults only show once a real evaluation has produced flags.
func WithDefaults(defaults Flags) Option {
	return func(s *settings) { s.defaults = defaults }
}

// WithInitialState seeds the client with a pre-settled evaluation.
func WithInitialState(st InitialState) Option {
	return func(s *settings) { s.initialState = &st }
}

// WithRevalidateOnFocus controls whether focus signals trigger a
// revalidation. Default true.
func WithRevalidateOnFocus(enabled bool) Option {
	return func(s *settings) { s.revalidateOnFocus = enabled }
}

// WithReady sets the readiness gate. While false, no evaluation or
// revalidation is dispatched from any path. Default true.
func WithReady(ready bool) Option {
	return func(s *settings) { s.ready = ready }
}

// WithHTTPClient sets the HTTP client used for evaluation requests. The core
// enforces no timeout; configure one here when bounded latency matters.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// WithCache shares an outcome cache across clients. By default each client
// owns a private cache.
func WithCache(c *cache.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithIdentityStore sets the visitor identity persistence (the cookie
// analogue). Defaults to an in-memory store scoped to the client.
func WithIdentityStore(store visitor.Store) Option {
	return func(s *settings) {
		s.visitors = store
		s.visitorsSet = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithFocusNotifier subscribes the client to focus signals for
// revalidate-on-focus behavior.
func WithFocusNotifier(n *focus.Notifier) Option {
	return func(s *settings) { s.focusNotifier = n }
}

func defaultSettings() settings {
	return settings{
		revalidateOnFocus: true,
		ready:             true,
		log:               zerolog.Nop(),
	}
}

func (s *settings) validate() error {
	if s.endpoint == "" {
		return ConfigError{Field: "endpoint", Message: "evaluation endpoint is required"}
	}
	if s.envKey == "" {
		return ConfigError{Field: "envKey", Message: "environment key is required"}
	}
	if s.user != nil && s.user.Key == "" {
		return ConfigError{Field: "user", Message: "user key is required when a user is set"}
	}
	if s.visitorsSet && s.visitors == nil {
		return ConfigError{Field: "identityStore", Message: "identity store must not be nil"}
	}
	return nil
}
