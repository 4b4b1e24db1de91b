package visitor

import (
	"net/http"
	"sync"
	"time"
)

// CookieStore persists the visitor key as an HTTP cookie, for hosts that
// embed the SDK inside a request handler. Get reads the request's cookie;
// Set writes a fresh cookie onto the response.
type CookieStore struct {
	mu  sync.Mutex
	key string
	w   http.ResponseWriter
}

// NewCookieStore creates a store seeded from the request's visitor cookie.
// The response writer may be nil; Set then only updates the in-memory key.
func NewCookieStore(r *http.Request, w http.ResponseWriter) *CookieStore {
	s := &CookieStore{w: w}
	if c, err := r.Cookie(CookieName); err == nil {
		s.key = c.Value
	}
	return s
}

// Get returns the key carried by the request, or the last one Set.
func (s *CookieStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Set stores the key and writes it to the response as a year-long cookie.
func (s *CookieStore) Set(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = key
	if s.w != nil {
		http.SetCookie(s.w, &http.Cookie{
			Name:     CookieName,
			Value:    key,
			Path:     "/",
			MaxAge:   int((365 * 24 * time.Hour).Seconds()),
			SameSite: http.SameSiteLaxMode,
		})
	}
}
