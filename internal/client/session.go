package client

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// State is the locally cached, non-authoritative session snapshot: token,
// CSRF token, role, tenant binding and the numeric expiry. It is mutated
// through exactly one entry point (Set) and torn down through exactly one
// (Clear) so the session invariants hold in one place.
type State struct {
	Token     string `json:"token"`
	CSRFToken string `json:"csrf_token,omitempty"`
	Role      string `json:"role"`
	TenantID  string `json:"tenant_id,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
}

// Empty reports whether no session is held.
func (s State) Empty() bool { return s.Token == "" }

// Expired checks the locally cached expiry against the given instant.
func (s State) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// SessionCache holds the session state in memory with optional file
// persistence (0600, atomic rename). Reauth tokens are never cached here:
// they live in memory only, at the call site, for their few seconds of life.
type SessionCache struct {
	mu    sync.Mutex
	path  string
	state State
}

// NewSessionCache creates a cache. With a non-empty path the previous
// session is loaded from disk if present.
func NewSessionCache(path string) (*SessionCache, error) {
	c := &SessionCache{path: path}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		// A corrupt cache is discarded, not fatal.
		c.state = State{}
	}
	return c, nil
}

// Get returns the current snapshot.
func (c *SessionCache) Get() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Set installs a new session. The only mutation entry point.
func (c *SessionCache) Set(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	return c.persist()
}

// Clear drops all session-derived local state atomically. The only teardown
// entry point, used on logout and on detected invalidation.
func (c *SessionCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{}
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (c *SessionCache) persist() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
