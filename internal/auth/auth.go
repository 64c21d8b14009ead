// Package auth maps API keys to configured clients.
package auth

import (
	"fmt"

	"github.com/contexttype/contexttype/internal/config"
)

// Client is a caller identified by one of its API keys.
type Client struct {
	ID string
}

// Auth holds mappings from API keys to clients. With no clients configured
// the host is open and every request is anonymous.
type Auth struct {
	apiKeyToClient map[string]Client
}

// NewFromConfig builds an Auth instance from the loaded config.
func NewFromConfig(cfg *config.Config) (*Auth, error) {
	m := make(map[string]Client)
	if cfg == nil {
		return &Auth{apiKeyToClient: m}, nil
	}

	for _, c := range cfg.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id in config")
		}
		client := Client{ID: c.ID}
		for _, key := range c.APIKeys {
			if key == "" {
				continue
			}
			if _, exists := m[key]; exists {
				return nil, fmt.Errorf("api key %q is assigned to multiple clients", key)
			}
			m[key] = client
		}
	}

	return &Auth{apiKeyToClient: m}, nil
}

// Required reports whether requests must carry an API key.
func (a *Auth) Required() bool {
	return a != nil && len(a.apiKeyToClient) > 0
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil {
		return Client{}, false
	}
	c, ok := a.apiKeyToClient[apiKey]
	return c, ok
}
