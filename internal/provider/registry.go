package provider

import (
	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Registry holds the configured provider clients. It is constructed once at
// startup and passed by dependency injection; there are no ambient globals
// or lazy client initialization.
type Registry struct {
	clients map[models.Provider]Client
}

// NewRegistry builds a registry from the given clients.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[models.Provider]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
		log.Info().Str("provider", string(c.Name())).Msg("Provider registered")
	}
	return r
}

// Get returns the client for a provider, or an AuthConfigError naming the
// missing provider when it was never configured (no API key at startup).
func (r *Registry) Get(p models.Provider) (Client, error) {
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, &AuthConfigError{Provider: p, Reason: "provider not configured (missing API key)"}
}

// Providers lists the configured provider names.
func (r *Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	return out
}
