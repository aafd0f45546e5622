// Package registry holds the client applications allowed to use the content routes.
package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/model"
	"github.com/and161185/accountd/internal/repository"
)

// Static is an immutable in-memory ClientRegistry.
type Static struct {
	clients map[string]model.ClientCredentialPair
}

var _ repository.ClientRegistry = (*Static)(nil)

// NewStatic builds a registry from a client id to secret map. Empty ids or
// secrets are rejected.
func NewStatic(secrets map[string]string) (*Static, error) {
	clients := make(map[string]model.ClientCredentialPair, len(secrets))
	for id, secret := range secrets {
		if id == "" || secret == "" {
			return nil, fmt.Errorf("registry: %w: client %q has an empty id or secret", errs.ErrInvalidInput, id)
		}
		clients[id] = model.ClientCredentialPair{ClientID: id, ClientSecret: secret}
	}
	return &Static{clients: clients}, nil
}

func (s *Static) Lookup(_ context.Context, clientID string) (model.ClientCredentialPair, error) {
	p, ok := s.clients[clientID]
	if !ok {
		return model.ClientCredentialPair{}, errs.ErrNotFound
	}
	return p, nil
}

// IDs returns the registered client ids in sorted order.
func (s *Static) IDs() []string {
	return slices.Sorted(maps.Keys(s.clients))
}
