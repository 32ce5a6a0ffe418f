// Package apikey resolves the hosted model's API key from the environment or
// from SSM Parameter Store.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrMissing means no usable API key is configured.
var ErrMissing = errors.New("apikey: no API key configured")

type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// SecretGetter is satisfied by *paramstore.Client.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type staticSource struct {
	key string
}

// Static returns a Source for a key known at startup, usually from an
// environment variable. A blank key yields ErrMissing on every call.
func Static(key string) Source {
	return staticSource{key: strings.TrimSpace(key)}
}

func (s staticSource) APIKey(context.Context) (string, error) {
	if s.key == "" {
		return "", ErrMissing
	}
	return s.key, nil
}

// ParamStoreSource fetches the key from SSM on first use. A successful value
// is reused for the lifetime of the process; failures are retried on the next call.
type ParamStoreSource struct {
	getter SecretGetter
	name   string

	mu  sync.Mutex
	key string
}

func FromParamStore(getter SecretGetter, name string) (*ParamStoreSource, error) {
	if getter == nil {
		return nil, errors.New("apikey: secret getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("apikey: parameter name must not be empty")
	}
	return &ParamStoreSource{getter: getter, name: name}, nil
}

func (s *ParamStoreSource) APIKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != "" {
		return s.key, nil
	}

	key, err := s.getter.GetSecret(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("apikey: fetch %q: %w", s.name, err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissing
	}
	s.key = key
	return key, nil
}
