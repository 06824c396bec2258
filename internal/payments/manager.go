package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/erp-saas/pdv/internal/domain"
)

// Manager sends each payment to the provider that handles its method.
type Manager struct {
	providers map[string]Processor
	routes    map[domain.PaymentMethod]string
	fallback  string
}

type managerSettings struct {
	defaultProvider string
	routes          map[string]string
}

// ManagerOption customises NewManager.
type ManagerOption func(*managerSettings)

// WithDefaultProvider names the provider for methods without a route.
func WithDefaultProvider(provider string) ManagerOption {
	return func(s *managerSettings) { s.defaultProvider = provider }
}

// WithMethodRoutes maps payment methods to providers. Keys accept the same aliases as
// domain.ParsePaymentMethod, so "dinheiro" and "cash" are the same route.
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(s *managerSettings) {
		if s.routes == nil {
			s.routes = make(map[string]string, len(routes))
		}
		maps.Copy(s.routes, routes)
	}
}

// NewManager validates the provider table up front: every route and the default provider
// must name a registered provider.
func NewManager(providers map[string]Processor, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	var s managerSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	m := &Manager{
		providers: make(map[string]Processor, len(providers)),
		routes:    make(map[domain.PaymentMethod]string, len(s.routes)),
	}
	for name, p := range providers {
		key := providerKey(name)
		if key == "" || p == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = p
	}

	for rawMethod, rawProvider := range s.routes {
		method := domain.ParsePaymentMethod(rawMethod)
		if !method.Valid() {
			return nil, fmt.Errorf("payments: route for unknown method %q", rawMethod)
		}
		key := providerKey(rawProvider)
		if _, ok := m.providers[key]; !ok {
			return nil, fmt.Errorf("payments: method %s routed to unregistered provider %q", method, rawProvider)
		}
		m.routes[method] = key
	}

	switch key := providerKey(s.defaultProvider); {
	case key != "":
		if _, ok := m.providers[key]; !ok {
			return nil, fmt.Errorf("payments: default provider %q is not registered", s.defaultProvider)
		}
		m.fallback = key
	case len(m.providers) == 1:
		for only := range m.providers {
			m.fallback = only
		}
	}
	return m, nil
}

// Providers lists the registered provider names in order.
func (m *Manager) Providers() []string {
	if m == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(m.providers))
}

// ProviderFor reports which provider would settle method.
func (m *Manager) ProviderFor(method string) (string, error) {
	if m == nil {
		return "", ErrUnsupportedProvider
	}
	if key, ok := m.routes[domain.ParsePaymentMethod(method)]; ok {
		return key, nil
	}
	if m.fallback != "" {
		return m.fallback, nil
	}
	return "", fmt.Errorf("%w: no provider for method %q", ErrUnsupportedProvider, method)
}

// Process settles req with its preferred provider, or else the one routed for its method,
// and stamps the provider name on the result. An unregistered preferred provider is
// ErrUnsupportedProvider.
func (m *Manager) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	key, err := m.resolve(req)
	if err != nil {
		return ProcessResult{}, err
	}
	result, err := m.providers[key].Process(ctx, req)
	if err != nil {
		return ProcessResult{}, err
	}
	result.Provider = key
	return result, nil
}

func (m *Manager) resolve(req ProcessRequest) (string, error) {
	preferred := providerKey(req.Provider)
	if preferred == "" {
		return m.ProviderFor(req.Method)
	}
	if m == nil {
		return "", ErrUnsupportedProvider
	}
	if _, ok := m.providers[preferred]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider)
	}
	return preferred, nil
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
