package llm

import (
	"sync"
	"time"
)

// EndpointConfig describes one configured model endpoint.
type EndpointConfig struct {
	// Provider is the provider adapter name (openai, anthropic, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens caps the response length for this endpoint. 0 uses the
	// provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// endpointHealth tracks consecutive failures for circuit breaking.
type endpointHealth struct {
	failures int
	openedAt time.Time
	open     bool
}

// Registry maps capabilities to ordered endpoint chains and tracks endpoint
// health so the client can skip endpoints that keep failing.
type Registry struct {
	mu        sync.RWMutex
	chains    map[Capability][]string
	endpoints map[string]*EndpointConfig
	health    map[string]*endpointHealth

	// FailureThreshold is the consecutive-failure count that opens the
	// circuit for an endpoint.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit stays closed to traffic
	// before one probe request is allowed through.
	RecoveryTimeout time.Duration
}

// NewRegistry creates a registry from capability chains and endpoint configs.
func NewRegistry(chains map[Capability][]string, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		chains:           chains,
		endpoints:        endpoints,
		health:           make(map[string]*endpointHealth),
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Chain returns the ordered endpoint names for a capability.
func (r *Registry) Chain(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := r.chains[cap]
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}

// AvailableChain returns the capability chain filtered to endpoints whose
// circuit is closed. If every endpoint is unavailable the full chain is
// returned: trying something beats trying nothing.
func (r *Registry) AvailableChain(cap Capability) []string {
	chain := r.Chain(cap)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.Available(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// Endpoint returns the configuration for an endpoint name, or nil.
func (r *Registry) Endpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// SetEndpoint adds or replaces an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// SetChain adds or replaces the endpoint chain for a capability.
func (r *Registry) SetChain(cap Capability, chain []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.chains == nil {
		r.chains = make(map[Capability][]string)
	}
	r.chains[cap] = chain
}

// MarkSuccess resets the failure count and closes the circuit.
func (r *Registry) MarkSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[name] = &endpointHealth{}
}

// MarkFailure records a failed request; enough consecutive failures open
// the circuit.
func (r *Registry) MarkFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.health[name]
	if h == nil {
		h = &endpointHealth{}
		r.health[name] = h
	}
	h.failures++
	if h.failures >= r.FailureThreshold && !h.open {
		h.open = true
		h.openedAt = time.Now()
	}
}

// Available reports whether an endpoint should receive traffic. An open
// circuit allows a probe request after the recovery timeout.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.health[name]
	if h == nil || !h.open {
		return true
	}
	return time.Since(h.openedAt) > r.RecoveryTimeout
}
