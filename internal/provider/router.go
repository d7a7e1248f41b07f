package provider

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Role names a consumer of the router: the narrator writes scene text,
// the summarizer folds transcript into the digest.
const (
	RoleNarrator   = "narrator"
	RoleSummarizer = "summarizer"
)

// Router manages multiple LLM backends and routes requests by role.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // role -> providerID
	fallbacks map[string][]string // role -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a backend to the router. The first registered backend
// becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default backend.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// DefaultID returns the current default backend ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind associates a role with a specific backend.
func (r *Router) Bind(role, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[role] = providerID
}

// SetFallbacks configures fallback backends for a role.
func (r *Router) SetFallbacks(role string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[role] = providerIDs
}

// Route sends a chat request through the backend bound to the role,
// falling through the role's fallback chain on error.
func (r *Router) Route(ctx context.Context, role string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.getProvider(role)
	if primary == nil {
		return nil, fmt.Errorf("no provider available for role %s", role)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("role", role), zap.Error(err))

	for _, fbID := range r.fallbacks[role] {
		fb, ok := r.providers[fbID]
		if !ok {
			continue
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed for role %s: %w", role, err)
}

// RouteStream sends a streaming chat request. Streams do not fall back.
func (r *Router) RouteStream(ctx context.Context, role string, req *ChatRequest) (<-chan *StreamChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.getProvider(role)
	if primary == nil {
		return nil, fmt.Errorf("no provider available for role %s", role)
	}
	return primary.ChatStream(ctx, req)
}

func (r *Router) getProvider(role string) Provider {
	if pid, ok := r.bindings[role]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a backend by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered backends.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}
