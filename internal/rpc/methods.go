package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tron-run/tron/internal/apperr"
)

// Handler answers one dot-separated method (session.create, agent.message,
// ...) given its raw JSON params, independent of any transport. Handlers
// unmarshal their own typed params struct from raw and return a
// JSON-marshalable result.
type Handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Registry is the dot-separated method table spec §4.G calls for: chi
// routes and the generic /rpc endpoint both resolve a method name through
// the same Dispatch, so the handler set is reachable with or without HTTP
// in the loop (tests call Dispatch directly).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds an empty method table.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds method to h, overwriting any prior binding — used once
// at server construction time per method, never concurrently with Dispatch.
func (r *Registry) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Dispatch looks up method and invokes it with raw. An unknown method is
// itself an apperr.KindInvalidInput so the wire translation stays uniform.
func (r *Registry) Dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.InvalidInput(fmt.Sprintf("unknown method %q", method))
	}
	if raw == nil {
		raw = json.RawMessage("{}")
	}
	return h(ctx, raw)
}

// Methods returns every registered method name, sorted, for introspection
// (the /rpc endpoint's GET form and tests enumerating coverage).
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeParams unmarshals raw into dst, wrapping a malformed body as
// invalid input rather than letting a raw encoding/json error reach the
// wire boundary untagged.
func decodeParams(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.InvalidInput(fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

// requireString returns apperr.InvalidInput naming field if value is empty.
func requireString(field, value string) error {
	if value == "" {
		return apperr.InvalidInput(fmt.Sprintf("%s is required", field))
	}
	return nil
}
