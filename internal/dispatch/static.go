package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// StaticFunc is a locally registered tool handler. It receives the raw
// argument object from the tool call and returns the output payload.
type StaticFunc func(ctx context.Context, args json.RawMessage) (string, error)

// StaticRegistry holds process-local tool handlers keyed by function name.
type StaticRegistry struct {
	mu    sync.RWMutex
	funcs map[string]StaticFunc
}

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{funcs: map[string]StaticFunc{}}
}

// Register adds a handler, replacing any previous one under the same name.
func (r *StaticRegistry) Register(name string, fn StaticFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the handler for name, if registered.
func (r *StaticRegistry) Lookup(name string) (StaticFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltins installs the handlers every assistant gets regardless of
// function-calling mode.
func RegisterBuiltins(r *StaticRegistry) {
	r.Register("get_current_time", func(_ context.Context, _ json.RawMessage) (string, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	})
	r.Register("echo", func(_ context.Context, args json.RawMessage) (string, error) {
		if len(args) == 0 {
			return "", nil
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", fmt.Errorf("decode echo arguments: %w", err)
		}
		return payload.Text, nil
	})
}
