// Package tools exposes the reader's operations as named tools with flat
// map arguments, the surface the stdio front end dispatches on.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultTimeout bounds one tool invocation end to end.
const DefaultTimeout = 30 * time.Second

// Handler executes one tool invocation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named operation with a flat argument map.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// ErrorPayload is the uniform failure shape returned to callers. Handler
// errors never escape Dispatch as Go errors.
type ErrorPayload struct {
	Error string `json:"Error"`
}

// Registry holds the tool set and dispatches invocations under a deadline.
type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
}

// NewRegistry initializes an empty registry. timeout <= 0 selects
// DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

// Register adds a tool. Registering a duplicate name is a programming error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool needs a name and a handler")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs one tool invocation under the registry deadline. Every
// failure, including an unknown tool name or a handler panic, comes back as
// an ErrorPayload.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result any) {
	tool, ok := r.tools[name]
	if !ok {
		return ErrorPayload{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Tool handler panicked", "tool", name, "panic", rec)
			result = ErrorPayload{Error: fmt.Sprintf("internal error in %s", name)}
		}
	}()

	start := time.Now()
	out, err := tool.Handler(ctx, args)
	if err != nil {
		log.Warn("Tool failed", "tool", name, "elapsed", time.Since(start), "err", err)
		return ErrorPayload{Error: err.Error()}
	}
	log.Debug("Tool completed", "tool", name, "elapsed", time.Since(start))
	return out
}
