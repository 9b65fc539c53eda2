// Package hooks implements the post-event hook chain for tool results.
// Handlers run sequentially in registration order — an ordered async fold,
// never in parallel — and may replace the refs or expanded windows the core
// is about to return.
package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event names emitted by the tool surface.
const (
	EventSearchRefsPost = "tool:memory_search_refs:post"
	EventExpandPost     = "tool:memory_expand:post"
)

// Context is the mutable payload a handler sees. Output carries the tool's
// full result; a handler may set AugmentedRefs or AugmentedExpanded, which
// the core returns in place of its own result.
type Context struct {
	Event  string
	Output map[string]interface{}

	AugmentedRefs     interface{}
	AugmentedExpanded interface{}
}

// Handler processes one event. Returning an error logs and continues the
// chain; it never fails the operation.
type Handler func(ctx context.Context, hc *Context) error

type registration struct {
	id      string
	event   string
	handler Handler
}

// Chain is the ordered hook registry.
type Chain struct {
	mu   sync.RWMutex
	regs []registration
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends a handler for an event. Returns the registration ID for
// Unregister.
func (c *Chain) Register(event string, h Handler) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.regs = append(c.regs, registration{id: id, event: event, handler: h})
	return id
}

// Unregister removes a handler by registration ID.
func (c *Chain) Unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.regs {
		if r.id == id {
			c.regs = append(c.regs[:i], c.regs[i+1:]...)
			return
		}
	}
}

// Emit runs every handler registered for the event, in order, each seeing
// the mutations of those before it. The chain completes before the caller
// assembles its final result.
func (c *Chain) Emit(ctx context.Context, event string, output map[string]interface{}) *Context {
	c.mu.RLock()
	regs := make([]registration, 0, len(c.regs))
	for _, r := range c.regs {
		if r.event == event {
			regs = append(regs, r)
		}
	}
	c.mu.RUnlock()

	hc := &Context{Event: event, Output: output}
	for _, r := range regs {
		if err := r.handler(ctx, hc); err != nil {
			slog.Warn("hook handler failed", "event", event, "error", err)
		}
	}
	return hc
}
