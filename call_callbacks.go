package luastack

import (
	"context"
	"time"
)

// CallCallbacks defines the callback interface for load and call events
type CallCallbacks interface {
	// Chunk-level callbacks
	BeforeLoad(ctx context.Context, event *LoadEvent)
	AfterLoad(ctx context.Context, event *LoadEvent)

	// Call-level callbacks
	BeforeCall(ctx context.Context, event *CallEvent)
	AfterCall(ctx context.Context, event *CallEvent)
}

// LoadEvent provides context for chunk load events
type LoadEvent struct {
	RuntimeID string
	ChunkName string
	Size      int
	CacheHit  bool
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// CallEvent provides context for protected call events
type CallEvent struct {
	RuntimeID string
	Function  string
	NArgs     int
	NResults  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// BaseCallCallbacks provides a default implementation that does nothing
type BaseCallCallbacks struct{}

func (n *BaseCallCallbacks) BeforeLoad(ctx context.Context, event *LoadEvent) {
	// noop
}

func (n *BaseCallCallbacks) AfterLoad(ctx context.Context, event *LoadEvent) {
	// noop
}

func (n *BaseCallCallbacks) BeforeCall(ctx context.Context, event *CallEvent) {
	// noop
}

func (n *BaseCallCallbacks) AfterCall(ctx context.Context, event *CallEvent) {
	// noop
}

// NewBaseCallCallbacks creates a new no-op callbacks implementation.
// Embed this in your own callbacks to get a default implementation that does nothing.
func NewBaseCallCallbacks() CallCallbacks {
	return &BaseCallCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []CallCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...CallCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback CallCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeLoad(ctx context.Context, event *LoadEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeLoad(ctx, event)
	}
}

func (c *CallbackChain) AfterLoad(ctx context.Context, event *LoadEvent) {
	for _, callback := range c.callbacks {
		callback.AfterLoad(ctx, event)
	}
}

func (c *CallbackChain) BeforeCall(ctx context.Context, event *CallEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeCall(ctx, event)
	}
}

func (c *CallbackChain) AfterCall(ctx context.Context, event *CallEvent) {
	for _, callback := range c.callbacks {
		callback.AfterCall(ctx, event)
	}
}
