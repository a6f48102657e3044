package core

import (
	"context"
	"sync"
)

// Context carries one iteration of the request/reply loop through the
// middleware chain. It exposes the request being submitted, the reply buffer
// and the classified outcome.
type Context interface {
	// Context returns the underlying context.Context.
	Context() context.Context

	// SetContext replaces the underlying context.Context.
	// Useful for middleware that enriches the context with values or deadlines.
	SetContext(ctx context.Context)

	// Iteration is the 1-based iteration number.
	Iteration() int

	// Seed is the payload seed used for this iteration.
	Seed() uint32

	// Request returns the message being submitted.
	Request() *Message

	// Reply returns the reply buffer, filled once a reply arrives.
	Reply() *Message

	// Outcome returns the classified result of the round trip.
	Outcome() Outcome

	// SetOutcome records the classified result.
	SetOutcome(o Outcome)

	// Set stores a key-value pair in the context store.
	// Used by middleware to pass data to downstream handlers.
	Set(key string, val any)

	// Get retrieves a value from the context store.
	Get(key string) (any, bool)
}

// HandlerFunc performs one round trip. It returns the error that ended the
// round trip, or nil when a reply was delivered.
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior.
//
//	func MyMiddleware() core.MiddlewareFunc {
//	    return func(next core.HandlerFunc) core.HandlerFunc {
//	        return func(c core.Context) error {
//	            // before
//	            err := next(c)
//	            // after
//	            return err
//	        }
//	    }
//	}
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type roundTrip struct {
	ctx       context.Context
	iteration int
	seed      uint32
	request   *Message
	reply     *Message
	outcome   Outcome
	store     map[string]any
	mu        sync.RWMutex
}

// NewContext creates a Context for one iteration.
// This is called internally by the Engine for each iteration.
func NewContext(ctx context.Context, iteration int, seed uint32, req, reply *Message) Context {
	return &roundTrip{
		ctx:       ctx,
		iteration: iteration,
		seed:      seed,
		request:   req,
		reply:     reply,
		outcome:   Outcome{Kind: OutcomePending},
		store:     make(map[string]any),
	}
}

func (c *roundTrip) Context() context.Context { return c.ctx }

func (c *roundTrip) SetContext(ctx context.Context) { c.ctx = ctx }

func (c *roundTrip) Iteration() int { return c.iteration }

func (c *roundTrip) Seed() uint32 { return c.seed }

func (c *roundTrip) Request() *Message { return c.request }

func (c *roundTrip) Reply() *Message { return c.reply }

func (c *roundTrip) Outcome() Outcome { return c.outcome }

func (c *roundTrip) SetOutcome(o Outcome) { c.outcome = o }

func (c *roundTrip) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *roundTrip) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}
