// Package mqrequest provides the top-level API for driving request/reply
// round trips over a message-queueing transport. It re-exports core types
// for convenience, so users can write:
//
//	tr, _ := broker.Create("amqp", broker.Config{Addresses: addrs})
//	s, _ := tr.Connect(ctx, "QM_S1558", cred)
//	e := mqrequest.New(s, req, rpy, payload.NewRandom(16384, 100000), mqrequest.DefaultConfig())
//	sum, _ := e.Run(ctx)
package mqrequest

import (
	"github.com/miladsoleymani/mqrequest/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Message     = core.Message
	Transport   = core.Transport
	Session     = core.Session
	QueueHandle = core.QueueHandle
	Credentials = core.Credentials
	Engine      = core.Engine
	Config      = core.EngineConfig
	Summary     = core.Summary
	Outcome     = core.Outcome
	Middleware  = core.MiddlewareFunc
)

// DefaultConfig returns the stock loop parameters.
func DefaultConfig() Config {
	return core.DefaultEngineConfig()
}

// New creates an Engine over an open session and its request and reply
// handles.
func New(s Session, request, reply QueueHandle, gen core.PayloadGenerator, cfg Config) *Engine {
	return core.NewEngine(s, request, reply, gen, cfg)
}
