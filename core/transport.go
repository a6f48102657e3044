package core

import (
	"context"
	"time"
)

// Credentials is an opaque user identifier and secret pair.
type Credentials struct {
	User   string
	Secret string
}

// Valid reports whether both parts are non-empty.
func (c Credentials) Valid() bool { return c.User != "" && c.Secret != "" }

// OpenMode selects how a queue is opened.
type OpenMode int

const (
	OpenOutput OpenMode = iota
	OpenExclusiveInput
)

func (m OpenMode) String() string {
	if m == OpenExclusiveInput {
		return "exclusive input"
	}
	return "output"
}

// MatchMode selects which delivery a Get accepts.
type MatchMode int

const (
	// MatchNone accepts the next delivery; pairing is left to the transport.
	MatchNone MatchMode = iota
	MatchMsgID
	MatchCorrelID
)

// PutOptions control a Put.
type PutOptions struct {
	NoSyncpoint     bool
	FailIfQuiescing bool
	NewMsgID        bool
	NewCorrelID     bool
}

// DefaultPutOptions are the options every request is submitted with.
func DefaultPutOptions() PutOptions {
	return PutOptions{NoSyncpoint: true, FailIfQuiescing: true, NewMsgID: true, NewCorrelID: true}
}

// GetOptions control a Get.
type GetOptions struct {
	Wait        time.Duration
	NoSyncpoint bool
	Match       MatchMode
	MsgID       string
	CorrelID    string
	// MaxLength bounds the accepted body size; zero means unbounded.
	MaxLength int
}

// QueueHandle is an open access path to a named queue.
type QueueHandle interface {
	Queue() string
	Mode() OpenMode
}

// Transport establishes sessions with a broker.
// Each transport plugin must implement this interface.
type Transport interface {
	// Connect authenticates to the named broker. A warning is returned as a
	// ReasonError with CompletionWarning alongside a usable Session.
	Connect(ctx context.Context, broker string, cred Credentials) (Session, error)
}

// Session is one authenticated connection. It is owned by a single goroutine.
type Session interface {
	Open(ctx context.Context, queue string, mode OpenMode) (QueueHandle, error)
	Put(ctx context.Context, h QueueHandle, msg *Message, opts PutOptions) error
	// Get blocks up to opts.Wait for a delivery and fills msg with it.
	Get(ctx context.Context, h QueueHandle, msg *Message, opts GetOptions) error
	Close(ctx context.Context, h QueueHandle) error
	Disconnect(ctx context.Context) error
}
