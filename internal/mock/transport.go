package mock

import (
	"context"
	"sync"
	"time"

	"github.com/miladsoleymani/mqrequest/core"
)

// Call records one operation performed through the Transport.
type Call struct {
	Op       string
	Queue    string
	Mode     core.OpenMode
	MsgID    string
	CorrelID string
	Err      error
}

// ReplyFunc produces the reply to the n-th request put on the transport
// (1-based). Returning nil means the counterpart stays silent.
type ReplyFunc func(n int, req *core.Message) *core.Message

// EchoReplies answers every request with its own body.
func EchoReplies(_ int, req *core.Message) *core.Message {
	return &core.Message{Type: core.MsgTypeReply, CorrelID: req.MsgID, Body: req.Body}
}

// SilentAfter answers the first n requests and then stops responding.
func SilentAfter(n int) ReplyFunc {
	return func(i int, req *core.Message) *core.Message {
		if i > n {
			return nil
		}
		return EchoReplies(i, req)
	}
}

// Transport is an in-memory test double for core.Transport. Queues are shared
// by every session it creates. Errors can be injected per operation and every
// call is recorded in order.
type Transport struct {
	mu     sync.Mutex
	queues map[string]chan *core.Message
	owners map[string]*handle
	calls  []Call
	puts   []core.Message
	nput   int
	nget   int

	// Known restricts the queues that can be opened; nil allows any name.
	Known map[string]bool

	ConnectErr    error
	OpenErr       map[string]error
	PutErr        func(n int) error
	GetErr        func(n int) error
	CloseErr      error
	DisconnectErr error

	// Reply, when set, is consulted synchronously on every request put and
	// its result is delivered to the request's ReplyTo queue.
	Reply ReplyFunc
}

// NewTransport creates an empty Transport.
func NewTransport() *Transport {
	return &Transport{
		queues:  make(map[string]chan *core.Message),
		owners:  make(map[string]*handle),
		OpenErr: make(map[string]error),
	}
}

// Connect implements core.Transport.
func (t *Transport) Connect(_ context.Context, broker string, cred core.Credentials) (core.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.ConnectErr
	if err == nil && !cred.Valid() {
		err = core.Failed("connect", core.ReasonNotAuthorized, core.ErrEmptyCredentials)
	}
	t.calls = append(t.calls, Call{Op: "connect", Queue: broker, Err: err})
	if err != nil && !core.IsWarning(err) {
		return nil, err
	}
	return &session{t: t, connected: true}, err
}

// Calls returns every recorded call in order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Count returns the number of recorded calls for op.
func (t *Transport) Count(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Puts returns copies of every message accepted by Put.
func (t *Transport) Puts() []core.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.Message, len(t.puts))
	copy(out, t.puts)
	return out
}

// Deliver places msg directly on a queue, as if another party had put it.
func (t *Transport) Deliver(queue string, msg *core.Message) {
	t.mu.Lock()
	q := t.queue(queue)
	t.mu.Unlock()
	q <- clone(msg)
}

// Depth returns the number of messages waiting on a queue.
func (t *Transport) Depth(queue string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue(queue))
}

// queue returns the channel backing name. Callers hold t.mu.
func (t *Transport) queue(name string) chan *core.Message {
	q, ok := t.queues[name]
	if !ok {
		q = make(chan *core.Message, 1024)
		t.queues[name] = q
	}
	return q
}

func (t *Transport) record(c Call) {
	t.mu.Lock()
	t.calls = append(t.calls, c)
	t.mu.Unlock()
}

type handle struct {
	s      *session
	queue  string
	mode   core.OpenMode
	closed bool
}

func (h *handle) Queue() string       { return h.queue }
func (h *handle) Mode() core.OpenMode { return h.mode }

type session struct {
	t         *Transport
	mu        sync.Mutex
	connected bool
}

func (s *session) Open(_ context.Context, queue string, mode core.OpenMode) (core.QueueHandle, error) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.OpenErr[queue]
	switch {
	case err != nil:
	case !s.isConnected():
		err = core.Failed("open", core.ReasonConnectionBroken, core.ErrNotConnected)
	case t.Known != nil && !t.Known[queue]:
		err = core.Failed("open", core.ReasonUnknownObjectName, nil)
	case mode == core.OpenExclusiveInput && t.owners[queue] != nil:
		err = core.Failed("open", core.ReasonObjectInUse, nil)
	}
	t.calls = append(t.calls, Call{Op: "open", Queue: queue, Mode: mode, Err: err})
	if err != nil && !core.IsWarning(err) {
		return nil, err
	}

	h := &handle{s: s, queue: queue, mode: mode}
	t.queue(queue)
	if mode == core.OpenExclusiveInput {
		t.owners[queue] = h
	}
	return h, err
}

func (s *session) Put(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.PutOptions) error {
	t := s.t
	h, err := s.own(qh, core.OpenOutput)
	if err == nil && ctx.Err() != nil {
		err = core.Failed("put", core.ReasonStopping, ctx.Err())
	}

	t.mu.Lock()
	t.nput++
	n := t.nput
	if err == nil && t.PutErr != nil {
		err = t.PutErr(n)
	}
	if err != nil && !core.IsWarning(err) {
		t.calls = append(t.calls, Call{Op: "put", Queue: qh.Queue(), Err: err})
		t.mu.Unlock()
		return err
	}

	core.AssignIDs(msg, opts)
	t.calls = append(t.calls, Call{Op: "put", Queue: h.queue, MsgID: msg.MsgID, CorrelID: msg.CorrelID, Err: err})
	t.puts = append(t.puts, *clone(msg))
	q := t.queue(h.queue)
	reply := t.Reply
	t.mu.Unlock()

	if reply != nil && msg.Type == core.MsgTypeRequest {
		if rep := reply(n, clone(msg)); rep != nil && msg.ReplyTo != "" {
			if rep.MsgID == "" {
				rep.MsgID = core.NewID()
			}
			t.Deliver(msg.ReplyTo, rep)
		}
		return err
	}
	q <- clone(msg)
	return err
}

func (s *session) Get(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.GetOptions) error {
	t := s.t
	h, err := s.own(qh, core.OpenExclusiveInput)
	if err != nil {
		t.record(Call{Op: "get", Queue: qh.Queue(), Err: err})
		return err
	}

	t.mu.Lock()
	t.nget++
	n := t.nget
	if t.GetErr != nil {
		err = t.GetErr(n)
	}
	q := t.queue(h.queue)
	t.mu.Unlock()
	if err != nil && !core.IsWarning(err) {
		t.record(Call{Op: "get", Queue: h.queue, Err: err})
		return err
	}

	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()
	var matcher core.DefaultMatcher
	for {
		select {
		case <-ctx.Done():
			err := core.Failed("get", core.ReasonStopping, ctx.Err())
			t.record(Call{Op: "get", Queue: h.queue, Err: err})
			return err
		case <-timer.C:
			err := core.Failed("get", core.ReasonNoMsgAvailable, nil)
			t.record(Call{Op: "get", Queue: h.queue, Err: err})
			return err
		case m := <-q:
			if !matcher.Match(opts, m) {
				continue
			}
			if lerr := core.CheckLength("get", opts, m.Len()); lerr != nil {
				t.record(Call{Op: "get", Queue: h.queue, Err: lerr})
				return lerr
			}
			*msg = *m
			t.record(Call{Op: "get", Queue: h.queue, MsgID: m.MsgID, CorrelID: m.CorrelID, Err: err})
			return err
		}
	}
}

func (s *session) Close(_ context.Context, qh core.QueueHandle) error {
	t := s.t
	h, ok := qh.(*handle)
	if !ok || h.s != s {
		t.record(Call{Op: "close", Queue: qh.Queue(), Err: core.ErrForeignHandle})
		return core.Failed("close", core.ReasonHandleNotAvailable, core.ErrForeignHandle)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if t.owners[h.queue] == h {
		delete(t.owners, h.queue)
	}
	t.calls = append(t.calls, Call{Op: "close", Queue: h.queue, Mode: h.mode, Err: t.CloseErr})
	return t.CloseErr
}

func (s *session) Disconnect(_ context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	s.mu.Unlock()

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	for q, h := range s.t.owners {
		if h.s == s {
			delete(s.t.owners, q)
		}
	}
	s.t.calls = append(s.t.calls, Call{Op: "disconnect", Err: s.t.DisconnectErr})
	return s.t.DisconnectErr
}

func (s *session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *session) own(qh core.QueueHandle, mode core.OpenMode) (*handle, error) {
	h, ok := qh.(*handle)
	if !ok || h.s != s {
		return nil, core.Failed("use handle", core.ReasonHandleNotAvailable, core.ErrForeignHandle)
	}
	if !s.isConnected() {
		return nil, core.Failed("use handle", core.ReasonConnectionBroken, core.ErrNotConnected)
	}
	s.t.mu.Lock()
	closed := h.closed
	s.t.mu.Unlock()
	if closed {
		return nil, core.Failed("use handle", core.ReasonObjectClosed, core.ErrHandleClosed)
	}
	if h.mode != mode {
		return nil, core.Failed("use handle", core.ReasonUnexpectedError, core.ErrWrongMode)
	}
	return h, nil
}

func clone(m *core.Message) *core.Message {
	c := *m
	c.Body = append([]byte(nil), m.Body...)
	return &c
}
