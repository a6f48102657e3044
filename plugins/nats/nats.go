package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Transport, error) {
		return New(cfg.Addresses, optsFromConfig(cfg)...)
	})
}

// Transport implements core.Transport for core NATS subjects.
//
// Design decisions:
//   - One NATS connection per Session, named after the broker.
//   - Queues are subjects: output opens only validate the name, exclusive
//     input is a synchronous subscription owned by the session.
//   - NATS has no exclusive consumers, so exclusivity is only enforced within
//     the session.
//   - Identities travel in headers; the reply destination is the NATS reply
//     subject.
//   - No automatic reconnects by default: a lost connection surfaces as
//     ConnectionBroken on the next call.
type Transport struct {
	urls []string
	opts options
}

// New creates a NATS Transport. Each url is a standard NATS URL (nats://host:port).
func New(urls []string, fns ...Option) (*Transport, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("mqrequest/nats: at least one server URL is required")
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{urls: urls, opts: opts}, nil
}

// Connect authenticates with user and password.
func (t *Transport) Connect(ctx context.Context, name string, cred core.Credentials) (core.Session, error) {
	if !cred.Valid() {
		return nil, core.Failed("connect", core.ReasonNotAuthorized, core.ErrEmptyCredentials)
	}
	if err := ctx.Err(); err != nil {
		return nil, core.Failed("connect", core.ReasonStopping, err)
	}

	nc, err := nats.Connect(strings.Join(t.urls, ","),
		nats.Name(name),
		nats.UserInfo(cred.User, cred.Secret),
		nats.Timeout(t.opts.dialTimeout),
		nats.MaxReconnects(t.opts.maxReconnects),
	)
	if err != nil {
		return nil, mapError("connect", fmt.Errorf("mqrequest/nats: connect to %q: %w", t.urls, err), core.ReasonHostNotAvailable)
	}
	if !nc.HeadersSupported() {
		nc.Close()
		return nil, core.Failed("connect", core.ReasonUnexpectedError, nats.ErrHeadersNotSupported)
	}

	return &session{conn: nc, opts: t.opts, subs: make(map[string]*handle)}, nil
}

type handle struct {
	subject string
	mode    core.OpenMode
	sub     *nats.Subscription
	closed  bool
}

func (h *handle) Queue() string       { return h.subject }
func (h *handle) Mode() core.OpenMode { return h.mode }

type session struct {
	conn    *nats.Conn
	opts    options
	mu      sync.Mutex
	closed  bool
	subs    map[string]*handle
	matcher core.DefaultMatcher
}

func (s *session) Open(_ context.Context, subject string, mode core.OpenMode) (core.QueueHandle, error) {
	if err := s.usable("open"); err != nil {
		return nil, err
	}
	if subject == "" || strings.ContainsAny(subject, "*> \t") {
		return nil, core.Failed("open", core.ReasonUnknownObjectName, fmt.Errorf("mqrequest/nats: invalid subject %q", subject))
	}

	h := &handle{subject: subject, mode: mode}
	if mode == core.OpenOutput {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.subs[subject]; taken {
		return nil, core.Failed("open", core.ReasonObjectInUse, nil)
	}
	sub, err := s.conn.SubscribeSync(subject)
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/nats: subscribe %q: %w", subject, err), core.ReasonUnexpectedError)
	}
	h.sub = sub
	s.subs[subject] = h
	return h, nil
}

func (s *session) Put(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.PutOptions) error {
	h, err := s.handle("put", qh, core.OpenOutput)
	if err != nil {
		return err
	}
	if opts.FailIfQuiescing && (s.conn.IsDraining() || s.conn.IsClosed()) {
		return core.Failed("put", core.ReasonQMgrQuiescing, nats.ErrConnectionDraining)
	}

	core.AssignIDs(msg, opts)
	if err := s.conn.PublishMsg(toMsg(h.subject, msg)); err != nil {
		return mapError("put", fmt.Errorf("mqrequest/nats: publish to %q: %w", h.subject, err), core.ReasonConnectionBroken)
	}
	if s.opts.flush {
		if err := s.conn.FlushWithContext(ctx); err != nil {
			return mapError("put", fmt.Errorf("mqrequest/nats: flush: %w", err), core.ReasonConnectionBroken)
		}
	}
	return nil
}

func (s *session) Get(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.GetOptions) error {
	h, err := s.handle("get", qh, core.OpenExclusiveInput)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, opts.Wait)
	defer cancel()
	for {
		m, err := h.sub.NextMsgWithContext(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return core.Failed("get", core.ReasonStopping, ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				return core.Failed("get", core.ReasonNoMsgAvailable, nil)
			}
			return mapError("get", err, core.ReasonConnectionBroken)
		}
		got := fromMsg(m)
		if !s.matcher.Match(opts, &got) {
			continue
		}
		if err := core.CheckLength("get", opts, got.Len()); err != nil {
			return err
		}
		*msg = got
		return nil
	}
}

func (s *session) Close(_ context.Context, qh core.QueueHandle) error {
	h, ok := qh.(*handle)
	if !ok {
		return core.Failed("close", core.ReasonHandleNotAvailable, core.ErrForeignHandle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.sub == nil {
		return nil
	}
	delete(s.subs, h.subject)
	if s.closed {
		return nil
	}
	if err := h.sub.Unsubscribe(); err != nil {
		return mapError("close", fmt.Errorf("mqrequest/nats: unsubscribe %q: %w", h.subject, err), core.ReasonConnectionBroken)
	}
	return nil
}

// Disconnect closes the NATS connection.
func (s *session) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	wasClosed := s.conn.IsClosed()
	s.conn.Close()
	if wasClosed {
		return core.Failed("disconnect", core.ReasonConnectionBroken, nats.ErrConnectionClosed)
	}
	return nil
}

func (s *session) usable(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Failed(op, core.ReasonConnectionBroken, core.ErrNotConnected)
	}
	return nil
}

func (s *session) handle(op string, qh core.QueueHandle, mode core.OpenMode) (*handle, error) {
	h, ok := qh.(*handle)
	if !ok {
		return nil, core.Failed(op, core.ReasonHandleNotAvailable, core.ErrForeignHandle)
	}
	if err := s.usable(op); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := h.closed
	s.mu.Unlock()
	if closed {
		return nil, core.Failed(op, core.ReasonObjectClosed, core.ErrHandleClosed)
	}
	if h.mode != mode {
		return nil, core.Failed(op, core.ReasonUnexpectedError, core.ErrWrongMode)
	}
	return h, nil
}

// mapError converts nats.go errors into reason codes.
func mapError(op string, err error, def core.ReasonCode) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrAuthorization), errors.Is(err, nats.ErrAuthExpired),
		errors.Is(err, nats.ErrPermissionViolation):
		return core.Failed(op, core.ReasonNotAuthorized, err)
	case errors.Is(err, nats.ErrNoServers):
		return core.Failed(op, core.ReasonHostNotAvailable, err)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrStaleConnection):
		return core.Failed(op, core.ReasonConnectionBroken, err)
	case errors.Is(err, nats.ErrConnectionDraining):
		return core.Failed(op, core.ReasonQMgrQuiescing, err)
	case errors.Is(err, nats.ErrBadSubscription):
		return core.Failed(op, core.ReasonObjectClosed, err)
	case errors.Is(err, nats.ErrMaxPayload):
		return core.Failed(op, core.ReasonUnexpectedError, err)
	case errors.Is(err, context.Canceled):
		return core.Failed(op, core.ReasonStopping, err)
	default:
		return core.Failed(op, def, err)
	}
}

// optsFromConfig extracts options from broker.Config.
func optsFromConfig(cfg broker.Config) []Option {
	d := defaults()
	if cfg.DialTimeout > 0 {
		d.dialTimeout = cfg.DialTimeout
	}
	return []Option{
		WithDialTimeout(d.dialTimeout),
		WithMaxReconnects(cfg.Int("max_reconnects", d.maxReconnects)),
		WithFlush(cfg.Bool("flush", d.flush)),
	}
}
