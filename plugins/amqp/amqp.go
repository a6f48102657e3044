package amqp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
)

func init() {
	broker.Register("amqp", func(cfg broker.Config) (core.Transport, error) {
		return New(cfg.Addresses, optsFromConfig(cfg)...)
	})
}

// Transport implements core.Transport for AMQP 0.9.1 brokers using amqp091-go.
//
// Design decisions:
//   - One connection and one channel per Session; the broker name is sent as
//     the connection name, the virtual host comes from options.
//   - Addresses are tried in order; landing on a fallback address is
//     reported as a warning.
//   - Queues are never declared: Open checks existence with a passive declare
//     on a throwaway channel so a missing queue does not kill the session.
//   - Exclusive input is an exclusive, auto-ack consumer (no syncpoint).
//   - Identities travel in the MessageId/CorrelationId/ReplyTo properties.
type Transport struct {
	addrs []string
	opts  options
}

// New creates an AMQP Transport. Each address is host:port or a full AMQP URI.
func New(addrs []string, fns ...Option) (*Transport, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("mqrequest/amqp: at least one broker address is required")
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{addrs: addrs, opts: opts}, nil
}

// Connect dials the first reachable address with PLAIN credentials.
func (t *Transport) Connect(ctx context.Context, name string, cred core.Credentials) (core.Session, error) {
	if !cred.Valid() {
		return nil, core.Failed("connect", core.ReasonNotAuthorized, core.ErrEmptyCredentials)
	}

	var lastErr error
	for i, addr := range t.addrs {
		if err := ctx.Err(); err != nil {
			return nil, core.Failed("connect", core.ReasonStopping, err)
		}

		uri, err := t.dialURL(addr, cred)
		if err != nil {
			lastErr = core.Failed("connect", core.ReasonHostNotAvailable, err)
			continue
		}

		props := amqp.NewConnectionProperties()
		props.SetClientConnectionName(name)
		conn, err := amqp.DialConfig(uri, amqp.Config{
			Heartbeat:       t.opts.heartbeat,
			Locale:          "en_US",
			TLSClientConfig: t.opts.tls,
			Properties:      props,
			Dial:            amqp.DefaultDial(t.opts.dialTimeout),
		})
		if err != nil {
			lastErr = mapError("connect", err, core.ReasonHostNotAvailable)
			// bad credentials fail the same way on every address
			if core.IsReason(lastErr, core.ReasonNotAuthorized) {
				return nil, lastErr
			}
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			lastErr = mapError("connect", err, core.ReasonConnectionBroken)
			continue
		}
		if t.opts.confirm {
			if err := ch.Confirm(false); err != nil {
				_ = ch.Close()
				_ = conn.Close()
				return nil, mapError("connect", fmt.Errorf("mqrequest/amqp: enable confirms: %w", err), core.ReasonUnexpectedError)
			}
		}

		s := &session{conn: conn, ch: ch, opts: t.opts, name: name, inputs: make(map[string]bool)}
		if i > 0 {
			return s, core.Warning("connect", core.ReasonHostNotAvailable,
				fmt.Errorf("mqrequest/amqp: connected to fallback address %q", addr))
		}
		return s, nil
	}
	return nil, lastErr
}

func (t *Transport) dialURL(addr string, cred core.Credentials) (string, error) {
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return "", fmt.Errorf("mqrequest/amqp: parse %q: %w", addr, err)
		}
		u.User = url.UserPassword(cred.User, cred.Secret)
		return u.String(), nil
	}

	scheme := "amqp"
	if t.opts.tls != nil {
		scheme = "amqps"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   addr,
		User:   url.UserPassword(cred.User, cred.Secret),
		Path:   "/" + strings.TrimPrefix(t.opts.vhost, "/"),
	}
	return u.String(), nil
}

type handle struct {
	queue      string
	mode       core.OpenMode
	tag        string
	deliveries <-chan amqp.Delivery
	closed     bool
}

func (h *handle) Queue() string       { return h.queue }
func (h *handle) Mode() core.OpenMode { return h.mode }

type session struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	opts    options
	name    string
	mu      sync.Mutex
	closed  bool
	inputs  map[string]bool
	matcher core.DefaultMatcher
}

func (s *session) Open(ctx context.Context, queue string, mode core.OpenMode) (core.QueueHandle, error) {
	if err := s.usable("open"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, core.Failed("open", core.ReasonStopping, err)
	}

	check, err := s.conn.Channel()
	if err != nil {
		return nil, mapError("open", err, core.ReasonConnectionBroken)
	}
	_, err = check.QueueDeclarePassive(queue, false, false, false, false, nil)
	_ = check.Close()
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/amqp: queue %q: %w", queue, err), core.ReasonUnknownObjectName)
	}

	h := &handle{queue: queue, mode: mode}
	if mode == core.OpenOutput {
		return h, nil
	}

	// a second exclusive consume would close the session channel
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputs[queue] {
		return nil, core.Failed("open", core.ReasonObjectInUse,
			fmt.Errorf("mqrequest/amqp: %q is already open for input on this session", queue))
	}

	h.tag = fmt.Sprintf("%s-%s", s.name, core.NewID())
	deliveries, err := s.ch.Consume(
		queue,
		h.tag,
		true, // autoAck: destructive get, no syncpoint
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/amqp: consume %q: %w", queue, err), core.ReasonObjectInUse)
	}
	h.deliveries = deliveries
	s.inputs[queue] = true
	return h, nil
}

func (s *session) Put(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.PutOptions) error {
	h, err := s.handle("put", qh, core.OpenOutput)
	if err != nil {
		return err
	}
	if opts.FailIfQuiescing && s.conn.IsClosed() {
		return core.Failed("put", core.ReasonQMgrQuiescing, amqp.ErrClosed)
	}

	core.AssignIDs(msg, opts)
	pub := toPublishing(msg, s.opts.persistent)

	if !s.opts.confirm {
		if err := s.ch.PublishWithContext(ctx, "", h.queue, false, false, pub); err != nil {
			return mapError("put", fmt.Errorf("mqrequest/amqp: publish to %q: %w", h.queue, err), core.ReasonConnectionBroken)
		}
		return nil
	}

	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, "", h.queue, false, false, pub)
	if err != nil {
		return mapError("put", fmt.Errorf("mqrequest/amqp: publish to %q: %w", h.queue, err), core.ReasonConnectionBroken)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return mapError("put", err, core.ReasonConnectionBroken)
	}
	if !acked {
		return core.Failed("put", core.ReasonUnexpectedError, fmt.Errorf("mqrequest/amqp: publish to %q was nacked", h.queue))
	}
	return nil
}

func (s *session) Get(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.GetOptions) error {
	h, err := s.handle("get", qh, core.OpenExclusiveInput)
	if err != nil {
		return err
	}

	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return core.Failed("get", core.ReasonStopping, ctx.Err())
		case <-timer.C:
			return core.Failed("get", core.ReasonNoMsgAvailable, nil)
		case d, ok := <-h.deliveries:
			if !ok {
				return core.Failed("get", core.ReasonConnectionBroken, amqp.ErrClosed)
			}
			m := fromDelivery(d)
			if !s.matcher.Match(opts, &m) {
				continue
			}
			if err := core.CheckLength("get", opts, m.Len()); err != nil {
				return err
			}
			*msg = m
			return nil
		}
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
	if h.mode != core.OpenExclusiveInput {
		return nil
	}
	delete(s.inputs, h.queue)
	if s.closed {
		return nil
	}
	if err := s.ch.Cancel(h.tag, false); err != nil {
		return mapError("close", fmt.Errorf("mqrequest/amqp: cancel consumer on %q: %w", h.queue, err), core.ReasonConnectionBroken)
	}
	return nil
}

// Disconnect tears down the channel and connection.
func (s *session) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("mqrequest/amqp: close channel: %w", err))
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("mqrequest/amqp: close connection: %w", err))
	}
	if len(errs) > 0 {
		return mapError("disconnect", errs[0], core.ReasonConnectionBroken)
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

// mapError converts amqp091 and network errors into reason codes. def is
// used when nothing more specific applies.
func mapError(op string, err error, def core.ReasonCode) error {
	if err == nil {
		return nil
	}
	var ae *amqp.Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case amqp.AccessRefused:
			if op == "connect" {
				return core.Failed(op, core.ReasonNotAuthorized, err)
			}
			return core.Failed(op, core.ReasonObjectInUse, err)
		case amqp.NotFound:
			return core.Failed(op, core.ReasonUnknownObjectName, err)
		case amqp.ResourceLocked:
			return core.Failed(op, core.ReasonObjectInUse, err)
		case amqp.ConnectionForced:
			return core.Failed(op, core.ReasonQMgrQuiescing, err)
		case amqp.ChannelError, amqp.FrameError, amqp.UnexpectedFrame:
			return core.Failed(op, core.ReasonConnectionBroken, err)
		}
	}
	if errors.Is(err, amqp.ErrSASL) || errors.Is(err, amqp.ErrCredentials) {
		return core.Failed(op, core.ReasonNotAuthorized, err)
	}
	if errors.Is(err, amqp.ErrClosed) {
		return core.Failed(op, core.ReasonConnectionBroken, err)
	}
	if errors.Is(err, context.Canceled) {
		return core.Failed(op, core.ReasonStopping, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return core.Failed(op, core.ReasonHostNotAvailable, err)
	}
	return core.Failed(op, def, err)
}

// optsFromConfig extracts options from broker.Config.
func optsFromConfig(cfg broker.Config) []Option {
	d := defaults()
	if cfg.DialTimeout > 0 {
		d.dialTimeout = cfg.DialTimeout
	}
	return []Option{
		WithDialTimeout(d.dialTimeout),
		WithVhost(cfg.String("vhost", d.vhost)),
		WithPersistent(cfg.Bool("persistent", d.persistent)),
		WithConfirm(cfg.Bool("confirm", d.confirm)),
		WithHeartbeat(cfg.Duration("heartbeat", d.heartbeat)),
	}
}
