package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Transport, error) {
		return New(cfg.Addresses, optsFromConfig(cfg)...)
	})
}

// Transport implements core.Transport for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - Queues are topics. Connect keeps one control connection to the first
//     reachable broker and uses it to check topics exist on Open.
//   - One kafka.Writer per output handle, flushing every record on its own.
//   - One partition kafka.Reader per exclusive input handle, positioned at
//     the partition end when opened so only replies produced afterwards are
//     seen. Exclusivity is enforced within the session only.
//   - Identities and the reply destination travel in record headers.
type Transport struct {
	brokers []string
	opts    options
}

// New creates a Kafka Transport.
func New(brokers []string, fns ...Option) (*Transport, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("mqrequest/kafka: at least one broker address is required")
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{brokers: brokers, opts: opts}, nil
}

// Connect authenticates with SASL/PLAIN against the first reachable broker.
func (t *Transport) Connect(ctx context.Context, name string, cred core.Credentials) (core.Session, error) {
	if !cred.Valid() {
		return nil, core.Failed("connect", core.ReasonNotAuthorized, core.ErrEmptyCredentials)
	}

	var mech sasl.Mechanism
	if t.opts.sasl {
		mech = plain.Mechanism{Username: cred.User, Password: cred.Secret}
	}
	dialer := &kafka.Dialer{
		ClientID:      name,
		Timeout:       t.opts.dialTimeout,
		DualStack:     true,
		TLS:           t.opts.tls,
		SASLMechanism: mech,
	}

	var lastErr error
	for i, addr := range t.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = mapError("connect", fmt.Errorf("mqrequest/kafka: dial %q: %w", addr, err), core.ReasonHostNotAvailable)
			if core.IsReason(lastErr, core.ReasonNotAuthorized) || ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		s := &session{
			conn:    conn,
			dialer:  dialer,
			brokers: t.brokers,
			opts:    t.opts,
			readers: make(map[string]*handle),
			transport: &kafka.Transport{
				ClientID:    name,
				DialTimeout: t.opts.dialTimeout,
				TLS:         t.opts.tls,
				SASL:        mech,
			},
		}
		if i > 0 {
			return s, core.Warning("connect", core.ReasonHostNotAvailable,
				fmt.Errorf("mqrequest/kafka: connected to fallback broker %q", addr))
		}
		return s, nil
	}
	return nil, lastErr
}

type handle struct {
	topic  string
	mode   core.OpenMode
	writer *kafka.Writer
	reader *kafka.Reader
	closed bool
}

func (h *handle) Queue() string       { return h.topic }
func (h *handle) Mode() core.OpenMode { return h.mode }

type session struct {
	conn      *kafka.Conn
	dialer    *kafka.Dialer
	transport *kafka.Transport
	brokers   []string
	opts      options

	mu      sync.Mutex
	closed  bool
	readers map[string]*handle
	matcher core.DefaultMatcher
}

func (s *session) Open(ctx context.Context, topic string, mode core.OpenMode) (core.QueueHandle, error) {
	if err := s.usable("open"); err != nil {
		return nil, err
	}
	if _, err := s.conn.ReadPartitions(topic); err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/kafka: topic %q: %w", topic, err), core.ReasonUnknownObjectName)
	}

	h := &handle{topic: topic, mode: mode}
	if mode == core.OpenOutput {
		h.writer = &kafka.Writer{
			Addr:         kafka.TCP(s.brokers...),
			Topic:        topic,
			Balancer:     s.opts.balancer,
			BatchSize:    1,
			BatchTimeout: s.opts.batchTimeout,
			RequiredAcks: s.opts.requiredAcks,
			Transport:    s.transport,
		}
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.readers[topic]; taken {
		return nil, core.Failed("open", core.ReasonObjectInUse, nil)
	}

	leader, err := s.dialer.DialLeader(ctx, "tcp", s.conn.RemoteAddr().String(), topic, s.opts.partition)
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/kafka: dial leader for %q: %w", topic, err), core.ReasonHostNotAvailable)
	}
	last, err := leader.ReadLastOffset()
	_ = leader.Close()
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/kafka: read end offset of %q: %w", topic, err), core.ReasonConnectionBroken)
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.brokers,
		Topic:     topic,
		Partition: s.opts.partition,
		Dialer:    s.dialer,
		MinBytes:  1,
		MaxBytes:  s.opts.maxBytes,
		MaxWait:   s.opts.maxWait,
	})
	if err := r.SetOffset(last); err != nil {
		_ = r.Close()
		return nil, mapError("open", fmt.Errorf("mqrequest/kafka: seek %q: %w", topic, err), core.ReasonUnexpectedError)
	}
	h.reader = r
	s.readers[topic] = h
	return h, nil
}

func (s *session) Put(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.PutOptions) error {
	h, err := s.handle("put", qh, core.OpenOutput)
	if err != nil {
		return err
	}

	core.AssignIDs(msg, opts)
	if err := h.writer.WriteMessages(ctx, toMessage(msg)); err != nil {
		return mapError("put", fmt.Errorf("mqrequest/kafka: publish to %q: %w", h.topic, err), core.ReasonConnectionBroken)
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
		raw, err := h.reader.ReadMessage(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return core.Failed("get", core.ReasonStopping, ctx.Err())
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return core.Failed("get", core.ReasonNoMsgAvailable, nil)
			}
			return mapError("get", fmt.Errorf("mqrequest/kafka: fetch: %w", err), core.ReasonConnectionBroken)
		}
		got := fromMessage(raw)
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

	var err error
	if h.writer != nil {
		err = h.writer.Close()
	}
	if h.reader != nil {
		delete(s.readers, h.topic)
		err = h.reader.Close()
	}
	if err != nil {
		return mapError("close", fmt.Errorf("mqrequest/kafka: close %q: %w", h.topic, err), core.ReasonConnectionBroken)
	}
	return nil
}

// Disconnect closes the control connection.
func (s *session) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return mapError("disconnect", fmt.Errorf("mqrequest/kafka: close connection: %w", err), core.ReasonConnectionBroken)
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

// mapError converts kafka-go protocol and network errors into reason codes.
func mapError(op string, err error, def core.ReasonCode) error {
	if err == nil {
		return nil
	}
	var we kafka.WriteErrors
	if errors.As(err, &we) {
		for _, e := range we {
			if e != nil {
				return mapError(op, e, def)
			}
		}
	}
	var ke kafka.Error
	if errors.As(err, &ke) {
		switch ke {
		case kafka.SASLAuthenticationFailed, kafka.TopicAuthorizationFailed,
			kafka.GroupAuthorizationFailed, kafka.ClusterAuthorizationFailed:
			return core.Failed(op, core.ReasonNotAuthorized, err)
		case kafka.UnknownTopicOrPartition:
			return core.Failed(op, core.ReasonUnknownObjectName, err)
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition, kafka.NetworkException:
			return core.Failed(op, core.ReasonConnectionBroken, err)
		}
		// kafka.Error also satisfies net.Error; keep other protocol codes off the network path.
		return core.Failed(op, def, err)
	}
	if errors.Is(err, context.Canceled) {
		return core.Failed(op, core.ReasonStopping, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.Failed(op, core.ReasonConnectionBroken, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return core.Failed(op, core.ReasonHostNotAvailable, err)
	}
	return core.Failed(op, def, err)
}

// optsFromConfig extracts options from the broker.Config.
func optsFromConfig(cfg broker.Config) []Option {
	d := defaults()
	if cfg.DialTimeout > 0 {
		d.dialTimeout = cfg.DialTimeout
	}
	opts := []Option{
		WithDialTimeout(d.dialTimeout),
		WithPartition(cfg.Int("partition", d.partition)),
		WithMaxBytes(cfg.Int("max_bytes", d.maxBytes)),
		WithSASL(cfg.Bool("sasl", d.sasl)),
	}
	switch cfg.String("required_acks", "") {
	case "all":
		opts = append(opts, WithRequiredAcks(kafka.RequireAll))
	case "none":
		opts = append(opts, WithRequiredAcks(kafka.RequireNone))
	}
	return opts
}
