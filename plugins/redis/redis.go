package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/mqrequest/broker"
	"github.com/miladsoleymani/mqrequest/core"
)

func init() {
	broker.Register("redis", func(cfg broker.Config) (core.Transport, error) {
		return New(cfg.Addresses, optsFromConfig(cfg)...)
	})
}

const scriptRelease = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLua = goredis.NewScript(scriptRelease)

// Transport implements core.Transport on Redis lists using redis/go-redis.
//
// Design decisions:
//   - A queue is the list <prefix><name>. Put is LPUSH of a JSON envelope,
//     Get is BRPOP, so delivery is FIFO and each element is taken once.
//   - Lists appear on first push, so output opens only validate the name.
//   - Exclusive input is a SET NX owner key next to the list, holding the
//     session id with a TTL that Get keeps refreshing.
//   - BRPOP blocks in whole seconds, so Get re-issues it until its own
//     deadline passes.
type Transport struct {
	addrs []string
	opts  options
}

// New creates a Redis Transport. Each address is host:port.
func New(addrs []string, fns ...Option) (*Transport, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("mqrequest/redis: at least one address is required")
	}
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Transport{addrs: addrs, opts: opts}, nil
}

// Connect authenticates with AUTH user secret against the first reachable
// address. Falling back to a later address is reported as a warning.
func (t *Transport) Connect(ctx context.Context, name string, cred core.Credentials) (core.Session, error) {
	if !cred.Valid() {
		return nil, core.Failed("connect", core.ReasonNotAuthorized, core.ErrEmptyCredentials)
	}

	var lastErr error
	for i, addr := range t.addrs {
		client := goredis.NewClient(&goredis.Options{
			Addr:                  addr,
			Username:              cred.User,
			Password:              cred.Secret,
			DB:                    t.opts.db,
			ClientName:            name,
			DialTimeout:           t.opts.dialTimeout,
			PoolSize:              t.opts.poolSize,
			TLSConfig:             t.opts.tls,
			ContextTimeoutEnabled: true,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			lastErr = mapError("connect", fmt.Errorf("mqrequest/redis: ping %q: %w", addr, err), core.ReasonHostNotAvailable)
			if core.IsReason(lastErr, core.ReasonNotAuthorized) || ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		s := &session{client: client, id: core.NewID(), opts: t.opts}
		if i > 0 {
			return s, core.Warning("connect", core.ReasonHostNotAvailable,
				fmt.Errorf("mqrequest/redis: connected to fallback address %q", addr))
		}
		return s, nil
	}
	return nil, lastErr
}

type handle struct {
	queue     string
	key       string
	ownerKey  string
	mode      core.OpenMode
	refreshed time.Time
	closed    bool
}

func (h *handle) Queue() string       { return h.queue }
func (h *handle) Mode() core.OpenMode { return h.mode }

type session struct {
	client *goredis.Client
	id     string
	opts   options

	mu      sync.Mutex
	closed  bool
	matcher core.DefaultMatcher
}

func (s *session) Open(ctx context.Context, queue string, mode core.OpenMode) (core.QueueHandle, error) {
	if err := s.usable("open"); err != nil {
		return nil, err
	}
	if queue == "" || strings.ContainsAny(queue, " \t\r\n") {
		return nil, core.Failed("open", core.ReasonUnknownObjectName,
			fmt.Errorf("mqrequest/redis: invalid queue name %q", queue))
	}

	h := &handle{queue: queue, key: s.opts.keyPrefix + queue, mode: mode}
	if mode == core.OpenOutput {
		return h, nil
	}

	h.ownerKey = h.key + ":owner"
	ok, err := s.client.SetNX(ctx, h.ownerKey, s.id, s.opts.ownerTTL).Result()
	if err != nil {
		return nil, mapError("open", fmt.Errorf("mqrequest/redis: claim %q: %w", queue, err), core.ReasonConnectionBroken)
	}
	if !ok {
		return nil, core.Failed("open", core.ReasonObjectInUse,
			fmt.Errorf("mqrequest/redis: %q is open for exclusive input elsewhere", queue))
	}
	h.refreshed = time.Now()
	return h, nil
}

func (s *session) Put(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.PutOptions) error {
	h, err := s.handle("put", qh, core.OpenOutput)
	if err != nil {
		return err
	}

	core.AssignIDs(msg, opts)
	raw, err := encode(msg)
	if err != nil {
		return core.Failed("put", core.ReasonUnexpectedError, fmt.Errorf("mqrequest/redis: encode: %w", err))
	}
	if err := s.client.LPush(ctx, h.key, raw).Err(); err != nil {
		return mapError("put", fmt.Errorf("mqrequest/redis: push to %q: %w", h.queue, err), core.ReasonConnectionBroken)
	}
	return nil
}

func (s *session) Get(ctx context.Context, qh core.QueueHandle, msg *core.Message, opts core.GetOptions) error {
	h, err := s.handle("get", qh, core.OpenExclusiveInput)
	if err != nil {
		return err
	}
	if err := s.refresh(ctx, h); err != nil {
		return err
	}

	deadline := time.Now().Add(opts.Wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return core.Failed("get", core.ReasonNoMsgAvailable, nil)
		}
		res, err := s.client.BRPop(ctx, remaining, h.key).Result()
		if err != nil {
			if ctx.Err() != nil {
				return core.Failed("get", core.ReasonStopping, ctx.Err())
			}
			if errors.Is(err, goredis.Nil) {
				// BRPOP truncates its timeout to whole seconds
				continue
			}
			return mapError("get", fmt.Errorf("mqrequest/redis: pop from %q: %w", h.queue, err), core.ReasonConnectionBroken)
		}
		// res is [key, value]
		got, ok := s.take(h, res[1])
		if !ok {
			continue
		}
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

// take decodes one list element. Elements that are not envelopes are
// dropped with a warning.
func (s *session) take(h *handle, raw string) (core.Message, bool) {
	msg, err := decode([]byte(raw))
	if err != nil {
		s.opts.logger.WithError(err).WithFields(logrus.Fields{
			"queue": h.queue,
			"key":   h.key,
			"size":  len(raw),
		}).Warn("discarding undecodable list element")
		return core.Message{}, false
	}
	return msg, true
}

// refresh extends the exclusive claim once half of its TTL has passed.
func (s *session) refresh(ctx context.Context, h *handle) error {
	if s.opts.ownerTTL <= 0 || time.Since(h.refreshed) < s.opts.ownerTTL/2 {
		return nil
	}
	if err := s.client.Expire(ctx, h.ownerKey, s.opts.ownerTTL).Err(); err != nil {
		return mapError("get", fmt.Errorf("mqrequest/redis: refresh claim on %q: %w", h.queue, err), core.ReasonConnectionBroken)
	}
	h.refreshed = time.Now()
	return nil
}

func (s *session) Close(ctx context.Context, qh core.QueueHandle) error {
	h, ok := qh.(*handle)
	if !ok {
		return core.Failed("close", core.ReasonHandleNotAvailable, core.ErrForeignHandle)
	}
	s.mu.Lock()
	if h.closed {
		s.mu.Unlock()
		return nil
	}
	h.closed = true
	s.mu.Unlock()

	if h.ownerKey == "" {
		return nil
	}
	if err := releaseLua.Run(ctx, s.client, []string{h.ownerKey}, s.id).Err(); err != nil {
		return mapError("close", fmt.Errorf("mqrequest/redis: release %q: %w", h.queue, err), core.ReasonConnectionBroken)
	}
	return nil
}

// Disconnect closes the client pool.
func (s *session) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Close(); err != nil {
		return mapError("disconnect", fmt.Errorf("mqrequest/redis: close client: %w", err), core.ReasonConnectionBroken)
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

// mapError converts go-redis errors and server replies into reason codes.
func mapError(op string, err error, def core.ReasonCode) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, goredis.Nil):
		return core.Failed(op, core.ReasonNoMsgAvailable, err)
	case errors.Is(err, goredis.ErrClosed):
		return core.Failed(op, core.ReasonConnectionBroken, err)
	case errors.Is(err, context.Canceled):
		return core.Failed(op, core.ReasonStopping, err)
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		switch {
		case strings.HasPrefix(msg, "WRONGPASS"), strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "NOPERM"):
			return core.Failed(op, core.ReasonNotAuthorized, err)
		case strings.HasPrefix(msg, "LOADING"), strings.HasPrefix(msg, "MASTERDOWN"):
			return core.Failed(op, core.ReasonQMgrNotAvailable, err)
		}
		return core.Failed(op, def, err)
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
	return []Option{
		WithDialTimeout(d.dialTimeout),
		WithDB(cfg.Int("db", d.db)),
		WithKeyPrefix(cfg.String("key_prefix", d.keyPrefix)),
		WithPoolSize(cfg.Int("pool_size", d.poolSize)),
		WithOwnerTTL(cfg.Duration("owner_ttl", d.ownerTTL)),
	}
}
