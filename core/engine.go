package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// SubmitPolicy decides what the engine does when a request cannot be submitted.
type SubmitPolicy int

const (
	// SubmitAbort ends the loop with OutcomeSubmitError without waiting.
	SubmitAbort SubmitPolicy = iota
	// SubmitContinue logs the failure and waits for a reply anyway.
	SubmitContinue
	// SubmitRetry resubmits up to SubmitRetries times, then aborts.
	SubmitRetry
)

// ParseSubmitPolicy maps "abort", "continue" and "retry" to a SubmitPolicy.
func ParseSubmitPolicy(s string) (SubmitPolicy, error) {
	switch s {
	case "", "abort":
		return SubmitAbort, nil
	case "continue":
		return SubmitContinue, nil
	case "retry":
		return SubmitRetry, nil
	default:
		return SubmitAbort, fmt.Errorf("mqrequest: unknown submit policy %q", s)
	}
}

func (p SubmitPolicy) String() string {
	switch p {
	case SubmitContinue:
		return "continue"
	case SubmitRetry:
		return "retry"
	default:
		return "abort"
	}
}

// EngineConfig holds the loop parameters.
type EngineConfig struct {
	// BlockSize is the number of 32-bit words per payload.
	BlockSize int
	// Iterations bounds the loop.
	Iterations int
	// Wait bounds each reply wait.
	Wait time.Duration
	// ProgressEvery is the reporting cadence in delivered replies; zero disables it.
	ProgressEvery int
	// StartSeed is the seed of the first payload.
	StartSeed uint32

	SubmitPolicy  SubmitPolicy
	SubmitRetries int
	SubmitBackoff time.Duration

	// MatchCorrelID makes each Get accept only the reply whose CorrelID
	// equals the request's MsgID. Otherwise the next reply is taken.
	MatchCorrelID bool
}

// DefaultEngineConfig returns the stock loop parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BlockSize:     16384,
		Iterations:    50000,
		Wait:          10 * time.Second,
		ProgressEvery: 25,
		StartSeed:     1,
		SubmitPolicy:  SubmitAbort,
		SubmitRetries: 3,
		SubmitBackoff: 100 * time.Millisecond,
	}
}

// Validate checks the config for errors.
func (c EngineConfig) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("mqrequest: block size must be positive, got %d", c.BlockSize)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("mqrequest: iterations must not be negative, got %d", c.Iterations)
	}
	if c.Wait <= 0 {
		return fmt.Errorf("mqrequest: wait interval must be positive, got %s", c.Wait)
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("mqrequest: progress cadence must not be negative, got %d", c.ProgressEvery)
	}
	if c.SubmitPolicy == SubmitRetry && c.SubmitRetries < 1 {
		return fmt.Errorf("mqrequest: retry policy needs at least one retry")
	}
	return nil
}

// PayloadGenerator produces a block of words for a seed. Output must depend
// on the seed only.
type PayloadGenerator interface {
	Generate(seed uint32) []uint32
}

// Reporter observes the progress of a run. Complete is called once when the
// loop ends, however it ended.
type Reporter interface {
	Progress(delivered int)
	Terminated(iteration int, out Outcome, delivered int)
	Complete(s Summary)
}

type nopReporter struct{}

func (nopReporter) Progress(int)                  {}
func (nopReporter) Terminated(int, Outcome, int) {}
func (nopReporter) Complete(Summary)              {}

// Engine drives the request/reply loop: generate a payload, submit it as a
// request, wait a bounded interval for the reply, classify the outcome.
// At most one request is outstanding at any time.
type Engine struct {
	session     Session
	request     QueueHandle
	reply       QueueHandle
	gen         PayloadGenerator
	cfg         EngineConfig
	reporter    Reporter
	logger      *logrus.Entry
	middlewares []MiddlewareFunc
	seed        uint32
	mu          sync.Mutex
	running     bool
}

// NewEngine creates an Engine over an open session and its two queue handles.
// It encodes payloads with EncodeBlock and reports to a no-op Reporter.
func NewEngine(s Session, request, reply QueueHandle, gen PayloadGenerator, cfg EngineConfig) *Engine {
	return &Engine{
		session:  s,
		request:  request,
		reply:    reply,
		gen:      gen,
		cfg:      cfg,
		reporter: nopReporter{},
		logger:   logrus.WithField("component", "engine"),
		seed:     cfg.StartSeed,
	}
}

// SetReporter replaces the progress reporter. Must be called before Run.
func (e *Engine) SetReporter(r Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reporter = r
}

// SetLogger replaces the logger. Must be called before Run.
func (e *Engine) SetLogger(l *logrus.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = l
}

// Use registers round-trip middleware. Middleware is applied in reverse
// registration order (last registered wraps innermost).
func (e *Engine) Use(m MiddlewareFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middlewares = append(e.middlewares, m)
}

// NextSeed is the seed the next iteration will use.
func (e *Engine) NextSeed() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seed
}

// Run executes up to cfg.Iterations round trips. It stops early on the first
// outcome other than delivery, or when ctx is cancelled between iterations.
// The returned error is only set when the loop could not start; loop
// termination causes are reported in Summary.Last.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return Summary{}, ErrNoSession
	}
	if e.running {
		e.mu.Unlock()
		return Summary{}, ErrAlreadyRunning
	}
	if err := e.cfg.Validate(); err != nil {
		e.mu.Unlock()
		return Summary{}, err
	}
	e.running = true
	handler := applyMiddleware(e.roundTrip, e.middlewares)
	reporter := e.reporter
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	var sum Summary
	start := time.Now()
	for i := 1; i <= e.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			sum.Last = Outcome{Kind: OutcomeStopped, Reason: ReasonStopping, Err: err}
			reporter.Terminated(i, sum.Last, sum.Delivered)
			break
		}

		seed := e.advanceSeed()
		req := &Message{
			Type:    MsgTypeRequest,
			ReplyTo: e.reply.Queue(),
			Body:    EncodeBlock(e.gen.Generate(seed)),
		}
		rc := NewContext(ctx, i, seed, req, &Message{})
		err := handler(rc)

		out := rc.Outcome()
		if out.Kind == OutcomePending {
			// middleware ended the round trip before an outcome was recorded
			out = unrecordedOutcome(err, rc.Reply())
		}
		sum.Attempted++
		sum.Last = out
		if !out.Continue() {
			e.logTermination(i, out, sum.Delivered)
			reporter.Terminated(i, out, sum.Delivered)
			break
		}
		sum.Delivered++
		sum.Bytes += int64(out.Length)
		if e.cfg.ProgressEvery > 0 && sum.Delivered%e.cfg.ProgressEvery == 0 {
			reporter.Progress(sum.Delivered)
		}
	}
	sum.Elapsed = time.Since(start)
	reporter.Complete(sum)
	return sum, nil
}

func unrecordedOutcome(err error, reply *Message) Outcome {
	if err != nil {
		return ReceiveOutcome(err, reply)
	}
	return Outcome{Kind: OutcomeTransportError, Reason: ReasonUnexpectedError, Err: ErrNoOutcome}
}

func (e *Engine) advanceSeed() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.seed
	e.seed++
	return s
}

// roundTrip submits the request and waits for its reply. It always records
// an outcome on c.
func (e *Engine) roundTrip(c Context) error {
	ctx := c.Context()
	req := c.Request()

	if err := e.submit(ctx, req); err != nil {
		if e.cfg.SubmitPolicy != SubmitContinue || ctx.Err() != nil {
			c.SetOutcome(SubmitOutcome(err))
			return err
		}
	}

	opts := GetOptions{
		Wait:        e.cfg.Wait,
		NoSyncpoint: true,
		Match:       MatchNone,
		MaxLength:   4 * e.cfg.BlockSize,
	}
	if e.cfg.MatchCorrelID {
		opts.Match = MatchCorrelID
		opts.CorrelID = req.MsgID
	}

	reply := c.Reply()
	err := e.session.Get(ctx, e.reply, reply, opts)
	out := ReceiveOutcome(err, reply)
	c.SetOutcome(out)
	if out.Continue() {
		return nil
	}
	return err
}

// submit puts req on the request queue according to the submit policy.
func (e *Engine) submit(ctx context.Context, req *Message) error {
	opts := DefaultPutOptions()
	put := func() error {
		err := e.session.Put(ctx, e.request, req, opts)
		if err != nil {
			e.logCode("put", e.request.Queue(), err)
		}
		if IsWarning(err) {
			return nil
		}
		return err
	}

	if e.cfg.SubmitPolicy != SubmitRetry {
		return put()
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := put()
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(e.cfg.SubmitBackoff)),
		backoff.WithMaxTries(uint(e.cfg.SubmitRetries)+1),
	)
	return err
}

// retryable reports whether a failed put may succeed when repeated.
func retryable(err error) bool {
	_, rc := StatusOf(err)
	switch rc {
	case ReasonNotAuthorized, ReasonUnknownObjectName, ReasonObjectClosed,
		ReasonHandleNotAvailable, ReasonQMgrQuiescing, ReasonStopping:
		return false
	default:
		return true
	}
}

func (e *Engine) logCode(op, queue string, err error) {
	cc, rc := StatusOf(err)
	e.logger.WithFields(logrus.Fields{
		"op":         op,
		"queue":      queue,
		"completion": int(cc),
		"reason":     int(rc),
	}).Warnf("%s ended with reason code %d", op, int(rc))
}

func (e *Engine) logTermination(iteration int, out Outcome, delivered int) {
	l := e.logger.WithFields(logrus.Fields{
		"iteration": iteration,
		"delivered": delivered,
		"reason":    int(out.Reason),
	})
	switch out.Kind {
	case OutcomeTimeout:
		l.Warnf("timed out waiting for requested reply: Code %d", int(out.Reason))
	case OutcomeStopped:
		l.Info("run stopped")
	default:
		l.WithError(out.Err).Errorf("%s: code %d", out.Kind, int(out.Reason))
	}
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
