// Package runner wires credentials, a transport and the request/reply engine
// into one run and maps its result to a process exit status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/mqrequest/config"
	"github.com/miladsoleymani/mqrequest/core"
	"github.com/miladsoleymani/mqrequest/credentials"
	"github.com/miladsoleymani/mqrequest/payload"
	"github.com/miladsoleymani/mqrequest/report"
)

// Exit statuses not derived from a transport code.
const (
	ExitOK          = 0
	ExitCredentials = 1
)

// teardownTimeout bounds each close and the disconnect once the run is over.
const teardownTimeout = 10 * time.Second

// Result describes a finished run.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Summary is set when the loop ran.
	Summary core.Summary
	// Err is the error that ended the run before the loop, if any.
	Err error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput sets where console progress is written.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.console = report.NewConsole(w) }
}

// WithGenerator replaces the payload generator.
func WithGenerator(g core.PayloadGenerator) Option {
	return func(r *Runner) { r.gen = g }
}

// WithMiddleware adds round-trip middleware to the engine.
func WithMiddleware(m ...core.MiddlewareFunc) Option {
	return func(r *Runner) { r.middlewares = append(r.middlewares, m...) }
}

// Runner executes one driver run: credentials, connect, open both queues,
// loop, close both queues, disconnect.
type Runner struct {
	cfg         *config.Config
	transport   core.Transport
	creds       credentials.Supplier
	gen         core.PayloadGenerator
	console     *report.Console
	logger      *logrus.Entry
	middlewares []core.MiddlewareFunc
}

// New creates a Runner.
func New(cfg *config.Config, t core.Transport, creds credentials.Supplier, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		transport: t,
		creds:     creds,
		gen:       payload.NewRandom(cfg.Loop.BlockSize, cfg.Loop.ValueModulus),
		console:   report.NewConsole(io.Discard),
		logger:    logrus.WithField("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs the run. Resources acquired before a failure are always
// released before Run returns.
func (r *Runner) Run(ctx context.Context) Result {
	cred, err := r.creds.Credentials(ctx)
	if err == nil && !cred.Valid() {
		err = fmt.Errorf("%w: %w", credentials.ErrCredentials, core.ErrEmptyCredentials)
	}
	if err != nil {
		r.logger.WithError(err).Error("Error pulling user credentials")
		r.console.Printf("Error pulling user credentials")
		return Result{ExitCode: ExitCredentials, Err: err}
	}

	sess, err := r.connect(ctx, cred)
	if err != nil {
		_, rc := core.StatusOf(err)
		return Result{ExitCode: int(rc), Err: err}
	}

	var res Result
	loopRan := false
	defer func() {
		if loopRan {
			r.console.Done()
		}
	}()
	defer r.disconnect(ctx, sess)

	request, err := r.open(ctx, sess, r.cfg.RequestQueue, core.OpenOutput)
	if err != nil {
		cc, _ := core.StatusOf(err)
		return Result{ExitCode: int(cc), Err: err}
	}
	defer r.close(ctx, sess, request)

	reply, err := r.open(ctx, sess, r.cfg.ReplyQueue, core.OpenExclusiveInput)
	if err != nil {
		cc, _ := core.StatusOf(err)
		return Result{ExitCode: int(cc), Err: err}
	}
	defer r.close(ctx, sess, reply)

	engine := core.NewEngine(sess, request, reply, r.gen, r.cfg.EngineConfig())
	engine.SetReporter(r.console)
	engine.SetLogger(r.logger.WithField("component", "engine"))
	for _, m := range r.middlewares {
		engine.Use(m)
	}

	sum, err := engine.Run(ctx)
	if err != nil {
		r.logger.WithError(err).Error("engine did not start")
		return Result{ExitCode: int(core.CompletionFailed), Err: err}
	}
	loopRan = true

	res.Summary = sum
	r.logger.WithFields(logrus.Fields{
		"attempted": sum.Attempted,
		"delivered": sum.Delivered,
		"bytes":     sum.Bytes,
		"outcome":   sum.Last.Kind.String(),
		"elapsed":   sum.Elapsed,
	}).Info("run finished")

	if r.cfg.Loop.ExitOnLoopError && !sum.Last.Continue() {
		res.ExitCode = int(sum.Last.Reason)
	}
	return res
}

// connect opens the session. A warning is logged and the session is used.
func (r *Runner) connect(ctx context.Context, cred core.Credentials) (core.Session, error) {
	log := r.logger.WithField("broker", r.cfg.Broker)
	sess, err := r.transport.Connect(ctx, r.cfg.Broker, cred)
	cc, rc := core.StatusOf(err)
	switch {
	case err == nil:
		log.Debug("connected")
	case core.IsWarning(err):
		log.WithFields(logrus.Fields{"completion": cc, "reason": int(rc)}).WithError(err).Warn("connect generated a warning, continuing")
		r.console.Printf("connect generated a warning with reason code %d", int(rc))
		r.console.Printf("Continuing...")
		err = nil
	default:
		log.WithFields(logrus.Fields{"completion": cc, "reason": int(rc)}).WithError(err).Error("connect failed")
		r.console.Printf("connect failed with reason code %d", int(rc))
		return nil, err
	}
	return sess, nil
}

func (r *Runner) open(ctx context.Context, sess core.Session, queue string, mode core.OpenMode) (core.QueueHandle, error) {
	h, err := sess.Open(ctx, queue, mode)
	if err == nil {
		return h, nil
	}
	cc, rc := core.StatusOf(err)
	log := r.logger.WithFields(logrus.Fields{
		"queue":      queue,
		"mode":       mode.String(),
		"completion": cc,
		"reason":     int(rc),
	})
	if core.IsWarning(err) {
		log.WithError(err).Warn("open generated a warning")
		return h, nil
	}
	log.WithError(err).Error("open failed, disconnecting")
	r.console.Printf("open ended with reason code %d", int(rc))
	r.console.Printf("Unable to open %s queue for %s", queue, mode)
	r.console.Printf("Disconnecting from %s and exiting", r.cfg.Broker)
	return nil, err
}

func (r *Runner) close(ctx context.Context, sess core.Session, h core.QueueHandle) {
	tctx, cancel := teardownContext(ctx)
	defer cancel()
	if err := sess.Close(tctx, h); err != nil {
		_, rc := core.StatusOf(err)
		r.logger.WithFields(logrus.Fields{"queue": h.Queue(), "reason": int(rc)}).WithError(err).Warn("close failed")
		r.console.Printf("close %s ended with reason code %d", h.Queue(), int(rc))
	}
}

func (r *Runner) disconnect(ctx context.Context, sess core.Session) {
	tctx, cancel := teardownContext(ctx)
	defer cancel()
	if err := sess.Disconnect(tctx); err != nil {
		_, rc := core.StatusOf(err)
		r.logger.WithField("reason", int(rc)).WithError(err).Warn("disconnect failed")
		r.console.Printf("disconnect ended with reason code %d", int(rc))
	}
}

// teardownContext keeps values from ctx but survives its cancellation, so a
// stopped run still releases what it holds.
func teardownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
}

// Serve runs the reply side: credentials, connect, answer requests on the
// request queue until ctx is cancelled, disconnect.
func Serve(ctx context.Context, cfg *config.Config, t core.Transport, creds credentials.Supplier, logger *logrus.Entry) (int, error) {
	if logger == nil {
		logger = logrus.WithField("component", "responder")
	}
	cred, err := creds.Credentials(ctx)
	if err != nil {
		return 0, err
	}
	sess, err := t.Connect(ctx, cfg.Broker, cred)
	if err != nil {
		if !core.IsWarning(err) {
			return 0, err
		}
		logger.WithError(err).Warn("connect generated a warning, continuing")
	}
	defer func() {
		tctx, cancel := teardownContext(ctx)
		defer cancel()
		if err := sess.Disconnect(tctx); err != nil {
			logger.WithError(err).Warn("disconnect failed")
		}
	}()

	resp := core.NewResponder(sess, cfg.RequestQueue, cfg.Responder.Poll, core.Echo)
	resp.SetLogger(logger)
	n, err := resp.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return n, err
	}
	return n, nil
}
