package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ReplyFunc builds a reply body from a request body.
type ReplyFunc func(body []byte) []byte

// Echo returns the request body unchanged.
func Echo(body []byte) []byte { return body }

// Responder is the counterpart of the Engine. It consumes requests from a
// queue and answers each on the queue named by its ReplyTo, with the reply's
// CorrelID set to the request's MsgID.
type Responder struct {
	session Session
	queue   string
	poll    time.Duration
	reply   ReplyFunc
	logger  *logrus.Entry
}

// NewResponder creates a Responder serving queue over s. poll bounds each
// wait for a request so cancellation is observed promptly.
func NewResponder(s Session, queue string, poll time.Duration, fn ReplyFunc) *Responder {
	if fn == nil {
		fn = Echo
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Responder{
		session: s,
		queue:   queue,
		poll:    poll,
		reply:   fn,
		logger:  logrus.WithField("component", "responder"),
	}
}

// SetLogger replaces the logger.
func (r *Responder) SetLogger(l *logrus.Entry) { r.logger = l }

// Serve answers requests until ctx is cancelled or the transport fails.
// It returns the number of replies sent. Cancellation is not an error.
func (r *Responder) Serve(ctx context.Context) (int, error) {
	in, err := r.session.Open(ctx, r.queue, OpenExclusiveInput)
	if err != nil && !IsWarning(err) {
		return 0, err
	}

	outs := make(map[string]QueueHandle)
	defer func() {
		for name, h := range outs {
			if err := r.session.Close(context.Background(), h); err != nil {
				r.logger.WithError(err).WithField("queue", name).Warn("close reply queue")
			}
		}
		if err := r.session.Close(context.Background(), in); err != nil {
			r.logger.WithError(err).WithField("queue", r.queue).Warn("close request queue")
		}
	}()

	sent := 0
	var req Message
	for {
		if ctx.Err() != nil {
			return sent, nil
		}
		req = Message{}
		err := r.session.Get(ctx, in, &req, GetOptions{Wait: r.poll, NoSyncpoint: true})
		switch {
		case err == nil || IsWarning(err):
		case IsReason(err, ReasonNoMsgAvailable):
			continue
		case IsReason(err, ReasonStopping) || ctx.Err() != nil:
			return sent, nil
		default:
			return sent, err
		}

		if req.ReplyTo == "" {
			r.logger.WithField("msg_id", req.MsgID).Warn("request has no reply destination, discarded")
			continue
		}

		out, ok := outs[req.ReplyTo]
		if !ok {
			out, err = r.session.Open(ctx, req.ReplyTo, OpenOutput)
			if err != nil && !IsWarning(err) {
				r.logger.WithError(err).WithField("queue", req.ReplyTo).Error("open reply queue")
				continue
			}
			outs[req.ReplyTo] = out
		}

		rep := &Message{
			Type:     MsgTypeReply,
			CorrelID: req.MsgID,
			Body:     r.reply(req.Body),
		}
		opts := PutOptions{NoSyncpoint: true, FailIfQuiescing: true, NewMsgID: true}
		if err := r.session.Put(ctx, out, rep, opts); err != nil && !IsWarning(err) {
			return sent, err
		}
		sent++
	}
}
