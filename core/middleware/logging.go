package middleware

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/mqrequest/core"
)

// Logging returns middleware that logs each round trip at debug level and
// failed round trips at warn level.
func Logging(l *logrus.Entry) core.MiddlewareFunc {
	if l == nil {
		l = logrus.WithField("component", "roundtrip")
	}
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			out := c.Outcome()

			fields := logrus.Fields{
				"iteration": c.Iteration(),
				"seed":      c.Seed(),
				"msg_id":    c.Request().MsgID,
				"outcome":   out.Kind.String(),
				"elapsed":   time.Since(start),
			}
			if err != nil {
				_, rc := core.StatusOf(err)
				fields["reason"] = int(rc)
				l.WithFields(fields).WithError(err).Warn("round trip failed")
			} else {
				fields["length"] = out.Length
				l.WithFields(fields).Debug("round trip ok")
			}
			return err
		}
	}
}
