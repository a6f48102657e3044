package middleware

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/miladsoleymani/mqrequest/core"
)

// Recovery returns middleware that recovers from panics in the round trip,
// logs the stack trace, and returns the panic as an error.
func Recovery() core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					logrus.WithField("iteration", c.Iteration()).Errorf("panic recovered: %v\n%s", r, buf[:n])
					err = core.Failed("round trip", core.ReasonUnexpectedError, fmt.Errorf("panic recovered: %v", r))
					c.SetOutcome(core.Outcome{Kind: core.OutcomeTransportError, Reason: core.ReasonUnexpectedError, Err: err})
				}
			}()
			return next(c)
		}
	}
}
