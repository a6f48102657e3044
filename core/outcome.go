package core

import (
	"fmt"
	"time"
)

// OutcomeKind classifies one iteration of the request/reply loop.
type OutcomeKind int

const (
	OutcomeDelivered OutcomeKind = iota
	OutcomeTimeout
	OutcomeTransportError
	OutcomeSubmitError
	// OutcomeStopped means the run was cancelled from outside the loop.
	OutcomeStopped
	// OutcomePending means no outcome was recorded for the iteration.
	OutcomePending
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport error"
	case OutcomeSubmitError:
		return "submit error"
	case OutcomeStopped:
		return "stopped"
	case OutcomePending:
		return "pending"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one iteration.
type Outcome struct {
	Kind OutcomeKind
	// Length is the reply length in bytes, set for OutcomeDelivered.
	Length int
	Reason ReasonCode
	Err    error
}

// Continue reports whether the loop proceeds after this outcome.
func (o Outcome) Continue() bool { return o.Kind == OutcomeDelivered }

// ReceiveOutcome classifies the result of waiting for a reply. Only a clean
// completion counts as delivered; a warning ends the loop with its reason.
func ReceiveOutcome(err error, reply *Message) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeDelivered, Length: reply.Len()}
	}
	_, rc := StatusOf(err)
	switch rc {
	case ReasonNoMsgAvailable:
		return Outcome{Kind: OutcomeTimeout, Reason: rc, Err: err}
	case ReasonStopping:
		return Outcome{Kind: OutcomeStopped, Reason: rc, Err: err}
	default:
		return Outcome{Kind: OutcomeTransportError, Reason: rc, Err: err}
	}
}

// SubmitOutcome classifies a failed submission.
func SubmitOutcome(err error) Outcome {
	_, rc := StatusOf(err)
	if rc == ReasonStopping {
		return Outcome{Kind: OutcomeStopped, Reason: rc, Err: err}
	}
	return Outcome{Kind: OutcomeSubmitError, Reason: rc, Err: err}
}

// Summary describes a finished run of the engine.
type Summary struct {
	Attempted int
	Delivered int
	Bytes     int64
	Last      Outcome
	Elapsed   time.Duration
}

// Completed reports whether every configured iteration delivered a reply.
func (s Summary) Completed(iterations int) bool {
	return s.Delivered == iterations
}
