package core

import "fmt"

// CompletionCode is the coarse outcome of a transport call.
type CompletionCode int

const (
	CompletionOK      CompletionCode = 0
	CompletionWarning CompletionCode = 1
	CompletionFailed  CompletionCode = 2
)

func (c CompletionCode) String() string {
	switch c {
	case CompletionOK:
		return "ok"
	case CompletionWarning:
		return "warning"
	case CompletionFailed:
		return "failed"
	default:
		return fmt.Sprintf("completion(%d)", int(c))
	}
}

// ReasonCode qualifies a completion code. Values follow the numbering used by
// queue managers so they can double as process exit statuses.
type ReasonCode int

const (
	ReasonNone               ReasonCode = 0
	ReasonConnectionBroken   ReasonCode = 2009
	ReasonHandleNotAvailable ReasonCode = 2017
	ReasonObjectClosed       ReasonCode = 2019
	ReasonNoMsgAvailable     ReasonCode = 2033
	ReasonNotAuthorized      ReasonCode = 2035
	ReasonObjectInUse        ReasonCode = 2042
	ReasonQMgrNotAvailable   ReasonCode = 2059
	ReasonTruncatedMsgFailed ReasonCode = 2080
	ReasonUnknownObjectName  ReasonCode = 2085
	ReasonQMgrQuiescing      ReasonCode = 2161
	ReasonStopping           ReasonCode = 2162
	ReasonUnexpectedError    ReasonCode = 2195
	ReasonHostNotAvailable   ReasonCode = 2538
)

var reasonNames = map[ReasonCode]string{
	ReasonNone:               "none",
	ReasonConnectionBroken:   "connection broken",
	ReasonHandleNotAvailable: "handle not available",
	ReasonObjectClosed:       "object closed",
	ReasonNoMsgAvailable:     "no message available",
	ReasonNotAuthorized:      "not authorized",
	ReasonObjectInUse:        "object in use",
	ReasonQMgrNotAvailable:   "broker not available",
	ReasonTruncatedMsgFailed: "truncated message",
	ReasonUnknownObjectName:  "unknown object name",
	ReasonQMgrQuiescing:      "broker quiescing",
	ReasonStopping:           "stopping",
	ReasonUnexpectedError:    "unexpected error",
	ReasonHostNotAvailable:   "host not available",
}

func (r ReasonCode) String() string {
	if s, ok := reasonNames[r]; ok {
		return fmt.Sprintf("%s (%d)", s, int(r))
	}
	return fmt.Sprintf("reason %d", int(r))
}
