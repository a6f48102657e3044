package core

import "github.com/google/uuid"

// NewID returns a fresh message identity.
func NewID() string {
	return uuid.NewString()
}

// AssignIDs stamps msg with fresh identities as requested by opts.
// Identities already present on msg are kept unless a new one is requested.
func AssignIDs(msg *Message, opts PutOptions) {
	if opts.NewMsgID || msg.MsgID == "" {
		msg.MsgID = NewID()
	}
	if opts.NewCorrelID {
		msg.CorrelID = NewID()
	}
}
