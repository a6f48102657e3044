package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/miladsoleymani/mqrequest/core"
)

// Header keys carrying message identities.
const (
	headerType     = "Mq-Type"
	headerMsgID    = "Mq-Msg-Id"
	headerCorrelID = "Mq-Correl-Id"
)

// toMsg maps a core.Message onto a NATS message. The reply destination
// travels as the NATS reply subject.
func toMsg(subject string, msg *core.Message) *nats.Msg {
	h := nats.Header{}
	h.Set(headerType, msg.Type.String())
	if msg.MsgID != "" {
		h.Set(headerMsgID, msg.MsgID)
	}
	if msg.CorrelID != "" {
		h.Set(headerCorrelID, msg.CorrelID)
	}
	return &nats.Msg{
		Subject: subject,
		Reply:   msg.ReplyTo,
		Header:  h,
		Data:    msg.Body,
	}
}

// fromMsg adapts a NATS message to core.Message.
func fromMsg(m *nats.Msg) core.Message {
	return core.Message{
		Type:     core.ParseMsgType(m.Header.Get(headerType)),
		MsgID:    m.Header.Get(headerMsgID),
		CorrelID: m.Header.Get(headerCorrelID),
		ReplyTo:  m.Reply,
		Body:     m.Data,
	}
}
