package kafka

import (
	"github.com/segmentio/kafka-go"

	"github.com/miladsoleymani/mqrequest/core"
)

// Header keys carrying message identities.
const (
	headerType     = "mq-type"
	headerMsgID    = "mq-msg-id"
	headerCorrelID = "mq-correl-id"
	headerReplyTo  = "mq-reply-to"
)

// toMessage maps a core.Message onto a Kafka record. The correlation
// identity doubles as the record key.
func toMessage(msg *core.Message) kafka.Message {
	headers := []kafka.Header{
		{Key: headerType, Value: []byte(msg.Type.String())},
		{Key: headerMsgID, Value: []byte(msg.MsgID)},
	}
	if msg.CorrelID != "" {
		headers = append(headers, kafka.Header{Key: headerCorrelID, Value: []byte(msg.CorrelID)})
	}
	if msg.ReplyTo != "" {
		headers = append(headers, kafka.Header{Key: headerReplyTo, Value: []byte(msg.ReplyTo)})
	}
	return kafka.Message{
		Key:     []byte(msg.CorrelID),
		Value:   msg.Body,
		Headers: headers,
	}
}

// fromMessage adapts a Kafka record to core.Message.
func fromMessage(raw kafka.Message) core.Message {
	var m core.Message
	for _, h := range raw.Headers {
		switch h.Key {
		case headerType:
			m.Type = core.ParseMsgType(string(h.Value))
		case headerMsgID:
			m.MsgID = string(h.Value)
		case headerCorrelID:
			m.CorrelID = string(h.Value)
		case headerReplyTo:
			m.ReplyTo = string(h.Value)
		}
	}
	m.Body = raw.Value
	return m
}
