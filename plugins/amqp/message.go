package amqp

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/miladsoleymani/mqrequest/core"
)

// toPublishing maps a core.Message onto AMQP basic properties.
func toPublishing(msg *core.Message, persistent bool) amqp.Publishing {
	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}
	return amqp.Publishing{
		ContentType:   "application/octet-stream",
		DeliveryMode:  mode,
		Type:          msg.Type.String(),
		MessageId:     msg.MsgID,
		CorrelationId: msg.CorrelID,
		ReplyTo:       msg.ReplyTo,
		Timestamp:     time.Now(),
		Body:          msg.Body,
	}
}

// fromDelivery adapts an amqp.Delivery to core.Message.
func fromDelivery(d amqp.Delivery) core.Message {
	return core.Message{
		Type:     core.ParseMsgType(d.Type),
		MsgID:    d.MessageId,
		CorrelID: d.CorrelationId,
		ReplyTo:  d.ReplyTo,
		Body:     d.Body,
	}
}
