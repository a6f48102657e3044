package redis

import (
	"encoding/json"

	"github.com/miladsoleymani/mqrequest/core"
)

// envelope is the list element stored for each message.
type envelope struct {
	Type     string `json:"type"`
	MsgID    string `json:"msg_id"`
	CorrelID string `json:"correl_id,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Body     []byte `json:"body"`
}

func encode(msg *core.Message) ([]byte, error) {
	return json.Marshal(envelope{
		Type:     msg.Type.String(),
		MsgID:    msg.MsgID,
		CorrelID: msg.CorrelID,
		ReplyTo:  msg.ReplyTo,
		Body:     msg.Body,
	})
}

func decode(raw []byte) (core.Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.Message{}, err
	}
	return core.Message{
		Type:     core.ParseMsgType(env.Type),
		MsgID:    env.MsgID,
		CorrelID: env.CorrelID,
		ReplyTo:  env.ReplyTo,
		Body:     env.Body,
	}, nil
}
