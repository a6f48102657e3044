package core

// MsgType distinguishes requests from replies.
type MsgType int

const (
	MsgTypeDatagram MsgType = iota
	MsgTypeRequest
	MsgTypeReply
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeReply:
		return "reply"
	default:
		return "datagram"
	}
}

// ParseMsgType is the inverse of MsgType.String. Unknown names are datagrams.
func ParseMsgType(s string) MsgType {
	switch s {
	case "request":
		return MsgTypeRequest
	case "reply":
		return MsgTypeReply
	default:
		return MsgTypeDatagram
	}
}

// Message is the transport-agnostic unit of exchange. On Put the transport
// may assign MsgID and CorrelID; on Get it fills every field from the
// delivery.
type Message struct {
	Type     MsgType
	MsgID    string
	CorrelID string
	// ReplyTo names the queue the counterpart should answer on.
	ReplyTo string
	Body    []byte
}

// Len is the byte length of the body.
func (m *Message) Len() int { return len(m.Body) }
