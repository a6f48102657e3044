package core

// Matcher determines whether a delivery satisfies the match criteria of a Get.
type Matcher interface {
	Match(opts GetOptions, msg *Message) bool
}

// DefaultMatcher supports the three match modes:
//
//	MatchNone     accepts every delivery
//	MatchMsgID    accepts a delivery whose MsgID equals opts.MsgID
//	MatchCorrelID accepts a delivery whose CorrelID equals opts.CorrelID
//
// An empty identity in the options matches anything.
type DefaultMatcher struct{}

func (DefaultMatcher) Match(opts GetOptions, msg *Message) bool {
	switch opts.Match {
	case MatchMsgID:
		return opts.MsgID == "" || msg.MsgID == opts.MsgID
	case MatchCorrelID:
		return opts.CorrelID == "" || msg.CorrelID == opts.CorrelID
	default:
		return true
	}
}

// CheckLength returns a TruncatedMsgFailed error when a body of n bytes does
// not fit opts.MaxLength.
func CheckLength(op string, opts GetOptions, n int) error {
	if opts.MaxLength > 0 && n > opts.MaxLength {
		return Failed(op, ReasonTruncatedMsgFailed, nil)
	}
	return nil
}
