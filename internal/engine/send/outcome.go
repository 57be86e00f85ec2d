package send

import "github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"

// Outcome is the result of one exchange. It is one of TextReply, MediaReply,
// Gated or Failed; callers switch on the concrete type.
type Outcome interface {
	outcome()
}

// TextReply carries a plain agent reply that was appended to the transcript.
type TextReply struct {
	Message chat.Message
}

// MediaReply carries an agent reply with an attachment. Locked is true for
// premium content that needs purchasing before it is shown.
type MediaReply struct {
	Message chat.Message
	Locked  bool
}

// Gated means the backend refused the exchange on quota or rate limits and the
// paywall was opened. No agent message was appended.
type Gated struct {
	Reason string
}

// Failed means the exchange failed for any other reason. The optimistic user
// message stays in the transcript.
type Failed struct {
	Err error
}

func (TextReply) outcome()  {}
func (MediaReply) outcome() {}
func (Gated) outcome()      {}
func (Failed) outcome()     {}
