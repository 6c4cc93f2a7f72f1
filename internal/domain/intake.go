package domain

// Role identifies who authored a transcript message.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in an intake transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the state of one customer-maker intake conversation.
// It is owned by the caller and passed into and returned from every
// intake operation; nothing is retained between calls.
type Session struct {
	Transcript       []Message
	Email            string
	Name             string
	Summary          string
	SummaryFromTag   bool
	ContactRequested bool
	OrderPlaced      bool
}

// Clone returns a copy whose transcript can be appended to without
// touching the receiver's backing array.
func (s Session) Clone() Session {
	out := s
	out.Transcript = append([]Message(nil), s.Transcript...)
	return out
}

// LastAssistant returns the content of the most recent assistant turn.
func (s Session) LastAssistant() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i].Content
		}
	}
	return ""
}
