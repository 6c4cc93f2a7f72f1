package usecase

import (
	"fmt"

	"commission-intake/internal/domain"
)

const defaultContactPromptAfter = 6

const (
	defaultGreeting    = "Hi! I'm here to help you commission something. What would you like to have made?"
	greetingFormat     = "Hi! I'm here to help you commission something from %s. What would you like to have made?"
	namePrompt         = "Thanks for your email address. Could you also provide your name so the maker knows who they're creating for?"
	readyFormat        = "Thanks, %s! Now we have all the details needed. Would you like to keep discussing your commission or place the order now?"
	contactPrompt      = "This sounds like a great commission! To proceed, I'll need your contact details. What email address should the maker use to contact you?"
	orderEmailPrompt   = "To place your order, I'll need your email address. What email would you like to use?"
	orderNamePrompt    = "To place your order, could you also provide your name so the maker knows who they're creating for?"
	orderPlacedReply   = "Your order has been placed successfully! Redirecting you to the queue to track your commission..."
	orderFailedFormat  = "I'm sorry, there was an error placing your order: %s"
	generationFallback = "I'm sorry, I couldn't come up with a reply just now. Could you send that again?"
)

// Stage is the contact-collection state derived from a session.
type Stage string

const (
	StageNeedEmail   Stage = "NEED_EMAIL"
	StageNeedName    Stage = "NEED_NAME"
	StageReady       Stage = "READY"
	StageOrderPlaced Stage = "ORDER_PLACED"
)

func StageOf(s domain.Session) Stage {
	switch {
	case s.OrderPlaced:
		return StageOrderPlaced
	case s.Email == "":
		return StageNeedEmail
	case s.Name == "":
		return StageNeedName
	default:
		return StageReady
	}
}

type DecisionKind int

const (
	// DecisionDeterministic means the tracker already appended a canned reply.
	DecisionDeterministic DecisionKind = iota + 1
	// DecisionDelegate means the transcript must go to the dialogue responder.
	DecisionDelegate
)

// Decision is the outcome of one customer turn.
type Decision struct {
	Kind       DecisionKind
	Reply      string
	Transcript []domain.Message
}

func Deterministic(reply string) Decision {
	return Decision{Kind: DecisionDeterministic, Reply: reply}
}

func Delegate(transcript []domain.Message) Decision {
	return Decision{Kind: DecisionDelegate, Transcript: transcript}
}

// Tracker advances a session by one customer turn.
type Tracker struct {
	contactAfter int
	vocab        *Vocabulary
}

func NewTracker(contactAfter int, vocab *Vocabulary) *Tracker {
	if contactAfter <= 0 {
		contactAfter = defaultContactPromptAfter
	}
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Tracker{contactAfter: contactAfter, vocab: vocab}
}

// Advance appends the customer turn and decides how it is answered. At most
// one deterministic assistant turn is appended; when it is, the decision is
// Deterministic and the responder must not be called.
func (t *Tracker) Advance(s domain.Session, text string) (domain.Session, Decision) {
	next := s.Clone()
	if len(next.Transcript) == 0 {
		next.Transcript = append(next.Transcript, domain.Message{Role: domain.RoleAssistant, Content: defaultGreeting})
	}
	previous := next.LastAssistant()
	next.Transcript = append(next.Transcript, domain.Message{Role: domain.RoleCustomer, Content: text})

	email, hasEmail := ExtractEmail(text)
	switch {
	case hasEmail && next.Email == "":
		next.Email = email
		next.ContactRequested = true
		return t.reply(next, namePrompt)
	case next.Email != "" && next.Name == "" && LooksLikeName(text, previous):
		next.Name = normalizeName(text)
		return t.reply(next, fmt.Sprintf(readyFormat, next.Name))
	case next.Email == "" && !next.ContactRequested && len(next.Transcript) >= t.contactAfter:
		next.ContactRequested = true
		return t.reply(next, contactPrompt)
	}

	if hasEmail {
		next.Email = email
	}
	t.refreshSummary(&next)
	return next, Delegate(next.Transcript)
}

// Apply records a responder result on the session.
func (t *Tracker) Apply(s domain.Session, resp Response) domain.Session {
	next := s.Clone()
	next.Transcript = append(next.Transcript, domain.Message{Role: domain.RoleAssistant, Content: resp.Reply})
	if resp.Tagged {
		next.Summary = resp.Summary
		next.SummaryFromTag = true
	}
	t.refreshSummary(&next)
	return next
}

// AppendAssistant appends a canned assistant turn outside the customer-turn
// flow, e.g. re-prompts and confirmations from order submission.
func AppendAssistant(s domain.Session, reply string) domain.Session {
	next := s.Clone()
	next.Transcript = append(next.Transcript, domain.Message{Role: domain.RoleAssistant, Content: reply})
	return next
}

func (t *Tracker) reply(s domain.Session, reply string) (domain.Session, Decision) {
	s.Transcript = append(s.Transcript, domain.Message{Role: domain.RoleAssistant, Content: reply})
	t.refreshSummary(&s)
	return s, Deterministic(reply)
}

// refreshSummary keeps the keyword fallback current until a generated
// reply supplies a tagged summary.
func (t *Tracker) refreshSummary(s *domain.Session) {
	if s.SummaryFromTag && s.Summary != "" {
		return
	}
	s.Summary = t.vocab.Summarize(s.Transcript)
	s.SummaryFromTag = false
}

// Greeting returns the opening assistant turn for a maker.
func Greeting(makerName string) domain.Message {
	content := defaultGreeting
	if makerName != "" {
		content = fmt.Sprintf(greetingFormat, makerName)
	}
	return domain.Message{Role: domain.RoleAssistant, Content: content}
}

func normalizeName(text string) string {
	return joinFields(text)
}
