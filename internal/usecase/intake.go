package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"commission-intake/internal/domain"
)

const (
	defaultMaxMessage = 1000
	defaultQueueLimit = 50
	maxQueueLimit     = 200
)

// ParamGetter returns the named parameters that exist; missing names are
// absent from the map.
type ParamGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

type IntakeService struct {
	params        ParamGetter
	responder     *Responder
	finalizer     *Finalizer
	store         RecordStore
	paramPrefix   string
	maxMessageLen int
	contactAfter  int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	openaiModel string
	tracker     *Tracker
	fallback    *Tracker
}

type TurnInput struct {
	Session    domain.Session
	Message    string
	Categories []string
}

type TurnOutput struct {
	Session       domain.Session
	Reply         string
	Stage         Stage
	Deterministic bool
	// Degraded is set when generation failed and a fallback reply was used.
	Degraded bool
}

type SubmitInput struct {
	Session domain.Session
	MakerID string
}

type SubmitOutput struct {
	Session    domain.Session
	Reply      string
	Commission *domain.Commission
	// Failure carries a recoverable validation or store failure. The
	// session stays open and the reply explains what happened.
	Failure *Error
}

// MakerSession is a maker profile with a freshly opened intake session.
type MakerSession struct {
	Maker   domain.Maker
	Session domain.Session
}

func NewIntakeService(p ParamGetter, llm LLMClient, store RecordStore, paramPrefix string, maxMessageLen, contactAfter int) (*IntakeService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	responder, err := NewResponder(llm)
	if err != nil {
		return nil, err
	}
	finalizer, err := NewFinalizer(store)
	if err != nil {
		return nil, err
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	if contactAfter <= 0 {
		contactAfter = defaultContactPromptAfter
	}
	return &IntakeService{
		params:        p,
		responder:     responder,
		finalizer:     finalizer,
		store:         store,
		paramPrefix:   paramPrefix,
		maxMessageLen: maxMessageLen,
		contactAfter:  contactAfter,
		fallback:      NewTracker(contactAfter, DefaultVocabulary()),
	}, nil
}

// Turn processes one customer message against the session.
func (s *IntakeService) Turn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	if in.Session.OrderPlaced {
		return TurnOutput{}, newError(ErrorSessionClosed, "order_placed", nil)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	// A config outage only degrades delegated turns.
	cfgErr := s.ensureConfig(ctx)
	if cfgErr != nil {
		slog.WarnContext(ctx, "config load failed, using default vocabulary", "err", cfgErr)
	}
	tracker := s.currentTracker()

	next, decision := tracker.Advance(in.Session, message)
	if decision.Kind == DecisionDeterministic {
		return TurnOutput{
			Session:       next,
			Reply:         decision.Reply,
			Stage:         StageOf(next),
			Deterministic: true,
		}, nil
	}
	if cfgErr != nil {
		return degraded(next), nil
	}

	resp, err := s.responder.Respond(ctx, s.model(), decision.Transcript, in.Categories)
	if err != nil {
		slog.WarnContext(ctx, "reply generation failed, keeping fallback summary", "err", err)
		return degraded(next), nil
	}

	next = tracker.Apply(next, resp)
	return TurnOutput{
		Session: next,
		Reply:   resp.Reply,
		Stage:   StageOf(next),
	}, nil
}

// Submit finalizes the session's order. Missing contact fields and store
// failures leave the session open with an explanatory assistant turn.
func (s *IntakeService) Submit(ctx context.Context, in SubmitInput) (SubmitOutput, error) {
	if in.Session.OrderPlaced {
		return SubmitOutput{}, newError(ErrorSessionClosed, "order_placed", nil)
	}
	commission, err := s.PlaceOrder(ctx, OrderInput{
		MakerID:    in.MakerID,
		Email:      in.Session.Email,
		Name:       in.Session.Name,
		Title:      in.Session.Summary,
		Transcript: in.Session.Transcript,
	})
	if err != nil {
		var ucErr *Error
		if !errors.As(err, &ucErr) {
			return SubmitOutput{}, newError(ErrorInternal, "unexpected_order_error", err)
		}
		reply := Reprompt(ucErr.Code)
		next := in.Session
		switch {
		case ucErr.Recoverable():
			if ucErr.Code == ErrorMissingEmail {
				next.ContactRequested = true
			}
		case ucErr.Code == ErrorStore:
			reply = fmt.Sprintf(orderFailedFormat, failureReason(ucErr))
		default:
			return SubmitOutput{}, err
		}
		next = AppendAssistant(next, reply)
		return SubmitOutput{Session: next, Reply: reply, Failure: ucErr}, nil
	}

	next := AppendAssistant(in.Session, orderPlacedReply)
	next.OrderPlaced = true
	return SubmitOutput{Session: next, Reply: orderPlacedReply, Commission: &commission}, nil
}

// PlaceOrder finalizes an order from explicit fields.
func (s *IntakeService) PlaceOrder(ctx context.Context, in OrderInput) (domain.Commission, error) {
	return s.finalizer.PlaceOrder(ctx, in)
}

// OpenSession loads a maker by handle and starts an intake session with
// the maker-specific greeting.
func (s *IntakeService) OpenSession(ctx context.Context, handle string) (MakerSession, error) {
	maker, err := s.lookupMaker(ctx, handle)
	if err != nil {
		return MakerSession{}, err
	}
	return MakerSession{
		Maker:   maker,
		Session: domain.Session{Transcript: []domain.Message{Greeting(maker.Name)}},
	}, nil
}

// Queue lists a maker's commissions, newest first.
func (s *IntakeService) Queue(ctx context.Context, handle string, limit int) (domain.Maker, []domain.Commission, error) {
	maker, err := s.lookupMaker(ctx, handle)
	if err != nil {
		return domain.Maker{}, nil, err
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}
	commissions, err := s.store.ListMakerCommissions(ctx, maker.ID, limit)
	if err != nil {
		return domain.Maker{}, nil, newError(ErrorStore, "commission_list_error", err)
	}
	return maker, commissions, nil
}

func (s *IntakeService) lookupMaker(ctx context.Context, handle string) (domain.Maker, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.Maker{}, newError(ErrorInvalidInput, "empty_handle", nil)
	}
	maker, found, err := s.store.GetMakerByHandle(ctx, handle)
	if err != nil {
		return domain.Maker{}, newError(ErrorStore, "maker_lookup_error", err)
	}
	if !found {
		return domain.Maker{}, newError(ErrorNotFound, "maker_not_found", nil)
	}
	return maker, nil
}

func (s *IntakeService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	model, vocab, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.openaiModel = model
	s.tracker = NewTracker(s.contactAfter, vocab)
	s.cacheLoaded = true
	return nil
}

func (s *IntakeService) loadSSMParams(ctx context.Context) (string, *Vocabulary, error) {
	modelName := s.paramPrefix + "/config/openai_model"
	vocabName := s.paramPrefix + "/config/vocabulary"

	vals, err := s.params.GetParameters(ctx, modelName, vocabName)
	if err != nil {
		return "", nil, fmt.Errorf("usecase: load parameters: %w", err)
	}
	model := strings.TrimSpace(vals[modelName])
	if model == "" {
		return "", nil, errors.New("usecase: load openai model: parameter missing")
	}
	vocab := DefaultVocabulary()
	if raw, ok := vals[vocabName]; ok {
		parsed, err := ParseVocabulary(raw)
		if err != nil {
			slog.WarnContext(ctx, "invalid vocabulary parameter, using default", "name", vocabName, "err", err)
		} else {
			vocab = parsed
		}
	}
	return model, vocab, nil
}

func (s *IntakeService) currentTracker() *Tracker {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.tracker == nil {
		return s.fallback
	}
	return s.tracker
}

func (s *IntakeService) model() string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.openaiModel
}

// Reprompt returns the assistant turn that recovers from a validation
// failure, or "" when the code has none.
func Reprompt(code ErrorCode) string {
	switch code {
	case ErrorMissingEmail:
		return orderEmailPrompt
	case ErrorMissingName:
		return orderNamePrompt
	default:
		return ""
	}
}

// degraded appends the apology turn used when no reply could be generated.
func degraded(s domain.Session) TurnOutput {
	next := AppendAssistant(s, generationFallback)
	return TurnOutput{
		Session:  next,
		Reply:    generationFallback,
		Stage:    StageOf(next),
		Degraded: true,
	}
}

func failureReason(e *Error) string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}
