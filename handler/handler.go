package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"commission-intake/internal/domain"
	"commission-intake/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 256 << 10

	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// IntakeUseCase is the application surface served over API Gateway.
type IntakeUseCase interface {
	Turn(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	Submit(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
	PlaceOrder(ctx context.Context, in usecase.OrderInput) (domain.Commission, error)
	OpenSession(ctx context.Context, handle string) (usecase.MakerSession, error)
	Queue(ctx context.Context, handle string, limit int) (domain.Maker, []domain.Commission, error)
}

type Handler struct {
	uc IntakeUseCase
}

func NewHandler(uc IntakeUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

type sessionPayload struct {
	Transcript       []domain.Message `json:"transcript"`
	MakerID          string           `json:"makerId"`
	Categories       []string         `json:"categories"`
	KnownEmail       string           `json:"knownEmail"`
	KnownName        string           `json:"knownName"`
	Summary          string           `json:"summary"`
	SummaryTagged    bool             `json:"summaryTagged"`
	ContactRequested bool             `json:"contactRequested"`
	OrderPlaced      bool             `json:"orderPlaced"`
}

type intakeResponse struct {
	Reply            string             `json:"reply"`
	Summary          string             `json:"summary"`
	SummaryTagged    bool               `json:"summaryTagged"`
	Email            string             `json:"email,omitempty"`
	Name             string             `json:"name,omitempty"`
	ContactRequested bool               `json:"contactRequested"`
	OrderPlaced      bool               `json:"orderPlaced"`
	Stage            usecase.Stage      `json:"stage"`
	Degraded         bool               `json:"degraded,omitempty"`
	Transcript       []domain.Message   `json:"transcript"`
	Commission       *domain.Commission `json:"commission,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type orderRequest struct {
	MakerID     string           `json:"makerId"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Transcript  []domain.Message `json:"transcript"`
}

type makerResponse struct {
	Maker      domain.Maker     `json:"maker"`
	Transcript []domain.Message `json:"transcript"`
	Stage      usecase.Stage    `json:"stage"`
}

type queueResponse struct {
	Maker       domain.Maker        `json:"maker"`
	Commissions []domain.Commission `json:"commissions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handle routes an API Gateway proxy request:
//
//	POST /intake                 one customer turn
//	POST /intake/submit          place the order for a session
//	POST /orders                 place an order from explicit fields
//	GET  /makers/{handle}        maker profile and opening greeting
//	GET  /makers/{handle}/queue  maker's commissions, newest first
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.Default().With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	status, body := h.route(ctx, event)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "status", status)
	} else {
		logger.InfoContext(ctx, "request handled", "status", status)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: body,
	}, nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest) (int, string) {
	segments := pathSegments(event.Path)
	method := strings.ToUpper(event.HTTPMethod)

	switch {
	case len(segments) == 1 && segments[0] == "intake":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.turn(ctx, event.Body)
	case len(segments) == 2 && segments[0] == "intake" && segments[1] == "submit":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.submit(ctx, event.Body)
	case len(segments) == 1 && segments[0] == "orders":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		return h.placeOrder(ctx, event.Body)
	case len(segments) == 2 && segments[0] == "makers":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.openSession(ctx, segments[1])
	case len(segments) == 3 && segments[0] == "makers" && segments[2] == "queue":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.queue(ctx, segments[1], event.QueryStringParameters["limit"])
	default:
		return encode(http.StatusNotFound, errorResponse{Error: errorNotFound, Message: "no such route"})
	}
}

func (h *Handler) turn(ctx context.Context, body string) (int, string) {
	var req sessionPayload
	if err := decodeBody(body, &req); err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
	}
	transcript, err := normalizeTranscript(req.Transcript)
	if err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_transcript", Err: err})
	}
	n := len(transcript)
	if n == 0 || transcript[n-1].Role != domain.RoleCustomer {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_customer_turn"})
	}

	session := req.session(transcript[:n-1])
	out, err := h.uc.Turn(ctx, usecase.TurnInput{
		Session:    session,
		Message:    transcript[n-1].Content,
		Categories: req.Categories,
	})
	if err != nil {
		return errorResult(ctx, err)
	}
	resp := newIntakeResponse(out.Session, out.Reply)
	resp.Degraded = out.Degraded
	return encode(http.StatusOK, resp)
}

func (h *Handler) submit(ctx context.Context, body string) (int, string) {
	var req sessionPayload
	if err := decodeBody(body, &req); err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
	}
	transcript, err := normalizeTranscript(req.Transcript)
	if err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_transcript", Err: err})
	}

	out, err := h.uc.Submit(ctx, usecase.SubmitInput{Session: req.session(transcript), MakerID: req.MakerID})
	if err != nil {
		return errorResult(ctx, err)
	}
	resp := newIntakeResponse(out.Session, out.Reply)
	resp.Commission = out.Commission
	if out.Failure != nil {
		resp.Error = string(out.Failure.Code)
		slog.WarnContext(ctx, "order not placed", "code", out.Failure.Code, "reason", out.Failure.Reason, "err", out.Failure.Err)
	}
	return encode(http.StatusOK, resp)
}

func (h *Handler) placeOrder(ctx context.Context, body string) (int, string) {
	var req orderRequest
	if err := decodeBody(body, &req); err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
	}
	transcript, err := normalizeTranscript(req.Transcript)
	if err != nil {
		return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_transcript", Err: err})
	}

	commission, err := h.uc.PlaceOrder(ctx, usecase.OrderInput{
		MakerID:     req.MakerID,
		Email:       req.Email,
		Name:        req.Name,
		Title:       req.Title,
		Description: req.Description,
		Transcript:  transcript,
	})
	if err != nil {
		return errorResult(ctx, err)
	}
	return encode(http.StatusCreated, commission)
}

func (h *Handler) openSession(ctx context.Context, handle string) (int, string) {
	out, err := h.uc.OpenSession(ctx, handle)
	if err != nil {
		return errorResult(ctx, err)
	}
	return encode(http.StatusOK, makerResponse{
		Maker:      out.Maker,
		Transcript: out.Session.Transcript,
		Stage:      usecase.StageOf(out.Session),
	})
}

func (h *Handler) queue(ctx context.Context, handle, rawLimit string) (int, string) {
	limit := 0
	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 {
			return errorResult(ctx, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_limit", Err: err})
		}
		limit = n
	}
	maker, commissions, err := h.uc.Queue(ctx, handle, limit)
	if err != nil {
		return errorResult(ctx, err)
	}
	return encode(http.StatusOK, queueResponse{Maker: maker, Commissions: commissions})
}

func (p sessionPayload) session(transcript []domain.Message) domain.Session {
	return domain.Session{
		Transcript:       transcript,
		Email:            strings.TrimSpace(p.KnownEmail),
		Name:             strings.TrimSpace(p.KnownName),
		Summary:          strings.TrimSpace(p.Summary),
		SummaryFromTag:   p.SummaryTagged,
		ContactRequested: p.ContactRequested,
		OrderPlaced:      p.OrderPlaced,
	}
}

func newIntakeResponse(s domain.Session, reply string) intakeResponse {
	return intakeResponse{
		Reply:            reply,
		Summary:          s.Summary,
		SummaryTagged:    s.SummaryFromTag,
		Email:            s.Email,
		Name:             s.Name,
		ContactRequested: s.ContactRequested,
		OrderPlaced:      s.OrderPlaced,
		Stage:            usecase.StageOf(s),
		Transcript:       s.Transcript,
	}
}

// normalizeTranscript validates roles. "user" is accepted for customer
// turns since chat front ends commonly send it.
func normalizeTranscript(in []domain.Message) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(in))
	for i, m := range in {
		switch strings.ToLower(strings.TrimSpace(string(m.Role))) {
		case string(domain.RoleCustomer), "user":
			m.Role = domain.RoleCustomer
		case string(domain.RoleAssistant):
			m.Role = domain.RoleAssistant
		default:
			return nil, fmt.Errorf("handler: transcript[%d] has unknown role %q", i, m.Role)
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeBody(body string, v any) error {
	if len(body) > maxBodyBytes {
		return errors.New("handler: body too large")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("handler: empty body")
	}
	return json.Unmarshal([]byte(body), v)
}

func errorResult(ctx context.Context, err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.ErrorContext(ctx, "unexpected error", "err", err)
		return encode(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
	}

	resp := errorResponse{Error: string(ucErr.Code)}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
		resp.Message = ucErr.Reason
	case usecase.ErrorMissingEmail, usecase.ErrorMissingName:
		status = http.StatusBadRequest
		resp.Message = usecase.Reprompt(ucErr.Code)
	case usecase.ErrorSessionClosed:
		status = http.StatusConflict
		resp.Message = "order already placed for this session"
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
		resp.Message = ucErr.Reason
	case usecase.ErrorStore:
		status = http.StatusBadGateway
		if ucErr.Err != nil {
			resp.Message = ucErr.Err.Error()
		}
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "use case failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return encode(status, resp)
}

func methodNotAllowed() (int, string) {
	return encode(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
}

func encode(status int, v any) (int, string) {
	buf, err := json.Marshal(v)
	if err != nil {
		return http.StatusInternalServerError, `{"error":"INTERNAL_ERROR"}`
	}
	return status, string(buf)
}

func pathSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
