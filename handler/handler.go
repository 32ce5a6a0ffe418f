package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"findost/internal/domain"
	"findost/internal/insights"
	"findost/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	defaultBodyLimit  = 1 << 20

	msgMessageRequired = "Message is required"
	msgMessageTooLong  = "Message is too long"
	msgInvalidBody     = "Invalid request body"
	msgBodyTooLarge    = "Request body too large"
	msgNotConfigured   = "AI not configured on server (missing API key)"
	msgFailed          = "Failed to process request"
)

// Replier is the relay as seen from the HTTP surface.
type Replier interface {
	Ready(ctx context.Context) error
	Reply(ctx context.Context, in usecase.ReplyInput) (usecase.ReplyOutput, error)
}

type chatRequest struct {
	Message     string                `json:"message"`
	Profile     domain.Profile        `json:"profile"`
	ChatHistory []domain.HistoryEntry `json:"chatHistory"`
	UserID      string                `json:"userId,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type profileRequest struct {
	Profile domain.Profile `json:"profile"`
}

type onboardingRequest struct {
	Step    int            `json:"step"`
	Profile domain.Profile `json:"profile"`
}

type onboardingResponse struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// endpoint handles one decoded request body and returns the status and the
// JSON payload to send. Both the chi router and the Lambda adapter call these.
type endpoint func(ctx context.Context, body []byte) (int, any)

type Handler struct {
	relay          Replier
	logger         *zap.Logger
	allowedOrigins []string
	bodyLimit      int64
	newID          func() string
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithAllowedOrigins sets the CORS origins; "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		if len(origins) > 0 {
			h.allowedOrigins = origins
		}
	}
}

func WithBodyLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.bodyLimit = n
		}
	}
}

func NewHandler(relay Replier, opts ...Option) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	h := &Handler{
		relay:          relay,
		logger:         zap.NewNop(),
		allowedOrigins: []string{"*"},
		bodyLimit:      defaultBodyLimit,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) chat(ctx context.Context, body []byte) (int, any) {
	// Configuration problems are reported before the body is even looked at.
	if err := h.relay.Ready(ctx); err != nil {
		return h.errorStatus(ctx, err)
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return invalidBody()
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(req.Profile.ID)
	}

	out, err := h.relay.Reply(ctx, usecase.ReplyInput{
		Message: req.Message,
		Profile: req.Profile,
		History: req.ChatHistory,
		UserID:  userID,
	})
	if err != nil {
		return h.errorStatus(ctx, err)
	}
	return http.StatusOK, chatResponse{Reply: out.Reply}
}

func (h *Handler) insights(_ context.Context, body []byte) (int, any) {
	var req profileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return invalidBody()
	}
	return http.StatusOK, insights.Summarize(req.Profile)
}

func (h *Handler) validateOnboarding(_ context.Context, body []byte) (int, any) {
	var req onboardingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return invalidBody()
	}
	missing := req.Profile.MissingFields(req.Step)
	if missing == nil {
		missing = []string{}
	}
	return http.StatusOK, onboardingResponse{Valid: len(missing) == 0, Missing: missing}
}

func (h *Handler) health(context.Context, []byte) (int, any) {
	return http.StatusOK, healthResponse{Status: "OK"}
}

func invalidBody() (int, any) {
	return http.StatusBadRequest, errorResponse{Error: msgInvalidBody, Code: string(usecase.ErrorInvalidInput)}
}

func bodyTooLarge() (int, any) {
	return http.StatusRequestEntityTooLarge, errorResponse{Error: msgBodyTooLarge, Code: string(usecase.ErrorInvalidInput)}
}

func notFound() (int, any) {
	return http.StatusNotFound, errorResponse{Error: "Not found", Code: "NOT_FOUND"}
}

func methodNotAllowed() (int, any) {
	return http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"}
}

// errorStatus maps relay failures onto the client contract: validation
// problems are 400, everything else is 500 with the code in the body.
func (h *Handler) errorStatus(ctx context.Context, err error) (int, any) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.logger.Error("unexpected relay error",
			zap.String("correlation_id", CorrelationID(ctx)),
			zap.Error(err))
		return http.StatusInternalServerError, errorResponse{
			Error:   msgFailed,
			Code:    string(usecase.ErrorInternal),
			Details: err.Error(),
		}
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		msg := msgMessageRequired
		if ucErr.Reason == "message_too_long" {
			msg = msgMessageTooLong
		}
		return http.StatusBadRequest, errorResponse{Error: msg, Code: string(ucErr.Code)}
	case usecase.ErrorNotConfigured:
		h.logger.Warn("relay not configured",
			zap.String("correlation_id", CorrelationID(ctx)),
			zap.Error(err))
		return http.StatusInternalServerError, errorResponse{Error: msgNotConfigured, Code: string(ucErr.Code)}
	default:
		h.logger.Error("relay failed",
			zap.String("correlation_id", CorrelationID(ctx)),
			zap.String("code", string(ucErr.Code)),
			zap.String("reason", ucErr.Reason),
			zap.Error(err))
		details := ucErr.Reason
		if ucErr.Err != nil {
			details = ucErr.Err.Error()
		}
		return http.StatusInternalServerError, errorResponse{
			Error:   msgFailed,
			Code:    string(ucErr.Code),
			Details: details,
		}
	}
}

type ctxKey struct{}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CorrelationID returns the request's correlation id, or "" outside a request.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (h *Handler) correlationID(provided string) string {
	if id := strings.TrimSpace(provided); id != "" {
		return id
	}
	return h.newID()
}

func marshalPayload(payload any) []byte {
	buf, err := json.Marshal(payload)
	if err != nil {
		buf, _ = json.Marshal(errorResponse{Error: msgFailed, Code: string(usecase.ErrorInternal)})
	}
	return buf
}
