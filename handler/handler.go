// Package handler exposes the chat turn use case over API Gateway (Lambda)
// and over a plain HTTP router for local runs.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"restaurant-agent/internal/domain"
	applog "restaurant-agent/internal/log"
	"restaurant-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	conversationsPath   = "/chat/conversations"
)

type TurnUseCase interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	CreateConversation(ctx context.Context, userID int64) (int64, error)
	History(ctx context.Context, userID, conversationID int64) ([]domain.TranscriptEntry, error)
}

type Handler struct {
	uc     TurnUseCase
	logger zerolog.Logger
}

type turnRequest struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

type turnResponse struct {
	Response string `json:"response"`
}

type createResponse struct {
	ConversationID int64 `json:"conversationId"`
}

type historyMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type historyResponse struct {
	ConversationID int64            `json:"conversationId"`
	Messages       []historyMessage `json:"messages"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	// Response is set when the reply was produced but could not be cached.
	Response string `json:"response,omitempty"`
}

func NewHandler(uc TurnUseCase, logger zerolog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: logger}, nil
}

// Handle serves API Gateway proxy events. The caller's identity is the
// authorizer principal; requests without one are rejected.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = applog.ContextWithCorrelationID(ctx, correlationID)
	if req.RequestContext.RequestID != "" {
		ctx = applog.ContextWithRequestID(ctx, req.RequestContext.RequestID)
	}

	userID := principalID(req.RequestContext.Authorizer)
	path := strings.TrimSuffix(req.Path, "/")
	convRaw, hasConv := req.PathParameters["conversationId"]
	if !hasConv {
		convRaw, hasConv = conversationFromPath(path)
	}
	isMessages := strings.HasSuffix(path, "/messages")

	var status int
	var payload any
	switch {
	case !strings.HasPrefix(path, conversationsPath):
		status, payload = http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound)}
	case req.HTTPMethod == http.MethodPost && !hasConv:
		status, payload = h.createConversation(ctx, userID)
	case req.HTTPMethod == http.MethodPost && !isMessages:
		status, payload = h.turn(ctx, userID, convRaw, []byte(req.Body))
	case req.HTTPMethod == http.MethodGet && hasConv && isMessages:
		status, payload = h.history(ctx, userID, convRaw)
	default:
		status, payload = http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}, nil
}

func (h *Handler) turn(ctx context.Context, userRaw, convRaw string, body []byte) (int, any) {
	userID, convID, ok := parseIDs(userRaw, convRaw)
	if !ok {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}
	}
	var req turnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}
	}
	text := req.Text
	if text == "" {
		text = req.Message
	}

	out, err := h.uc.Process(ctx, usecase.TurnInput{UserID: userID, ConversationID: convID, Text: text})
	if err != nil {
		status, resp := h.errorResult(ctx, err)
		if resp.Error == string(usecase.ErrorPersistenceFailure) {
			resp.Response = out.Response
		}
		return status, resp
	}
	return http.StatusOK, turnResponse{Response: out.Response}
}

func (h *Handler) createConversation(ctx context.Context, userRaw string) (int, any) {
	userID, err := strconv.ParseInt(userRaw, 10, 64)
	if err != nil || userID <= 0 {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}
	}
	id, err := h.uc.CreateConversation(ctx, userID)
	if err != nil {
		return h.errorResult(ctx, err)
	}
	logger := applog.WithContext(ctx, h.logger)
	logger.Info().
		Int64(applog.FieldUserID, userID).
		Int64(applog.FieldConversationID, id).
		Msg("conversation created")
	return http.StatusOK, createResponse{ConversationID: id}
}

func (h *Handler) history(ctx context.Context, userRaw, convRaw string) (int, any) {
	userID, convID, ok := parseIDs(userRaw, convRaw)
	if !ok {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)}
	}
	entries, err := h.uc.History(ctx, userID, convID)
	if err != nil {
		return h.errorResult(ctx, err)
	}
	msgs := make([]historyMessage, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, historyMessage{Role: string(e.Role), Content: e.Content, CreatedAt: e.CreatedAt})
	}
	return http.StatusOK, historyResponse{ConversationID: convID, Messages: msgs}
}

func (h *Handler) errorResult(ctx context.Context, err error) (int, errorResponse) {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		logger := applog.WithContext(ctx, h.logger)
		logger.Error().Err(err).Msg("unexpected use case error")
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	status := http.StatusInternalServerError
	switch uerr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorNotFound:
		status = http.StatusNotFound
	case usecase.ErrorConversationBusy:
		status = http.StatusConflict
	case usecase.ErrorRateLimited:
		status = http.StatusTooManyRequests
	case usecase.ErrorClassificationFailure, usecase.ErrorStrategyFailure:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		logger := applog.WithContext(ctx, h.logger)
		logger.Error().Err(err).Str("reason", uerr.Reason).Msg("request failed")
	}
	return status, errorResponse{Error: string(uerr.Code), Retryable: uerr.Retryable()}
}

func parseIDs(userRaw, convRaw string) (int64, int64, bool) {
	userID, err := strconv.ParseInt(strings.TrimSpace(userRaw), 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, false
	}
	convID, err := strconv.ParseInt(strings.TrimSpace(convRaw), 10, 64)
	if err != nil || convID <= 0 {
		return 0, 0, false
	}
	return userID, convID, true
}

// principalID reads the user id a custom authorizer placed on the request.
func principalID(authorizer map[string]interface{}) string {
	switch v := authorizer["principalId"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// conversationFromPath extracts the id from /chat/conversations/{id}[/messages].
func conversationFromPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "chat" || parts[1] != "conversations" {
		return "", false
	}
	return parts[2], true
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
