package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/domain"
	applog "restaurant-agent/internal/log"
	"restaurant-agent/internal/usecase"
)

type stubUseCase struct {
	out       usecase.TurnOutput
	err       error
	in        usecase.TurnInput
	createdID int64
	createErr error
	history   []domain.TranscriptEntry
	histErr   error
	lastCtx   context.Context
}

func (s *stubUseCase) Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error) {
	s.in = in
	s.lastCtx = ctx
	return s.out, s.err
}

func (s *stubUseCase) CreateConversation(_ context.Context, userID int64) (int64, error) {
	s.in.UserID = userID
	return s.createdID, s.createErr
}

func (s *stubUseCase) History(_ context.Context, userID, conversationID int64) ([]domain.TranscriptEntry, error) {
	s.in = usecase.TurnInput{UserID: userID, ConversationID: conversationID}
	return s.history, s.histErr
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:  "req-1",
			Authorizer: map[string]interface{}{"principalId": "7"},
		},
	}
}

func turnEvent(body string) events.APIGatewayProxyRequest {
	return makeEvent(http.MethodPost, "/chat/conversations/42", body)
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc TurnUseCase) *Handler {
	t.Helper()
	h, err := NewHandler(uc, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, zerolog.Nop())
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{Response: "We close at 23:00.", Intent: domain.IntentInfo}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), turnEvent(`{"text":"When do you close?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.TurnInput{UserID: 7, ConversationID: 42, Text: "When do you close?"}, uc.in)

	out := parseBody[turnResponse](t, resp.Body)
	require.Equal(t, "We close at 23:00.", out.Response)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, resp.Headers["X-Correlation-Id"], applog.CorrelationIDFromContext(uc.lastCtx))
	require.Equal(t, "req-1", applog.RequestIDFromContext(uc.lastCtx))
}

func TestHandle_AcceptsMessageFieldAndPathParameters(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{Response: "ok"}}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodPost, "/chat/conversations/42", `{"message":"pasta"}`)
	event.PathParameters = map[string]string{"conversationId": "42"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pasta", uc.in.Text)
}

func TestHandle_InvalidRequests(t *testing.T) {
	cases := []struct {
		name  string
		event events.APIGatewayProxyRequest
	}{
		{"bad json", turnEvent(`not-json`)},
		{"bad conversation id", makeEvent(http.MethodPost, "/chat/conversations/abc", `{"text":"hi"}`)},
		{"missing principal", func() events.APIGatewayProxyRequest {
			e := turnEvent(`{"text":"hi"}`)
			e.RequestContext.Authorizer = nil
			return e
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), tc.event)
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
			require.Zero(t, uc.in.ConversationID)
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_text"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "conversation_not_found"}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "busy", err: &usecase.Error{Code: usecase.ErrorConversationBusy, Reason: "lock_wait_aborted"}, status: http.StatusConflict, code: string(usecase.ErrorConversationBusy), retryable: true},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "strategy_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited), retryable: true},
		{name: "classification", err: &usecase.Error{Code: usecase.ErrorClassificationFailure, Reason: "classifier_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorClassificationFailure), retryable: true},
		{name: "strategy", err: &usecase.Error{Code: usecase.ErrorStrategyFailure, Reason: "strategy_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorStrategyFailure), retryable: true},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "lock_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), turnEvent(`{"text":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.retryable, out.Retryable)
			require.Empty(t, out.Response)
		})
	}
}

func TestHandle_PersistenceFailureStillCarriesResponse(t *testing.T) {
	uc := &stubUseCase{
		out: usecase.TurnOutput{Response: "Your table is noted."},
		err: &usecase.Error{Code: usecase.ErrorPersistenceFailure, Reason: "state_write_error"},
	}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), turnEvent(`{"text":"book a table"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorPersistenceFailure), out.Error)
	require.Equal(t, "Your table is noted.", out.Response)
	require.False(t, out.Retryable)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{Response: "ok"}}
	h := newTestHandler(t, uc)

	event := turnEvent(`{"text":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_CreateConversation(t *testing.T) {
	uc := &stubUseCase{createdID: 101}
	h := newTestHandler(t, uc)

	event := makeEvent(http.MethodPost, "/chat/conversations", "")
	event.RequestContext.Authorizer = map[string]interface{}{"principalId": float64(7)}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(7), uc.in.UserID)
	require.Equal(t, int64(101), parseBody[createResponse](t, resp.Body).ConversationID)
}

func TestHandle_History(t *testing.T) {
	uc := &stubUseCase{history: []domain.TranscriptEntry{
		{Role: domain.RoleUser, Content: "hi", CreatedAt: "2026-03-01T18:30:00Z"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/chat/conversations/42/messages", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[historyResponse](t, resp.Body)
	require.Equal(t, int64(42), out.ConversationID)
	require.Equal(t, []historyMessage{
		{Role: "user", Content: "hi", CreatedAt: "2026-03-01T18:30:00Z"},
		{Role: "assistant", Content: "hello"},
	}, out.Messages)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{})

	for _, event := range []events.APIGatewayProxyRequest{
		makeEvent(http.MethodGet, "/chat/conversations/42", ""),
		makeEvent(http.MethodPost, "/ask", `{"text":"hi"}`),
		makeEvent(http.MethodDelete, "/chat/conversations/42", ""),
	} {
		resp, err := h.Handle(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, event.HTTPMethod+" "+event.Path)
	}
}
