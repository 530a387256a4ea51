package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/usecase"
)

func serve(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Turn(t *testing.T) {
	uc := &stubUseCase{out: usecase.TurnOutput{Response: "Try the Margherita."}}
	r := newTestHandler(t, uc).Router(RouterConfig{})

	rec := serve(t, r, http.MethodPost, "/chat/conversations/42", `{"text":"pizza"}`,
		map[string]string{headerUserID: "7", headerCorrelationID: "corr-9"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "corr-9", rec.Header().Get(headerCorrelationID))
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, usecase.TurnInput{UserID: 7, ConversationID: 42, Text: "pizza"}, uc.in)
	require.Equal(t, "Try the Margherita.", parseBody[turnResponse](t, rec.Body.String()).Response)
}

func TestRouter_MissingUserIsInvalid(t *testing.T) {
	r := newTestHandler(t, &stubUseCase{}).Router(RouterConfig{})

	rec := serve(t, r, http.MethodPost, "/chat/conversations/42", `{"text":"pizza"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, rec.Header().Get(headerCorrelationID))
}

func TestRouter_CreateAndHistory(t *testing.T) {
	uc := &stubUseCase{createdID: 5}
	r := newTestHandler(t, uc).Router(RouterConfig{})

	rec := serve(t, r, http.MethodPost, "/chat/conversations", "", map[string]string{headerUserID: "7"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(5), parseBody[createResponse](t, rec.Body.String()).ConversationID)

	rec = serve(t, r, http.MethodGet, "/chat/conversations/5/messages", "", map[string]string{headerUserID: "7"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.TurnInput{UserID: 7, ConversationID: 5}, uc.in)
}

func TestRouter_RateLimit(t *testing.T) {
	r := newTestHandler(t, &stubUseCase{out: usecase.TurnOutput{Response: "ok"}}).Router(RouterConfig{RateLimitPerMinute: 2})

	headers := map[string]string{headerUserID: "7"}
	for i := 0; i < 2; i++ {
		rec := serve(t, r, http.MethodPost, "/chat/conversations/42", `{"text":"hi"}`, headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(t, r, http.MethodPost, "/chat/conversations/42", `{"text":"hi"}`, headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	out := parseBody[errorResponse](t, rec.Body.String())
	require.Equal(t, string(usecase.ErrorRateLimited), out.Error)
	require.True(t, out.Retryable)

	// Health checks are not rate limited.
	rec = serve(t, r, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestHandler(t, &stubUseCase{}).Router(RouterConfig{})

	rec := serve(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}
