package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
)

type inboundCall struct {
	tenantID string
	leadID   string
	text     string
}

type fakeInbound struct {
	calls []inboundCall
	err   error
}

func (f *fakeInbound) HandleInbound(ctx context.Context, tenantID, leadID, text string) (conversation.Result, error) {
	f.calls = append(f.calls, inboundCall{tenantID, leadID, text})
	if f.err != nil {
		return conversation.Result{}, f.err
	}
	return conversation.Result{Handled: true, Outcome: conversation.OutcomeReplied}, nil
}

func newWebhookRequest(provider, tenantID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider+"/"+tenantID, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	rctx.URLParams.Add("tenantID", tenantID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestHandlerDispatchesRecognisedPayload(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	inbound := &fakeInbound{}
	h := NewHandler(Config{Leads: repo, Inbound: inbound, Processed: NewMemoryProcessed()})

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest("whatsapp", "t1", cloudPayload))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeResponse(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, StrategyCloudAPI, body["strategy"])
	reply, ok := body["reply"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "replied", reply["outcome"])

	require.Len(t, inbound.calls, 1)
	assert.Equal(t, "t1", inbound.calls[0].tenantID)
	assert.Equal(t, "Сколько стоит дом?", inbound.calls[0].text)

	lead, err := repo.FindOrCreateByPhone(context.Background(), "t1", "77011234567", "")
	require.NoError(t, err)
	assert.Equal(t, inbound.calls[0].leadID, lead.ID)
	assert.Equal(t, "Айгуль", lead.Name)
}

func TestHandlerAcknowledgesUnknownPayload(t *testing.T) {
	inbound := &fakeInbound{}
	reg := prometheus.NewRegistry()
	h := NewHandler(Config{Leads: leads.NewInMemoryRepository(), Inbound: inbound, Metrics: metrics.NewLeadMetrics(reg)})

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest("whatsapp", "t1", `{"status":"read"}`))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeResponse(t, w)
	assert.Equal(t, true, body["received"])
	assert.Nil(t, body["reply"])
	assert.Contains(t, body["debug"], "no text and phone")
	assert.Empty(t, inbound.calls)
}

func TestHandlerSkipsDuplicateMessage(t *testing.T) {
	inbound := &fakeInbound{}
	h := NewHandler(Config{Leads: leads.NewInMemoryRepository(), Inbound: inbound, Processed: NewMemoryProcessed()})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.Handle(w, newWebhookRequest("whatsapp", "t1", cloudPayload))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Len(t, inbound.calls, 1)
}

func TestHandlerFailureDoesNotMarkProcessed(t *testing.T) {
	inbound := &fakeInbound{err: errors.New("db down")}
	processed := NewMemoryProcessed()
	h := NewHandler(Config{Leads: leads.NewInMemoryRepository(), Inbound: inbound, Processed: processed})

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest("whatsapp", "t1", cloudPayload))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	seen, err := processed.AlreadyProcessed(context.Background(), "whatsapp", "wamid.2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHandlerVerifiesSignature(t *testing.T) {
	inbound := &fakeInbound{}
	h := NewHandler(Config{Leads: leads.NewInMemoryRepository(), Inbound: inbound, Secret: "s3cret"})
	payload := `{"message":"привет","phone":"77011234567"}`

	w := httptest.NewRecorder()
	h.Handle(w, newWebhookRequest("whatsapp", "t1", payload))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(payload))
	req := newWebhookRequest("whatsapp", "t1", payload)
	req.Header.Set(signatureHeader, "sha256="+hex.EncodeToString(mac.Sum(nil)))

	w = httptest.NewRecorder()
	h.Handle(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, inbound.calls, 1)
}
