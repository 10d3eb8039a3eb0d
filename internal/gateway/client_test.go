package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = Credential{Token: "tok", InstanceID: "inst-1"}

type recordedCall struct {
	Method      string
	Path        string
	ContentType string
	Params      map[string]string
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(call recordedCall, w http.ResponseWriter)
}

func (f *fakeGateway) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{Method: r.Method, Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Params: map[string]string{}}
		switch {
		case r.Method == http.MethodGet:
			for k := range r.URL.Query() {
				call.Params[k] = r.URL.Query().Get(k)
			}
		case strings.HasPrefix(call.ContentType, "application/x-www-form-urlencoded"):
			require.NoError(t, r.ParseForm())
			for k := range r.PostForm {
				call.Params[k] = r.PostForm.Get(k)
			}
		default:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &call.Params))
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
		f.respond(call, w)
	})
}

func (f *fakeGateway) Calls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func writeHTML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("<html><body>Cannot GET /send-media</body></html>"))
}

func newTestClient(t *testing.T, fake *fakeGateway) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	client, err := New(Config{BaseURL: server.URL + "/api/", HTTPClient: server.Client()})
	require.NoError(t, err)
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSendTextSuccess(t *testing.T) {
	fake := &fakeGateway{respond: func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"success":true}`) }}
	client := newTestClient(t, fake)

	err := client.SendText(context.Background(), testCred, "+7 (701) 123-45-67", "Здравствуйте")
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/api/send-text", calls[0].Path)
	assert.Equal(t, "77011234567@s.whatsapp.net", calls[0].Params["jid"])
	assert.Equal(t, "tok", calls[0].Params["token"])
	assert.Equal(t, "inst-1", calls[0].Params["instance_id"])
	assert.Equal(t, "Здравствуйте", calls[0].Params["msg"])
}

func TestSendTextFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(recordedCall, http.ResponseWriter)
		want    error
	}{
		{"success false", func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"success":false,"message":"instance offline"}`) }, ErrRejected},
		{"missing field", func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"status":"ok"}`) }, ErrMalformedResponse},
		{"garbage", func(_ recordedCall, w http.ResponseWriter) { _, _ = w.Write([]byte("ok")) }, ErrMalformedResponse},
		{"html", func(_ recordedCall, w http.ResponseWriter) { writeHTML(w) }, ErrHTMLResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, &fakeGateway{respond: tc.respond})
			err := client.SendText(context.Background(), testCred, "77011234567", "hi")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			var de *DeliveryError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "send-text", de.Op)
		})
	}
}

func TestSendTextNetworkErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	err = client.SendText(context.Background(), testCred, "77011234567", "hi")
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, StrategyQuery, de.Strategy)
}

func TestSendTextValidatesBeforeNetwork(t *testing.T) {
	fake := &fakeGateway{respond: func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"success":true}`) }}
	client := newTestClient(t, fake)

	err := client.SendText(context.Background(), Credential{Token: "tok"}, "77011234567", "hi")
	assert.ErrorIs(t, err, ErrConfigMissing)
	assert.True(t, IsConfigMissing(err))

	err = client.SendText(context.Background(), testCred, "12345", "hi")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	assert.Empty(t, fake.Calls())
}

func TestSendMediaFirstStrategyWins(t *testing.T) {
	fake := &fakeGateway{respond: func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"success":true}`) }}
	client := newTestClient(t, fake)

	err := client.SendMedia(context.Background(), testCred, "77011234567", MediaMessage{URL: "https://cdn.example.com/plan.pdf", Kind: MediaDocument})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/api/send-media", calls[0].Path)
	assert.Equal(t, "document", calls[0].Params["type"])
	assert.Equal(t, "https://cdn.example.com/plan.pdf", calls[0].Params["url"])
}

func TestSendMediaFallsThroughStrategies(t *testing.T) {
	fake := &fakeGateway{respond: func(call recordedCall, w http.ResponseWriter) {
		if call.Method == http.MethodPost && call.ContentType == "application/json" {
			writeJSON(w, `{"success":true}`)
			return
		}
		writeHTML(w)
	}}
	client := newTestClient(t, fake)

	err := client.SendMedia(context.Background(), testCred, "77011234567", MediaMessage{URL: "https://cdn.example.com/a.jpg", Kind: MediaImage})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "application/x-www-form-urlencoded", calls[1].ContentType)
	assert.Equal(t, "application/json", calls[2].ContentType)
	assert.Equal(t, "image", calls[2].Params["type"])
}

func TestSendMediaAllHTMLFallsBackToText(t *testing.T) {
	fake := &fakeGateway{respond: func(call recordedCall, w http.ResponseWriter) {
		if call.Path == "/api/send-text" {
			writeJSON(w, `{"success":true}`)
			return
		}
		writeHTML(w)
	}}
	client := newTestClient(t, fake)

	err := client.SendMedia(context.Background(), testCred, "77011234567", MediaMessage{URL: "https://cdn.example.com/v.ogg", Kind: MediaVoice})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "/api/send-text", calls[3].Path)
	assert.Equal(t, "🎵 https://cdn.example.com/v.ogg", calls[3].Params["msg"])
}

func TestSendMediaNonHTMLFailureDoesNotFallBack(t *testing.T) {
	fake := &fakeGateway{respond: func(call recordedCall, w http.ResponseWriter) {
		if call.Method == http.MethodGet {
			writeJSON(w, `{"success":false}`)
			return
		}
		writeHTML(w)
	}}
	client := newTestClient(t, fake)

	err := client.SendMedia(context.Background(), testCred, "77011234567", MediaMessage{URL: "https://cdn.example.com/a.jpg", Kind: MediaImage})
	require.Error(t, err)
	assert.Len(t, fake.Calls(), 3)
}

func TestSendMediaRejectsNonPublicHost(t *testing.T) {
	fake := &fakeGateway{respond: func(_ recordedCall, w http.ResponseWriter) { writeJSON(w, `{"success":true}`) }}
	client := newTestClient(t, fake)

	for _, u := range []string{
		"http://localhost:3000/a.jpg",
		"http://127.0.0.1/a.jpg",
		"http://10.0.0.5/a.jpg",
		"http://192.168.1.2/a.jpg",
		"http://[::1]/a.jpg",
		"ftp://cdn.example.com/a.jpg",
	} {
		err := client.SendMedia(context.Background(), testCred, "77011234567", MediaMessage{URL: u, Kind: MediaImage})
		assert.ErrorIs(t, err, ErrNonPublicMedia, u)
	}
	assert.Empty(t, fake.Calls())
}

func TestFallbackTextIncludesCaption(t *testing.T) {
	m := MediaMessage{URL: "https://x.example/p.pdf", Kind: MediaDocument, Caption: "Каталог"}
	assert.Equal(t, "Каталог\n📎 https://x.example/p.pdf", m.FallbackText())
	m = MediaMessage{URL: "https://x.example/p.png", Kind: MediaImage}
	assert.Equal(t, "🖼 https://x.example/p.png", m.FallbackText())
}

func TestNormalizePhone(t *testing.T) {
	digits, err := NormalizePhone("+7 701 123 45 67")
	require.NoError(t, err)
	assert.Equal(t, "77011234567", digits)

	_, err = NormalizePhone("call me")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	jid, err := JID("8-701-123-45-67")
	require.NoError(t, err)
	assert.Equal(t, "87011234567@s.whatsapp.net", jid)
}
