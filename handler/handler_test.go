package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"
)

type inbound struct {
	from string
	text string
}

type stubDispatcher struct {
	mu  sync.Mutex
	got []inbound
}

func (s *stubDispatcher) Handle(_ context.Context, from, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, inbound{from: from, text: text})
}

func (s *stubDispatcher) from(addr string) []string {
	var out []string
	for _, in := range s.got {
		if in.from == addr {
			out = append(out, in.text)
		}
	}
	return out
}

// waitingDispatcher blocks the slow sender's first message until a message
// from any other sender has been handled, or gives up after a second.
type waitingDispatcher struct {
	stubDispatcher
	slow     string
	other    chan struct{}
	once     sync.Once
	overlaps bool
}

func (w *waitingDispatcher) Handle(ctx context.Context, from, text string) {
	if from == w.slow {
		select {
		case <-w.other:
			w.overlaps = true
		case <-time.After(time.Second):
		}
	} else {
		w.once.Do(func() { close(w.other) })
	}
	w.stubDispatcher.Handle(ctx, from, text)
}

type stubParams struct {
	val  string
	err  error
	name string
}

func (s *stubParams) GetParameter(_ context.Context, name string) (string, error) {
	s.name = name
	return s.val, s.err
}

func newTestHandler(t *testing.T, d Dispatcher, p ParamGetter) *Handler {
	t.Helper()
	h, err := NewHandler(d, p, "/pantry/")
	require.NoError(t, err)
	return h
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func verifyEvent(mode, token, challenge string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/webhook",
		QueryStringParameters: map[string]string{
			"hub.mode":         mode,
			"hub.verify_token": token,
			"hub.challenge":    challenge,
		},
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

const deliveryBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "messages": [
          {"from": "34600111222", "id": "wamid.1", "type": "text", "text": {"body": "Tengo leche que caduca el viernes"}},
          {"from": "34600111222", "id": "wamid.2", "type": "image", "image": {"id": "img"}},
          {"from": "34600333444", "id": "wamid.3", "type": "text", "text": {"body": "hola"}},
          {"from": "34600111222", "id": "wamid.4", "type": "text", "text": {"body": "2"}}
        ]
      }
    }]
  }]
}`

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubParams{}, "/p")
	require.Error(t, err)
	_, err = NewHandler(&stubDispatcher{}, nil, "/p")
	require.Error(t, err)
	_, err = NewHandler(&stubDispatcher{}, &stubParams{}, " ")
	require.Error(t, err)
}

func TestHandle_DispatchesEachSendersMessagesInOrder(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestHandler(t, d, &stubParams{})

	resp, err := h.Handle(context.Background(), makeEvent(deliveryBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.got, 3)
	require.Equal(t, []string{"Tengo leche que caduca el viernes", "2"}, d.from("34600111222"))
	require.Equal(t, []string{"hola"}, d.from("34600333444"))

	out := parseBody[ackResponse](t, resp.Body)
	require.Equal(t, 3, out.Accepted)
	require.NotEmpty(t, resp.Headers[correlationHeader])
}

func TestHandle_SlowSenderDoesNotHoldOthers(t *testing.T) {
	d := &waitingDispatcher{slow: "34600111222", other: make(chan struct{})}
	h := newTestHandler(t, d, &stubParams{})

	resp, err := h.Handle(context.Background(), makeEvent(deliveryBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, d.overlaps)
	require.Equal(t, []string{"Tengo leche que caduca el viernes", "2"}, d.from("34600111222"))
}

func TestHandle_StatusOnlyDeliveryIsAcknowledged(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestHandler(t, d, &stubParams{})

	resp, err := h.Handle(context.Background(), makeEvent(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"read"}]}}]}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, d.got)
}

func TestHandle_Base64Body(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestHandler(t, d, &stubParams{})

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(deliveryBody)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.got, 3)
}

func TestHandle_InvalidBody(t *testing.T) {
	d := &stubDispatcher{}
	h := newTestHandler(t, d, &stubParams{})

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_INPUT", parseBody[errorResponse](t, resp.Body).Error)
	require.Empty(t, d.got)

	event := makeEvent("%%%")
	event.IsBase64Encoded = true
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_Verify(t *testing.T) {
	cases := []struct {
		name   string
		params *stubParams
		event  events.APIGatewayProxyRequest
		status int
		body   string
	}{
		{name: "match", params: &stubParams{val: "s3cret"}, event: verifyEvent("subscribe", "s3cret", "12345"), status: http.StatusOK, body: "12345"},
		{name: "mismatch", params: &stubParams{val: "s3cret"}, event: verifyEvent("subscribe", "nope", "12345"), status: http.StatusForbidden},
		{name: "empty configured token", params: &stubParams{val: ""}, event: verifyEvent("subscribe", "", "12345"), status: http.StatusForbidden},
		{name: "wrong mode", params: &stubParams{val: "s3cret"}, event: verifyEvent("unsubscribe", "s3cret", "12345"), status: http.StatusBadRequest},
		{name: "ssm error", params: &stubParams{err: errors.New("ssm down")}, event: verifyEvent("subscribe", "s3cret", "12345"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubDispatcher{}, tc.params)
			resp, err := h.Handle(context.Background(), tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				require.Equal(t, tc.body, resp.Body)
			}
		})
	}
}

func TestHandle_VerifyReadsPrefixedParameter(t *testing.T) {
	p := &stubParams{val: "s3cret"}
	h := newTestHandler(t, &stubDispatcher{}, p)
	_, err := h.Handle(context.Background(), verifyEvent("subscribe", "s3cret", "1"))
	require.NoError(t, err)
	require.Equal(t, "/pantry/whatsapp-verify-token", p.name)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{}, &stubParams{})
	event := makeEvent("")
	event.HTTPMethod = http.MethodDelete
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{}, &stubParams{})

	event := makeEvent(deliveryBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers[correlationHeader])
}
