// Package handler adapts WhatsApp Cloud API webhook calls arriving through
// API Gateway to the message dispatcher.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const correlationHeader = "X-Correlation-Id"

// Dispatcher handles one inbound message. It must be safe for concurrent use
// across senders.
type Dispatcher interface {
	Handle(ctx context.Context, channelAddress, text string)
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type ackResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
}

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []webhookMessage `json:"messages"`
}

type webhookMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

type Handler struct {
	dispatcher  Dispatcher
	params      ParamGetter
	verifyParam string
	logger      *slog.Logger
}

func NewHandler(d Dispatcher, params ParamGetter, paramPrefix string) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if params == nil {
		return nil, errors.New("handler: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("handler: parameter prefix must not be empty")
	}
	return &Handler{
		dispatcher:  d,
		params:      params,
		verifyParam: paramPrefix + "/whatsapp-verify-token",
		logger:      slog.Default(),
	}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	logger := h.logger.With("correlationId", corrID)

	switch req.HTTPMethod {
	case http.MethodGet:
		return h.verify(ctx, logger, corrID, req.QueryStringParameters), nil
	case http.MethodPost:
		return h.deliver(ctx, logger, corrID, req), nil
	default:
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}
}

// verify answers the subscription handshake the Cloud API performs when the
// webhook is registered.
func (h *Handler) verify(ctx context.Context, logger *slog.Logger, corrID string, q map[string]string) events.APIGatewayProxyResponse {
	if q["hub.mode"] != "subscribe" {
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: "INVALID_INPUT"})
	}
	want, err := h.params.GetParameter(ctx, h.verifyParam)
	if err != nil {
		logger.Error("failed to load verify token", "err", err)
		return jsonResponse(http.StatusInternalServerError, corrID, errorResponse{Error: "INTERNAL_ERROR"})
	}
	if want == "" || q["hub.verify_token"] != want {
		logger.Warn("webhook verification rejected")
		return jsonResponse(http.StatusForbidden, corrID, errorResponse{Error: "FORBIDDEN"})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":    "text/plain",
			correlationHeader: corrID,
		},
		Body: q["hub.challenge"],
	}
}

// deliver dispatches every text message. Messages of one sender keep their
// payload order; different senders are dispatched concurrently. Accepted
// payloads always get 200 so the provider does not redeliver them.
func (h *Handler) deliver(ctx context.Context, logger *slog.Logger, corrID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: "INVALID_INPUT"})
		}
		body = string(raw)
	}

	var payload webhookPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		logger.Warn("invalid webhook body", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: "INVALID_INPUT"})
	}

	var senders []string
	bySender := make(map[string][]string)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					logger.Info("skipping non-text message", "type", msg.Type, "messageId", msg.ID)
					continue
				}
				if _, seen := bySender[msg.From]; !seen {
					senders = append(senders, msg.From)
				}
				bySender[msg.From] = append(bySender[msg.From], msg.Text.Body)
			}
		}
	}

	accepted := 0
	var g errgroup.Group
	for _, from := range senders {
		texts := bySender[from]
		accepted += len(texts)
		g.Go(func() error {
			for _, text := range texts {
				h.dispatcher.Handle(ctx, from, text)
			}
			return nil
		})
	}
	_ = g.Wait()
	return jsonResponse(http.StatusOK, corrID, ackResponse{Status: "ok", Accepted: accepted})
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
