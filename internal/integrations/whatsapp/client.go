// Package whatsapp sends text messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxTextLength is the Cloud API limit for a text message body.
const maxTextLength = 4096

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type tokenPayload struct {
	Token string `json:"token"`
}

// HTTPStatusError captures non-2xx Cloud API responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts messages on behalf of one business phone number.
type Client struct {
	baseURL       string
	phoneNumberID string
	httpClient    *http.Client
	getter        Getter
	tokenParam    string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient builds a sender. The access token is read through getter from
// paramPrefix+"/whatsapp-token" on each send; the getter caches.
func NewClient(getter Getter, paramPrefix, phoneNumberID string, opts ...Option) (*Client, error) {
	if getter == nil {
		return nil, errors.New("whatsapp: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("whatsapp: parameter prefix must not be empty")
	}
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return nil, errors.New("whatsapp: phone number id must not be empty")
	}
	c := &Client{
		baseURL:       "https://graph.facebook.com/v21.0",
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		getter:        getter,
		tokenParam:    paramPrefix + "/whatsapp-token",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send delivers text to the channel address (an E.164 number without '+').
// Bodies over the API limit are split on line boundaries where possible.
func (c *Client) Send(ctx context.Context, channelAddress, text string) error {
	to := strings.TrimPrefix(strings.TrimSpace(channelAddress), "+")
	if to == "" {
		return errors.New("whatsapp: recipient is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	for _, part := range split(text, maxTextLength) {
		if err := c.post(ctx, token, to, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, token, to, body string) error {
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal request: %w", err)
	}

	url := c.baseURL + "/" + c.phoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	raw, err := c.getter.GetParameter(ctx, c.tokenParam)
	if err != nil {
		return "", fmt.Errorf("whatsapp: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("whatsapp: unmarshal token: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("whatsapp: access token is empty")
	}
	return tp.Token, nil
}

// split cuts s into chunks of at most limit runes, preferring newlines.
func split(s string, limit int) []string {
	r := []rune(s)
	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(r[:cut]), "\n"))
		r = r[cut:]
	}
	return append(parts, string(r))
}
