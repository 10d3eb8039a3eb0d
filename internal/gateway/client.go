// Package gateway delivers outbound WhatsApp messages through the HTTP gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
	defaultUserAgent = "leadflow-gateway/0.1"
)

const (
	opSendText  = "send-text"
	opSendMedia = "send-media"
)

// Delivery strategies tried by SendMedia, in order.
const (
	StrategyQuery = "get_query"
	StrategyForm  = "post_form"
	StrategyJSON  = "post_json"
)

var tracer = otel.Tracer("leadflow.internal.gateway")

// Credential identifies the tenant's gateway account and channel.
type Credential struct {
	Token      string
	InstanceID string
}

// Valid reports whether both parts are present.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.InstanceID) != ""
}

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client talks to the gateway's send-text and send-media endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

type sendResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// SendText delivers a single text message. It returns nil only when the
// gateway acknowledged the message with success=true.
func (c *Client) SendText(ctx context.Context, cred Credential, phone, body string) error {
	if !cred.Valid() {
		return &DeliveryError{Op: opSendText, Err: ErrConfigMissing}
	}
	jid, err := JID(phone)
	if err != nil {
		return &DeliveryError{Op: opSendText, Err: err}
	}
	if strings.TrimSpace(body) == "" {
		return &DeliveryError{Op: opSendText, Err: errors.New("body required")}
	}

	ctx, span := tracer.Start(ctx, "gateway.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.gateway.instance_id", cred.InstanceID))

	params := baseParams(cred, jid, body)
	err = c.attempt(ctx, opSendText, StrategyQuery, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("gateway text delivery failed", "instance_id", cred.InstanceID, "error", err)
		return err
	}
	return nil
}

// SendMedia delivers an attachment, trying each request encoding in turn. When
// every strategy gets an HTML page back the gateway does not support media, so
// the URL is sent as a labelled text message instead.
func (c *Client) SendMedia(ctx context.Context, cred Credential, phone string, media MediaMessage) error {
	if !cred.Valid() {
		return &DeliveryError{Op: opSendMedia, Err: ErrConfigMissing}
	}
	jid, err := JID(phone)
	if err != nil {
		return &DeliveryError{Op: opSendMedia, Err: err}
	}
	if err := media.Validate(); err != nil {
		return &DeliveryError{Op: opSendMedia, Err: err}
	}

	ctx, span := tracer.Start(ctx, "gateway.send_media")
	defer span.End()
	span.SetAttributes(
		attribute.String("leadflow.gateway.instance_id", cred.InstanceID),
		attribute.String("leadflow.gateway.media_type", string(media.Kind)),
	)

	params := baseParams(cred, jid, media.Caption)
	params.Set("url", media.URL)
	params.Set("type", string(media.Kind))

	allHTML := true
	var lastErr error
	for _, strategy := range []string{StrategyQuery, StrategyForm, StrategyJSON} {
		err := c.attempt(ctx, opSendMedia, strategy, params)
		if err == nil {
			span.SetAttributes(attribute.String("leadflow.gateway.strategy", strategy))
			return nil
		}
		c.logger.Debug("gateway media strategy failed", "strategy", strategy, "error", err)
		lastErr = err
		if !errors.Is(err, ErrHTMLResponse) {
			allHTML = false
		}
	}

	if !allHTML {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		c.logger.Warn("gateway media delivery failed", "instance_id", cred.InstanceID, "error", lastErr)
		return lastErr
	}

	c.logger.Info("gateway does not accept media, sending link as text", "instance_id", cred.InstanceID, "media_type", media.Kind)
	span.SetAttributes(attribute.Bool("leadflow.gateway.text_fallback", true))
	if err := c.attempt(ctx, opSendText, StrategyQuery, baseParams(cred, jid, media.FallbackText())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func baseParams(cred Credential, jid, msg string) url.Values {
	params := url.Values{}
	params.Set("token", cred.Token)
	params.Set("instance_id", cred.InstanceID)
	params.Set("jid", jid)
	params.Set("msg", msg)
	return params
}

func (c *Client) attempt(ctx context.Context, op, strategy string, params url.Values) error {
	req, err := c.buildRequest(ctx, op, strategy, params)
	if err != nil {
		return &DeliveryError{Op: op, Strategy: strategy, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Op: op, Strategy: strategy, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &DeliveryError{Op: op, Strategy: strategy, StatusCode: resp.StatusCode, Err: err}
	}
	if err := decodeSendResponse(resp.Header.Get("Content-Type"), raw); err != nil {
		return &DeliveryError{Op: op, Strategy: strategy, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, op, strategy string, params url.Values) (*http.Request, error) {
	endpoint := c.baseURL + "/" + op
	switch strategy {
	case StrategyQuery:
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	case StrategyForm:
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	case StrategyJSON:
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

func decodeSendResponse(contentType string, raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if strings.Contains(strings.ToLower(contentType), "text/html") || bytes.HasPrefix(trimmed, []byte("<")) {
		return ErrHTMLResponse
	}
	var resp sendResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Success == nil {
		return fmt.Errorf("%w: success field missing", ErrMalformedResponse)
	}
	if !*resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
		}
		return ErrRejected
	}
	return nil
}
