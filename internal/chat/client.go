package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"deskmate/internal/types"
)

const defaultTimeout = 30 * time.Second

// Client talks to an OpenAI-compatible chat completion endpoint. The
// response body is decoded as loose JSON and handed to the Normalizer,
// because non-OpenAI dialects put replies and directives in shapes the
// typed SDK response would drop.
//
// Client never returns a transport error to its caller: failures become a
// StructuredResponse with status error and a human-readable message.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	norm       *Normalizer
	log        *zap.Logger
}

// ClientConfig carries the settings a Client is built from. Empty URL
// means offline mode: Send echoes a canned placeholder instead of calling
// out.
type ClientConfig struct {
	APIURL string
	APIKey string
	Model  string
}

func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		norm:       NewNormalizer(log),
		log:        log.Named("chat.client"),
	}
	c.UpdateConfig(cfg)
	return c
}

// UpdateConfig applies new endpoint settings, normalizing the URL the way
// users actually type it: bare hosts get https, known provider hosts get
// their completion path appended.
func (c *Client) UpdateConfig(cfg ClientConfig) {
	c.apiKey = cfg.APIKey
	c.model = cfg.Model
	c.apiURL = normalizeURL(cfg.APIURL)

	if c.apiURL != "" && strings.Contains(c.apiURL, "deepseek.com") && !strings.HasPrefix(c.model, "deepseek") {
		c.log.Warn("deepseek endpoint requires a deepseek model, overriding",
			zap.String("requested", c.model))
		c.model = "deepseek-chat"
	}
}

// normalizeURL fills in the parts of an endpoint URL people leave off.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Host)
	// Only fill in a missing path, and only for hosts whose completion
	// path is known. Custom endpoints are posted to exactly as typed.
	if u.Path == "" || u.Path == "/" {
		switch {
		case strings.Contains(host, "deepseek.com"):
			u.Path = "/chat/completions"
		case strings.Contains(host, "openai.com"):
			u.Path = "/v1/chat/completions"
		}
	}
	return u.String()
}

// Send posts the conversation and returns the normalized response. The
// history slice already includes the latest user turn; systemPrompt is
// prepended when non-empty.
func (c *Client) Send(ctx context.Context, systemPrompt string, history []types.ConversationTurn) types.StructuredResponse {
	if c.apiURL == "" {
		return types.StructuredResponse{
			Text:   "(offline: no endpoint configured)",
			Status: types.StatusOffline,
		}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	reqID := uuid.NewString()
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	reqBody := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return c.errorResponse(fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return c.errorResponse(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug("sending chat request",
		zap.String("request_id", reqID),
		zap.String("model", c.model),
		zap.Int("turns", len(messages)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("chat request failed",
			zap.String("request_id", reqID),
			zap.Error(err))
		return c.errorResponse(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.errorResponse(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail := errorDetail(body)
		c.log.Warn("chat endpoint rejected request",
			zap.String("request_id", reqID),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return c.errorResponse(fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, detail))
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		// Non-JSON body, treat it as the reply itself.
		raw = string(body)
	}

	result := c.norm.Normalize(raw)
	c.log.Debug("chat request complete",
		zap.String("request_id", reqID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("directives", len(result.Directives)))
	return result
}

func (c *Client) errorResponse(msg string) types.StructuredResponse {
	return types.StructuredResponse{
		Text:   "Sorry, something went wrong talking to the backend. " + msg,
		Status: types.StatusError,
		Err:    msg,
	}
}

// errorDetail digs a human-readable message out of an error body.
// Providers disagree on where it lives.
func errorDetail(body []byte) string {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return strings.TrimSpace(string(body))
	}
	if e, ok := m["error"].(map[string]interface{}); ok {
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := types.PayloadString(m, "message", "detail"); ok {
		return msg
	}
	return strings.TrimSpace(string(body))
}
