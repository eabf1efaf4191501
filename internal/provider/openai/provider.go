package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"structured-router/internal/config"
	"structured-router/internal/models"
	"structured-router/internal/provider"
	"structured-router/internal/translator"
)

const (
	contentTypeJSON  = "application/json"
	userAgent        = "structured-router/0.1"
	maxResponseBytes = 16 << 20
)

// Provider implements structured chat against an OpenAI-compatible
// chat/completions endpoint using strict json_schema response formats.
type Provider struct {
	name    string
	apiKey  string
	headers map[string]string
	client  *http.Client
	model   models.Model
	chatURL string
}

// New creates a new OpenAI provider bound to one model.
func New(name string, cfg config.ProviderConfig, model config.ModelConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if strings.TrimSpace(model.ID) == "" {
		return nil, errors.New("model id must not be empty")
	}
	if model.APIStyle != "" && model.APIStyle != config.APIStyleOpenAI {
		return nil, fmt.Errorf("openai provider %q received model %q with unsupported api_style %q", name, model.ID, model.APIStyle)
	}

	return &Provider{
		name:    name,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  client,
		model: models.Model{
			ID:       model.ID,
			Provider: name,
			APIStyle: config.APIStyleOpenAI,
		},
		chatURL: baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Model() models.Model {
	return p.model
}

// ChatWithStructuredOutput sends one chat/completions request constrained to
// the request schema and decodes the reply. RawResponse is the response
// body as json.RawMessage.
func (p *Provider) ChatWithStructuredOutput(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
	payload, err := p.buildPayload(messages, req)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.RequestFailed(ctx, p.name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, provider.RequestFailed(ctx, p.name, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, parseAPIError(p.name, httpResp.StatusCode, body)
	}

	var providerResp chatResponse
	if err := json.Unmarshal(body, &providerResp); err != nil {
		return nil, &provider.ResponseParseError{Provider: p.name, Raw: string(body), Err: fmt.Errorf("decode provider response: %w", err)}
	}

	data, err := providerResp.structuredData(p.name)
	if err != nil {
		return nil, err
	}

	slog.Debug("structured chat completed",
		"provider", p.name,
		"model", p.model.ID,
		"schema", req.SchemaName,
		"latency_ms", time.Since(started).Milliseconds(),
	)

	return &models.StructuredResponse{
		Data:        data,
		RawResponse: json.RawMessage(body),
	}, nil
}

func (p *Provider) newRequest(ctx context.Context, payload chatPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat responseFormat  `json:"response_format"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type jsonSchemaFormat struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      *translator.JSONSchema `json:"schema"`
	Strict      bool                   `json:"strict"`
}

func (p *Provider) buildPayload(messages []models.Message, req models.StructuredRequest) (chatPayload, error) {
	if err := req.Validate(); err != nil {
		return chatPayload{}, err
	}

	converted, err := translator.ToOpenAI(req.Schema)
	if err != nil {
		return chatPayload{}, err
	}

	out := make([]openAIMessage, 0, len(messages))
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return chatPayload{}, fmt.Errorf("messages[%d]: unsupported role %q", i, msg.Role)
		}
		out = append(out, openAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return chatPayload{
		Model:    p.model.ID,
		Messages: out,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:        req.SchemaName,
				Description: req.SchemaDescription,
				Schema:      converted,
				Strict:      true,
			},
		},
	}, nil
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) structuredData(name string) (any, error) {
	if len(r.Choices) == 0 {
		return nil, provider.EmptyResponse(name, "response did not include choices")
	}

	msg := r.Choices[0].Message
	if msg.Refusal != "" {
		return nil, &provider.ContentRefusedError{Provider: name, Reason: msg.Refusal}
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, provider.EmptyResponse(name, "message content is empty")
	}

	return provider.DecodeJSON(name, msg.Content)
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(name string, status int, body []byte) error {
	transportErr := &provider.TransportError{
		Provider:   name,
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		transportErr.Err = fmt.Errorf("openai error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
	}
	return transportErr
}
