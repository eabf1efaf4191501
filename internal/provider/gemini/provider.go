package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"structured-router/internal/config"
	"structured-router/internal/models"
	"structured-router/internal/provider"
	"structured-router/internal/translator"
)

const (
	roleUser  = "user"
	roleModel = "model"

	responseMIMEType = "application/json"
)

// Finish reasons that mean the candidate was withheld on policy grounds.
var refusalFinishReasons = map[string]struct{}{
	"SAFETY":             {},
	"RECITATION":         {},
	"BLOCKLIST":          {},
	"PROHIBITED_CONTENT": {},
	"SPII":               {},
}

// Provider implements structured chat against the Gemini API through the
// genai SDK, constraining output with a response schema.
type Provider struct {
	name   string
	client *genai.Client
	model  models.Model
}

// New creates a Gemini provider bound to one model.
func New(ctx context.Context, name string, cfg config.ProviderConfig, model config.ModelConfig, httpClient *http.Client) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key must not be empty")
	}
	if strings.TrimSpace(model.ID) == "" {
		return nil, errors.New("model id must not be empty")
	}
	if model.APIStyle != "" && model.APIStyle != config.APIStyleGemini {
		return nil, fmt.Errorf("gemini provider %q received model %q with unsupported api_style %q", name, model.ID, model.APIStyle)
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Headers: headers,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Provider{
		name:   name,
		client: client,
		model: models.Model{
			ID:       model.ID,
			Provider: name,
			APIStyle: config.APIStyleGemini,
		},
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Model() models.Model {
	return p.model
}

// ChatWithStructuredOutput issues one generateContent call with a JSON
// response schema. RawResponse is the SDK response value.
func (p *Provider) ChatWithStructuredOutput(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	responseSchema, err := translator.ToGemini(req.Schema)
	if err != nil {
		return nil, err
	}
	if req.SchemaDescription != "" && responseSchema.Description == "" {
		responseSchema.Description = req.SchemaDescription
	}

	system, contents, err := toContents(messages)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model.ID, contents, &genai.GenerateContentConfig{
		SystemInstruction: system,
		ResponseMIMEType:  responseMIMEType,
		ResponseSchema:    responseSchema,
	})
	if err != nil {
		return nil, p.requestFailed(ctx, err)
	}

	text, err := p.responseText(resp)
	if err != nil {
		return nil, err
	}

	data, err := provider.DecodeJSON(p.name, text)
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
		RawResponse: resp,
	}, nil
}

// requestFailed keeps the upstream status of SDK API errors. A done context
// still classifies as an aborted call.
func (p *Provider) requestFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return provider.RequestFailed(ctx, p.name, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &provider.TransportError{Provider: p.name, StatusCode: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &provider.TransportError{Provider: p.name, StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message, Err: err}
	}

	return provider.RequestFailed(ctx, p.name, err)
}

// toContents splits system messages into the system instruction and maps
// the remaining turns onto Gemini roles, preserving order.
func toContents(messages []models.Message) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
		case models.RoleUser:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		case models.RoleAssistant:
			contents = append(contents, &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			return nil, nil, fmt.Errorf("messages[%d]: unsupported role %q", i, msg.Role)
		}
	}

	return system, contents, nil
}

func (p *Provider) responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", provider.EmptyResponse(p.name, "no response")
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && string(fb.BlockReason) != "BLOCKED_REASON_UNSPECIFIED" {
		reason := fb.BlockReasonMessage
		if reason == "" {
			reason = string(fb.BlockReason)
		}
		return "", &provider.ContentRefusedError{Provider: p.name, Reason: reason}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", provider.EmptyResponse(p.name, "response did not include candidates")
	}

	candidate := resp.Candidates[0]
	if _, refused := refusalFinishReasons[string(candidate.FinishReason)]; refused {
		reason := candidate.FinishMessage
		if reason == "" {
			reason = string(candidate.FinishReason)
		}
		return "", &provider.ContentRefusedError{Provider: p.name, Reason: reason}
	}

	if candidate.Content == nil {
		return "", provider.EmptyResponse(p.name, "candidate has no content")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", provider.EmptyResponse(p.name, "candidate text is empty")
	}
	return text, nil
}
