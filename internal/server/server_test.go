package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"structured-router/internal/config"
	"structured-router/internal/models"
	"structured-router/internal/provider"
	"structured-router/internal/router"
	"structured-router/internal/translator"
)

const personSchema = `{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}},"required":["name","age"],"additionalProperties":false}`

type fakeProvider struct {
	model models.Model
	chat  func(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error)
}

func (f *fakeProvider) Name() string        { return f.model.Provider }
func (f *fakeProvider) Model() models.Model { return f.model }

func (f *fakeProvider) ChatWithStructuredOutput(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
	return f.chat(ctx, messages, req)
}

func testConfig(timeout time.Duration) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: timeout},
		Log:    config.LogConfig{Level: "info", Format: "text"},
		Providers: config.ProvidersConfig{
			Gemini: &config.ProviderConfig{APIKey: "k", Models: []config.ModelConfig{{ID: "m1"}}},
		},
	}
}

func newTestServer(t *testing.T, timeout time.Duration, chat func(context.Context, []models.Message, models.StructuredRequest) (*models.StructuredResponse, error)) *Server {
	t.Helper()

	registry := provider.NewRegistry()
	fake := &fakeProvider{model: models.Model{ID: "m1", Provider: "openai", APIStyle: "openai"}, chat: chat}
	if err := registry.Register(fake, map[string]string{"fast": "m1"}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	rt, err := router.New(registry)
	if err != nil {
		t.Fatalf("router.New error: %v", err)
	}
	srv, err := New(testConfig(timeout), rt)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.app.ServeHTTP(rec, req)
	return rec
}

func structuredBody(model, schemaDoc string, includeRaw bool) string {
	body, _ := json.Marshal(map[string]any{
		"model":       model,
		"schema_name": "person",
		"messages":    []any{map[string]string{"role": "user", "content": "Bob is 42"}},
		"schema":      json.RawMessage(schemaDoc),
		"include_raw": includeRaw,
	})
	return string(body)
}

func succeed(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
	return &models.StructuredResponse{
		Data:        map[string]any{"name": "Bob", "age": float64(42)},
		RawResponse: json.RawMessage(`{"id":"upstream-1"}`),
	}, nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(testConfig(time.Second), nil); err == nil {
		t.Error("expected error for nil router")
	}
	rt, _ := router.New(provider.NewRegistry())
	if _, err := New(config.Config{}, rt); err == nil {
		t.Error("expected error for invalid config")
	}

	noPort := testConfig(time.Second)
	noPort.Server.Port = 0
	_, err := New(noPort, rt)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("error = %v, want missing server.port", err)
	}
}

func TestHealthAndModels(t *testing.T) {
	srv := newTestServer(t, time.Second, succeed)

	rec := do(srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models status = %d", rec.Code)
	}
	var list modelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "m1" {
		t.Errorf("models = %+v", list)
	}
}

func TestStructured(t *testing.T) {
	var received models.StructuredRequest
	srv := newTestServer(t, time.Second, func(ctx context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
		received = req
		if len(messages) != 1 || messages[0].Role != models.RoleUser {
			t.Errorf("messages = %+v", messages)
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Error("request context should carry a deadline")
		}
		return succeed(ctx, messages, req)
	})

	rec := do(srv, http.MethodPost, "/v1/structured", structuredBody("fast", personSchema, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var out struct {
		ID          string          `json:"id"`
		Model       string          `json:"model"`
		Provider    string          `json:"provider"`
		Data        map[string]any  `json:"data"`
		RawResponse json.RawMessage `json:"raw_response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := uuid.Parse(out.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", out.ID, err)
	}
	if out.Model != "m1" || out.Provider != "openai" {
		t.Errorf("model = %q provider = %q", out.Model, out.Provider)
	}
	if out.Data["name"] != "Bob" || out.Data["age"] != float64(42) {
		t.Errorf("data = %+v", out.Data)
	}
	if string(out.RawResponse) != `{"id":"upstream-1"}` {
		t.Errorf("raw_response = %s", out.RawResponse)
	}

	if received.SchemaName != "person" || received.Schema == nil {
		t.Errorf("received request = %+v", received)
	}

	rec = do(srv, http.MethodPost, "/v1/structured", structuredBody("m1", personSchema, false))
	if strings.Contains(rec.Body.String(), "raw_response") {
		t.Errorf("raw_response should be omitted: %s", rec.Body.String())
	}
}

func TestStructured_Errors(t *testing.T) {
	fail := func(err error) func(context.Context, []models.Message, models.StructuredRequest) (*models.StructuredResponse, error) {
		return func(context.Context, []models.Message, models.StructuredRequest) (*models.StructuredResponse, error) {
			return nil, err
		}
	}

	tests := []struct {
		name     string
		body     string
		chat     func(context.Context, []models.Message, models.StructuredRequest) (*models.StructuredResponse, error)
		status   int
		contains string
	}{
		{
			name:   "malformed body",
			body:   `{"model":`,
			chat:   succeed,
			status: http.StatusBadRequest,
		},
		{
			name:     "missing model",
			body:     structuredBody("", personSchema, false),
			chat:     succeed,
			status:   http.StatusBadRequest,
			contains: "model is required",
		},
		{
			name:     "unknown model",
			body:     structuredBody("nope", personSchema, false),
			chat:     succeed,
			status:   http.StatusNotFound,
			contains: "model_not_found",
		},
		{
			name:     "unsupported schema type",
			body:     structuredBody("m1", `{"type":"null"}`, false),
			chat:     succeed,
			status:   http.StatusBadRequest,
			contains: "unsupported_schema_type",
		},
		{
			name:     "invalid schema",
			body:     structuredBody("m1", `{"type":"array"}`, false),
			chat:     succeed,
			status:   http.StatusBadRequest,
			contains: "invalid_schema",
		},
		{
			name:     "bad role",
			body:     `{"model":"m1","schema_name":"p","schema":` + personSchema + `,"messages":[{"role":"tool","content":"x"}]}`,
			chat:     succeed,
			status:   http.StatusBadRequest,
			contains: "unsupported role",
		},
		{
			name:     "strict violation",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(&translator.StrictModeError{Path: "$", Reason: "properties must all be required", Missing: []string{"age"}}),
			status:   http.StatusBadRequest,
			contains: "strict_schema_violation",
		},
		{
			name:     "refused",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(&provider.ContentRefusedError{Provider: "openai", Reason: "policy violation"}),
			status:   http.StatusUnprocessableEntity,
			contains: "policy violation",
		},
		{
			name:     "parse error",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(&provider.ResponseParseError{Provider: "openai", Raw: "not-json"}),
			status:   http.StatusBadGateway,
			contains: "response_parse_error",
		},
		{
			name:     "empty",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(provider.EmptyResponse("openai", "no choices")),
			status:   http.StatusBadGateway,
			contains: "empty_response",
		},
		{
			name:     "transport",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(&provider.TransportError{Provider: "openai", StatusCode: 500}),
			status:   http.StatusBadGateway,
			contains: "transport_error",
		},
		{
			name:     "aborted",
			body:     structuredBody("m1", personSchema, false),
			chat:     fail(&provider.CallAbortedError{Provider: "openai", Err: context.Canceled}),
			status:   http.StatusGatewayTimeout,
			contains: "call_aborted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, time.Second, tt.chat)
			rec := do(srv, http.MethodPost, "/v1/structured", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.contains != "" && !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body %s does not contain %q", rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestStructured_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, time.Second, succeed)

	body := `{"model":"m1","schema_name":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := do(srv, http.MethodPost, "/v1/structured", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, http.StatusRequestEntityTooLarge, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "request_too_large") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStructured_RequestTimeout(t *testing.T) {
	srv := newTestServer(t, 20*time.Millisecond, func(ctx context.Context, _ []models.Message, _ models.StructuredRequest) (*models.StructuredResponse, error) {
		<-ctx.Done()
		return nil, provider.RequestFailed(ctx, "openai", ctx.Err())
	})

	rec := do(srv, http.MethodPost, "/v1/structured", structuredBody("m1", personSchema, false))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, time.Second, succeed)
	rec := do(srv, http.MethodGet, "/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
