package router

import (
	"context"
	"errors"
	"testing"

	"structured-router/internal/models"
	"structured-router/internal/provider"
	"structured-router/internal/schema"
)

type fakeProvider struct {
	model    models.Model
	err      error
	received []models.Message
}

func (f *fakeProvider) Name() string        { return f.model.Provider }
func (f *fakeProvider) Model() models.Model { return f.model }

func (f *fakeProvider) ChatWithStructuredOutput(_ context.Context, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, error) {
	f.received = messages
	if f.err != nil {
		return nil, f.err
	}
	return &models.StructuredResponse{Data: map[string]any{"schema": req.SchemaName}}, nil
}

func newRouter(t *testing.T, providers ...*fakeProvider) *Router {
	t.Helper()
	registry := provider.NewRegistry()
	for _, p := range providers {
		if err := registry.Register(p, map[string]string{"fast": "m1"}); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}
	rt, err := New(registry)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return rt
}

func request() models.StructuredRequest {
	return models.StructuredRequest{
		Schema:     schema.NewObject(schema.Prop("name", schema.Str())),
		SchemaName: "person",
	}
}

func TestNew_NilRegistry(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil registry")
	}
}

func TestStructured(t *testing.T) {
	fake := &fakeProvider{model: models.Model{ID: "m1", Provider: "openai", APIStyle: "openai"}}
	rt := newRouter(t, fake)

	messages := []models.Message{models.SystemMessage("s"), models.UserMessage("u")}
	resp, model, err := rt.Structured(context.Background(), "fast", messages, request())
	if err != nil {
		t.Fatalf("Structured error: %v", err)
	}
	if model.ID != "m1" || model.Provider != "openai" {
		t.Errorf("model = %+v", model)
	}
	if data, ok := resp.Data.(map[string]any); !ok || data["schema"] != "person" {
		t.Errorf("data = %#v", resp.Data)
	}

	if len(fake.received) != 2 || fake.received[0] != messages[0] || fake.received[1] != messages[1] {
		t.Errorf("provider received %+v", fake.received)
	}
	fake.received[0].Content = "mutated"
	if messages[0].Content != "s" {
		t.Error("router must not share the caller's message slice")
	}
}

func TestStructured_Errors(t *testing.T) {
	refused := &provider.ContentRefusedError{Provider: "openai", Reason: "policy violation"}
	rt := newRouter(t, &fakeProvider{model: models.Model{ID: "m1", Provider: "openai"}, err: refused})

	_, _, err := rt.Structured(context.Background(), "unknown", nil, request())
	if !errors.Is(err, provider.ErrUnknownModel) {
		t.Errorf("error = %v, want ErrUnknownModel", err)
	}

	_, _, err = rt.Structured(context.Background(), "m1", nil, request())
	var got *provider.ContentRefusedError
	if !errors.As(err, &got) || got.Reason != "policy violation" {
		t.Errorf("error = %v, want wrapped ContentRefusedError", err)
	}
}

func TestModels(t *testing.T) {
	rt := newRouter(t,
		&fakeProvider{model: models.Model{ID: "m1", Provider: "openai"}},
		&fakeProvider{model: models.Model{ID: "m2", Provider: "gemini"}},
	)
	got := rt.Models()
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Errorf("Models() = %+v", got)
	}
}
