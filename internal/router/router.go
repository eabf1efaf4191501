package router

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"structured-router/internal/models"
	"structured-router/internal/provider"
)

const tracerName = "structured-router/internal/router"

// Router dispatches structured requests to the provider serving a model.
type Router struct {
	registry *provider.Registry
	tracer   trace.Tracer
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	return &Router{
		registry: registry,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Structured routes a structured-output request to the provider registered
// for modelID, which may be an alias.
func (r *Router) Structured(ctx context.Context, modelID string, messages []models.Message, req models.StructuredRequest) (*models.StructuredResponse, models.Model, error) {
	providerImpl, err := r.registry.Lookup(modelID)
	if err != nil {
		return nil, models.Model{}, err
	}
	modelInfo := providerImpl.Model()

	ctx, span := r.tracer.Start(ctx, "router.Structured", trace.WithAttributes(
		attribute.String("llm.model", modelInfo.ID),
		attribute.String("llm.provider", providerImpl.Name()),
		attribute.String("llm.schema_name", req.SchemaName),
		attribute.Int("llm.message_count", len(messages)),
	))
	defer span.End()

	resp, err := providerImpl.ChatWithStructuredOutput(ctx, cloneMessages(messages), req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, models.Model{}, fmt.Errorf("provider %s structured request: %w", providerImpl.Name(), err)
	}
	return resp, modelInfo, nil
}

// Models lists the models available for routing.
func (r *Router) Models() []models.Model {
	return r.registry.Models()
}

func cloneMessages(messages []models.Message) []models.Message {
	if len(messages) == 0 {
		return nil
	}
	out := make([]models.Message, len(messages))
	copy(out, messages)
	return out
}
