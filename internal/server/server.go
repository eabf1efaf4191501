package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"structured-router/internal/config"
	"structured-router/internal/models"
	"structured-router/internal/provider"
	"structured-router/internal/router"
	"structured-router/internal/schema"
	"structured-router/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeoutSlack   = 15 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server.Port == 0 {
		return nil, errors.New("server.port must be set in configuration or with --port")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: s.cfg.Server.RequestTimeout + writeTimeoutSlack,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/v1/models", s.handleModels)
	s.app.POST("/v1/structured", s.handleStructured)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type modelList struct {
	Object string         `json:"object"`
	Data   []models.Model `json:"data"`
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, modelList{Object: "list", Data: s.router.Models()})
}

type structuredRequest struct {
	Model             string           `json:"model"`
	Messages          []models.Message `json:"messages"`
	SchemaName        string           `json:"schema_name"`
	SchemaDescription string           `json:"schema_description"`
	Schema            json.RawMessage  `json:"schema"`
	IncludeRaw        bool             `json:"include_raw"`
}

type structuredResponse struct {
	ID          string `json:"id"`
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	Data        any    `json:"data"`
	RawResponse any    `json:"raw_response,omitempty"`
}

func (s *Server) handleStructured(c echo.Context) error {
	var body structuredRequest
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	req, err := body.toStructuredRequest()
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if timeout := s.cfg.Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, modelInfo, err := s.router.Structured(ctx, body.Model, body.Messages, req)
	if err != nil {
		slog.Warn("structured request failed", "model", body.Model, "schema", body.SchemaName, "err", err)
		return toHTTPError(err)
	}

	out := structuredResponse{
		ID:       uuid.NewString(),
		Model:    modelInfo.ID,
		Provider: modelInfo.Provider,
		Data:     resp.Data,
	}
	if body.IncludeRaw {
		out.RawResponse = resp.RawResponse
	}
	return c.JSON(http.StatusOK, out)
}

func (b structuredRequest) toStructuredRequest() (models.StructuredRequest, error) {
	if strings.TrimSpace(b.Model) == "" {
		return models.StructuredRequest{}, invalidRequest("model is required")
	}
	if len(b.Messages) == 0 {
		return models.StructuredRequest{}, invalidRequest("messages must not be empty")
	}
	for i, msg := range b.Messages {
		if !msg.Role.Valid() {
			return models.StructuredRequest{}, invalidRequest(fmt.Sprintf("messages[%d]: unsupported role %q", i, msg.Role))
		}
	}
	if len(b.Schema) == 0 {
		return models.StructuredRequest{}, invalidRequest("schema is required")
	}

	node, err := schema.Parse(b.Schema)
	if err != nil {
		return models.StructuredRequest{}, toHTTPError(err)
	}

	req := models.StructuredRequest{
		Schema:            node,
		SchemaName:        b.SchemaName,
		SchemaDescription: b.SchemaDescription,
	}
	if err := req.Validate(); err != nil {
		return models.StructuredRequest{}, invalidRequest(err.Error())
	}
	return req, nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				Type:    "invalid_request_error",
				Code:    "request_too_large",
			}
		}
		return invalidRequest(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return invalidRequest("request body must contain a single JSON object")
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func invalidRequest(message string) requestError {
	return requestError{
		Status:  http.StatusBadRequest,
		Message: message,
		Type:    "invalid_request_error",
	}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var (
		unsupported *schema.UnsupportedTypeError
		strict      *translator.StrictModeError
		refused     *provider.ContentRefusedError
		parseErr    *provider.ResponseParseError
		transport   *provider.TransportError
		aborted     *provider.CallAbortedError
	)

	switch {
	case errors.Is(err, provider.ErrUnknownModel):
		return requestError{Status: http.StatusNotFound, Message: err.Error(), Type: "invalid_request_error", Code: "model_not_found"}
	case errors.As(err, &unsupported):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: "unsupported_schema_type"}
	case errors.As(err, &strict):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: "strict_schema_violation"}
	case errors.Is(err, schema.ErrInvalidSchema):
		return requestError{Status: http.StatusBadRequest, Message: err.Error(), Type: "invalid_request_error", Code: "invalid_schema"}
	case errors.As(err, &refused):
		return requestError{Status: http.StatusUnprocessableEntity, Message: refused.Reason, Type: "content_refused", Code: "content_refused"}
	case errors.As(err, &aborted):
		return requestError{Status: http.StatusGatewayTimeout, Message: "upstream call aborted", Type: "upstream_error", Code: "call_aborted"}
	case errors.As(err, &parseErr):
		return requestError{Status: http.StatusBadGateway, Message: "upstream returned invalid JSON", Type: "upstream_error", Code: "response_parse_error"}
	case errors.Is(err, provider.ErrEmptyResponse):
		return requestError{Status: http.StatusBadGateway, Message: "upstream returned an empty response", Type: "upstream_error", Code: "empty_response"}
	case errors.As(err, &transport):
		return requestError{Status: http.StatusBadGateway, Message: "upstream provider error", Type: "upstream_error", Code: "transport_error"}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("structured-router ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /v1/models")
	fmt.Println("  POST /v1/structured")
	fmt.Printf("Example:\n  curl http://%s:%d/v1/structured -H 'Content-Type: application/json' -d '{\"model\":\"gpt-4o-mini\",\"schema_name\":\"person\",\"messages\":[{\"role\":\"user\",\"content\":\"Bob is 42\"}],\"schema\":{\"type\":\"object\",\"properties\":{\"name\":{\"type\":\"string\"},\"age\":{\"type\":\"integer\"}},\"required\":[\"name\",\"age\"],\"additionalProperties\":false}}'\n\n", host, port)
}
