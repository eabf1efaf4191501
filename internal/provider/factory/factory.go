package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"structured-router/internal/config"
	"structured-router/internal/provider"
	geminiProvider "structured-router/internal/provider/gemini"
	openaiProvider "structured-router/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs one adapter per configured model
// and stores them in the registry together with their aliases.
func RegisterConfiguredProviders(ctx context.Context, cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	for _, named := range cfg.Providers.All() {
		client := newHTTPClient()

		for _, model := range named.Config.Models {
			p, err := newProvider(ctx, named, model, client)
			if err != nil {
				return fmt.Errorf("initialise %s provider for model %q: %w", named.Name, model.ID, err)
			}
			if err := registry.Register(p, named.Config.Aliases); err != nil {
				return fmt.Errorf("register %s provider: %w", named.Name, err)
			}
		}

		if err := registry.CheckAliases(named.Config.Aliases); err != nil {
			return fmt.Errorf("provider %s: %w", named.Name, err)
		}
	}

	return nil
}

func newProvider(ctx context.Context, named config.NamedProvider, model config.ModelConfig, client *http.Client) (provider.Provider, error) {
	switch named.Style {
	case config.APIStyleOpenAI:
		return openaiProvider.New(named.Name, *named.Config, model, client)
	case config.APIStyleGemini:
		return geminiProvider.New(ctx, named.Name, *named.Config, model, client)
	default:
		return nil, fmt.Errorf("unsupported api style %q", named.Style)
	}
}

// newHTTPClient bounds connection setup only. Call deadlines come from the
// caller's context.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
