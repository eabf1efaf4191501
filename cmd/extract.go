package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"structured-router/internal/models"
	"structured-router/internal/schema"
)

type extractOptions struct {
	model             string
	schemaPath        string
	schemaName        string
	schemaDescription string
	system            string
	prompt            string
	includeRaw        bool
}

type extractResult struct {
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	Data        any    `json:"data"`
	RawResponse any    `json:"raw_response,omitempty"`
}

func newExtractCmd(v *viper.Viper) *cobra.Command {
	var opts extractOptions

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one structured extraction and print the JSON result",
		Long: `Sends a prompt to the configured model with the given JSON Schema and
prints the decoded document. The prompt is read from stdin when --prompt is
not set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			messages, req, err := opts.build(cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := buildRouter(ctx, cfg)
			if err != nil {
				return err
			}

			if cfg.Server.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Server.RequestTimeout)
				defer cancel()
			}

			resp, model, err := rt.Structured(ctx, opts.model, messages, req)
			if err != nil {
				return err
			}

			out := extractResult{
				Model:    model.ID,
				Provider: model.Provider,
				Data:     resp.Data,
			}
			if opts.includeRaw {
				out.RawResponse = resp.RawResponse
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "model ID or alias (required)")
	flags.StringVarP(&opts.schemaPath, "schema", "s", "", "path to a JSON Schema document (required)")
	flags.StringVar(&opts.schemaName, "schema-name", "result", "schema name sent to the provider")
	flags.StringVar(&opts.schemaDescription, "schema-description", "", "optional schema description")
	flags.StringVar(&opts.system, "system", "", "optional system message")
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "user message; read from stdin when empty")
	flags.BoolVar(&opts.includeRaw, "raw", false, "include the provider response in the output")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("schema")

	return cmd
}

func (o extractOptions) build(stdin io.Reader) ([]models.Message, models.StructuredRequest, error) {
	doc, err := os.ReadFile(o.schemaPath)
	if err != nil {
		return nil, models.StructuredRequest{}, fmt.Errorf("read schema file: %w", err)
	}

	node, err := schema.Parse(doc)
	if err != nil {
		return nil, models.StructuredRequest{}, fmt.Errorf("schema file %q: %w", o.schemaPath, err)
	}

	prompt := o.prompt
	if prompt == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, models.StructuredRequest{}, fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, models.StructuredRequest{}, errors.New("prompt must not be empty")
	}

	var messages []models.Message
	if o.system != "" {
		messages = append(messages, models.SystemMessage(o.system))
	}
	messages = append(messages, models.UserMessage(prompt))

	req := models.StructuredRequest{
		Schema:            node,
		SchemaName:        o.schemaName,
		SchemaDescription: o.schemaDescription,
	}
	if err := req.Validate(); err != nil {
		return nil, models.StructuredRequest{}, err
	}
	return messages, req, nil
}
