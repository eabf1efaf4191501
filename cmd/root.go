package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"structured-router/internal/config"
	"structured-router/internal/provider"
	providerfactory "structured-router/internal/provider/factory"
	"structured-router/internal/router"
)

const envPrefix = "STRUCTURED_ROUTER"

const (
	keyConfig   = "config"
	keyPort     = "port"
	keyLogLevel = "log_level"
	keyEnvFile  = "env_file"
)

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "structured-router",
		Short:         "Schema-constrained JSON extraction across LLM providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(v.GetString(keyEnvFile))
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyConfig, "config.yaml", "path to YAML configuration file")
	flags.String("log-level", "", "override log.level from configuration")
	flags.String("env-file", ".env", "dotenv file loaded before the configuration")
	_ = v.BindPFlag(keyConfig, flags.Lookup(keyConfig))
	_ = v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyEnvFile, flags.Lookup("env-file"))

	root.AddCommand(newServeCmd(v), newExtractCmd(v))
	return root
}

// loadEnvFile populates the environment from a dotenv file. A missing file
// is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration file, applies flag and environment
// overrides, and installs the logger.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfgPath := v.GetString(keyConfig)
	if cfgPath == "" {
		return config.Config{}, errors.New("configuration path must not be empty")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	if level := v.GetString(keyLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if err := setupLogger(cfg.Log); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildRouter(ctx context.Context, cfg config.Config) (*router.Router, error) {
	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(ctx, cfg, registry); err != nil {
		return nil, err
	}
	return router.New(registry)
}
