// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/observability"
)

type contextKey string

const (
	configKey contextKey = "config"
	viperKey  contextKey = "viper"
)

// rootState carries what PersistentPreRunE sets up and must be torn down
// after the command, successful or not.
type rootState struct {
	shutdownTracing func(context.Context) error
}

// flush shuts the trace pipeline down once, bounded by a short deadline.
func (s *rootState) flush() {
	if s.shutdownTracing == nil {
		return
	}
	shutdown := s.shutdownTracing
	s.shutdownTracing = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		observability.GetLogger().Warn("Failed to flush traces", zap.Error(err))
	}
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state, which keeps tests isolated.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *rootState) {
	var cfgFile string
	state := &rootState{}

	rootCmd := &cobra.Command{
		Use:   "dialtone",
		Short: "dialtone enriches a phone number from many independent signal sources.",
		Long: `dialtone queries directories, search engines, social platforms, reputation
and breach-check services for a phone number, merges what they report into one
record, and derives a composite risk score and correlation patterns.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. Load defaults, the optional config file, .env and environment.
			v, err := config.NewViper(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Create the configuration object from viper.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dialtone"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Initialize the logger with the loaded config.
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting dialtone", zap.String("version", Version))

			// 4. Install the trace pipeline, if enabled.
			shutdown, err := observability.InitTracing(cfg.Tracing())
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			state.shutdownTracing = shutdown

			// 5. Hand both to subcommands; scan re-reads viper after binding its flags.
			ctx := context.WithValue(cmd.Context(), viperKey, v)
			ctx = context.WithValue(ctx, configKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			state.flush()
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.dialtone/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newScanCmd(defaultFactory{}))
	rootCmd.AddCommand(newSourcesCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd, state
}

// Execute runs the command tree with a signal-aware context from main.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	root, state := newRootCommand()
	// Post-run hooks are skipped when a command fails.
	defer state.flush()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command aborted by user signal")
		return err
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// getConfigFromContext returns the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}

func getViperFromContext(ctx context.Context) (*viper.Viper, error) {
	v, ok := ctx.Value(viperKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, fmt.Errorf("viper instance not found in command context")
	}
	return v, nil
}
