// File: cmd/scan.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/aggregate"
	"github.com/xkilldash9x/dialtone/internal/config"
	"github.com/xkilldash9x/dialtone/internal/engine"
	"github.com/xkilldash9x/dialtone/internal/fetcher"
	"github.com/xkilldash9x/dialtone/internal/llmclient"
	"github.com/xkilldash9x/dialtone/internal/network"
	"github.com/xkilldash9x/dialtone/internal/normalize"
	"github.com/xkilldash9x/dialtone/internal/observability"
	"github.com/xkilldash9x/dialtone/internal/orchestrator"
	"github.com/xkilldash9x/dialtone/internal/patterns"
	"github.com/xkilldash9x/dialtone/internal/phone"
	"github.com/xkilldash9x/dialtone/internal/registry"
	"github.com/xkilldash9x/dialtone/internal/reporting"
	"github.com/xkilldash9x/dialtone/internal/risk"
)

// flagBindings maps scan flags onto their config keys so flags override the
// config file and environment.
var flagBindings = map[string]string{
	"concurrency": "engine.concurrent_requests",
	"timeout":     "engine.scan_timeout",
	"api-key":     "llm.api_key",
	"metrics-out": "metrics.textfile_path",
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd(factory ComponentFactory) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <number>...",
		Short: "Enrich one or more phone numbers",
		Example: `  dialtone scan "(650) 253-0000"
  dialtone scan +442079460000 --tier deep --format markdown -o report.md`,
		Args: cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := getViperFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := bindScanFlags(cmd, v); err != nil {
				return err
			}
			// Re-derive the config now that flag overrides are bound.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to apply scan flags: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			tier, _ := cmd.Flags().GetString("tier")
			output, _ := cmd.Flags().GetString("output")
			format, _ := cmd.Flags().GetString("format")
			noNarrative, _ := cmd.Flags().GetBool("no-narrative")
			cfg.SetScanConfig(config.ScanConfig{
				Subjects: args,
				Tier:     tier,
				Output:   output,
				Format:   format,
				Narrate:  !noNarrative,
			})
			return runScan(cmd.Context(), cmd, cfg, factory, observability.GetLogger())
		},
	}

	scanCmd.Flags().StringP("tier", "t", "basic", "Scan depth: basic, deep or comprehensive")
	scanCmd.Flags().StringP("output", "o", "", "Output file path for the report (default stdout)")
	scanCmd.Flags().StringP("format", "f", "json", "Report format: "+strings.Join(reporting.Formats, " or "))
	scanCmd.Flags().String("api-key", "", "Gemini API key for the narrative (overrides config/env)")
	scanCmd.Flags().Bool("no-narrative", false, "Skip the LLM narrative even when an API key is configured")
	scanCmd.Flags().String("metrics-out", "", "Write Prometheus metrics in text format to this file after the run")
	scanCmd.Flags().IntP("concurrency", "j", 0, "Maximum concurrent source queries (overrides config/env)")
	scanCmd.Flags().Duration("timeout", 0, "Overall deadline per subject, e.g. 30s (overrides config/env)")
	return scanCmd
}

// bindScanFlags binds only the flags the user actually set, so unset flags
// never shadow config file values with their zero defaults.
func bindScanFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagBindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

// runScan scans every subject in order with one shared set of components,
// so the fetch cache carries across subjects. Only invalid subjects and
// setup failures produce an error.
func runScan(ctx context.Context, cmd *cobra.Command, cfg config.Interface, factory ComponentFactory, logger *zap.Logger) error {
	sc := cfg.Scan()
	tier, err := schemas.ParseTier(sc.Tier)
	if err != nil {
		return err
	}

	var reporter reporting.Reporter
	if sc.Output == "" || sc.Output == "stdout" {
		reporter, err = reporting.NewForWriter(sc.Format, cmd.OutOrStdout(), Version)
	} else {
		reporter, err = reporting.New(sc.Format, sc.Output, Version)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	scanner, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to initialize scan components: %w", err)
	}
	defer func() {
		if err := scanner.Close(); err != nil {
			logger.Warn("Error during scanner shutdown", zap.Error(err))
		}
	}()

	var invalid []error
	for _, raw := range sc.Subjects {
		if ctx.Err() != nil {
			logger.Warn("Scan aborted, skipping remaining subjects", zap.String("next", raw))
			break
		}

		report, err := scanner.Orchestrator.Scan(ctx, raw, tier)
		if err != nil {
			if !orchestrator.IsValidationError(err) {
				_ = reporter.Close()
				return err
			}
			invalid = append(invalid, err)
		}
		var out *schemas.ScanOutput
		if sc.Narrate {
			out = scanner.Orchestrator.Narrate(ctx, report)
		} else {
			out = &schemas.ScanOutput{Report: report}
		}
		if err := reporter.Write(out); err != nil {
			_ = reporter.Close()
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if err := reporter.Close(); err != nil {
		return err
	}
	if sc.Output != "" && sc.Output != "stdout" {
		logger.Info("Report written", zap.String("path", sc.Output), zap.String("format", sc.Format))
	}

	stats := scanner.Fetcher.CacheStats()
	logger.Debug("Fetch cache statistics", zap.Int64("hits", stats.Hits), zap.Int64("misses", stats.Misses))

	if path := cfg.Metrics().TextfilePath; path != "" {
		if scanner.Metrics == nil {
			logger.Warn("Metrics are disabled; not writing textfile", zap.String("path", path))
		} else if err := scanner.Metrics.WriteTextfile(path); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%d of %d subjects failed validation: %w", len(invalid), len(sc.Subjects), errors.Join(invalid...))
	}
	return nil
}

// Scanner holds the components shared by every subject of one invocation.
type Scanner struct {
	Orchestrator *orchestrator.Orchestrator
	Fetcher      *fetcher.Fetcher
	Metrics      *observability.Metrics
	llm          schemas.LLMClient
}

// Close releases the LLM client, if any.
func (s *Scanner) Close() error {
	if s.llm == nil {
		return nil
	}
	return s.llm.Close()
}

// ComponentFactory builds a Scanner from configuration.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Scanner, error)
}

// defaultFactory wires the production components.
type defaultFactory struct{}

func (defaultFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Scanner, error) {
	validator := phone.NewValidator(cfg.Phone().Language, phone.WithStrictValidation(cfg.Phone().StrictValidation))
	normalizer := normalize.New(validator, cfg.Phone().DefaultRegion, cfg.Phone().DefaultCountryCode)

	reg, err := registry.Build(cfg.Sources())
	if err != nil {
		return nil, fmt.Errorf("failed to build source registry: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Metrics().Enabled {
		metrics = observability.NewMetrics(cfg.Metrics().Namespace)
	}

	netCfg := network.ClientConfigFromNetwork(cfg.Network())
	netCfg.Logger = logger.Named("network")
	fetch := fetcher.New(
		network.NewClient(netCfg),
		fetcher.OptionsFromConfig(cfg.Fetch()),
		logger,
		fetcher.WithPhone(validator),
		fetcher.WithLocalSource(fetcher.NewNumberingPlan(validator)),
		fetcher.WithMetrics(metrics),
	)

	dispatcher, err := engine.New(cfg.Engine(), logger, reg, fetch)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	scanner := &Scanner{Fetcher: fetch, Metrics: metrics}
	components := orchestrator.Components{
		Normalizer: normalizer,
		Dispatcher: dispatcher,
		Aggregator: aggregate.New(reg.Trust(), logger),
		Scorer:     risk.NewScorer(cfg.Risk(), logger),
		Analyzer:   patterns.NewAnalyzer(cfg.Patterns(), logger),
		Metrics:    metrics,
	}

	if cfg.Scan().Narrate && cfg.LLM().APIKey != "" {
		client, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		scanner.llm = client
		components.Narrator = llmclient.NewNarrator(client, logger)
	} else if cfg.Scan().Narrate {
		logger.Debug("No LLM API key configured; narratives disabled")
	}

	orch, err := orchestrator.New(logger, components)
	if err != nil {
		_ = scanner.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	scanner.Orchestrator = orch
	return scanner, nil
}
