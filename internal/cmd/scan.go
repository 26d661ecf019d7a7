package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/sensiscan/pkg/config"
	"github.com/3leaps/sensiscan/pkg/coordinator"
	"github.com/3leaps/sensiscan/pkg/events"
	"github.com/3leaps/sensiscan/pkg/mask"
	"github.com/3leaps/sensiscan/pkg/match"
	"github.com/3leaps/sensiscan/pkg/probe"

	"github.com/3leaps/sensiscan/internal/observability"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan input text for the gateway's sensitive-word dictionary",
	Long: `Scan probes a gateway with candidate text derived from the input,
narrows in on the substrings that trigger a block, and reports them as a
stream of JSONL events.

Example:
  sensiscan scan --config gateway.yaml --text "some prompt to test"
  sensiscan scan --config gateway.yaml --file prompt.txt
  sensiscan scan --config gateway.yaml --glob "inputs/*.txt"`,
	RunE: runScan,
}

var (
	scanConfigPath string
	scanText       string
	scanFile       string
	scanGlob       string
	scanOutput     string
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanConfigPath, "config", "c", "", "Path to config file (required)")
	scanCmd.Flags().StringVar(&scanText, "text", "", "Literal text to scan")
	scanCmd.Flags().StringVar(&scanFile, "file", "", "Path to a single file to scan")
	scanCmd.Flags().StringVar(&scanGlob, "glob", "", "Glob pattern selecting input files to scan, walked recursively (e.g. inputs/**/*.txt)")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Override JSONL output destination (default stdout)")

	_ = scanCmd.MarkFlagRequired("config")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(scanConfigPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid config", err)
	}

	inputs, err := resolveInputs()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "invalid input selection", err)
	}

	out, cleanup, err := openScanOutput()
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "failed to open output", err)
	}
	defer cleanup()

	for _, input := range inputs {
		body := input.path
		if !input.literal {
			data, err := os.ReadFile(input.path)
			if err != nil {
				return exitError(foundry.ExitFileReadError, "failed to read input file", err)
			}
			body = string(data)
		}

		if err := runOneScan(ctx, cfg, body, out); err != nil {
			if ctx.Err() != nil {
				observability.CLILogger.Warn("scan cancelled", zap.Error(err))
				return exitError(foundry.ExitSignalInt, "scan cancelled", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "scan failed", err)
		}
	}

	return nil
}

type scanInput struct {
	path    string
	literal bool
}

func resolveInputs() ([]scanInput, error) {
	switch {
	case scanText != "":
		return []scanInput{{path: scanText, literal: true}}, nil
	case scanFile != "":
		return []scanInput{{path: scanFile}}, nil
	case scanGlob != "":
		matcher, err := match.New(match.Config{Includes: []string{scanGlob}})
		if err != nil {
			return nil, err
		}
		files, err := matcher.Files(".")
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no files matched glob %q", scanGlob)
		}
		inputs := make([]scanInput, 0, len(files))
		for _, f := range files {
			inputs = append(inputs, scanInput{path: f})
		}
		return inputs, nil
	default:
		return nil, fmt.Errorf("one of --text, --file, or --glob is required")
	}
}

func openScanOutput() (*os.File, func(), error) {
	if scanOutput == "" || scanOutput == "stdout" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(scanOutput)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func runOneScan(ctx context.Context, cfg *config.Config, text string, out *os.File) error {
	registry := mask.NewRegistry()
	evaluator := probe.NewRuleEvaluator(cfg.ToRuleSet())
	client := probe.New(cfg.ToProbeConfig(), registry, evaluator)

	scanID := coordinator.NewScanID()
	sink := events.NewJSONLSink(out, scanID)
	defer func() { _ = sink.Close() }()

	evaluator.SetUnknownHandler(func(status int, snippet string) {
		_ = sink.WriteUnknownStatusCode(ctx, events.UnknownStatusCodePayload{StatusCode: status, ResponseSnippet: snippet})
	})

	c := coordinator.New(client, registry, cfg.ToBinaryParams(), cfg.ToPrecisionParams(), sink, cfg.ToCoordinatorParams(), evaluator.UnknownStatusCodeCounts)

	observability.CLILogger.Info("starting scan", zap.String("scan_id", scanID), zap.Int("input_length", len(text)))
	result, err := c.Run(ctx, scanID, text)
	if err != nil {
		return err
	}

	observability.CLILogger.Info("scan complete",
		zap.String("scan_id", result.ScanID),
		zap.Int("sensitive_count", result.SensitiveCount),
		zap.Int("total_requests", result.TotalRequests),
		zap.Bool("cancelled", result.Cancelled))
	return nil
}
