package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"radreport/internal/config"
	"radreport/internal/generation"
	"radreport/internal/prompt"
	"radreport/internal/report"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "radreport",
	Short: "radreport - structured radiology report drafting",
	Long: `radreport turns structured clinical findings into a narrative radiology
report by prompting a hosted text-generation model.

The pipeline never fails the caller for model misbehavior: transient
generation failures are retried with exponential backoff, unparseable
replies are absorbed, and a deterministic fallback report is substituted
whenever the model path cannot produce a valid result.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// draftCmd drafts a single report from a JSON request file
var draftCmd = &cobra.Command{
	Use:   "draft [request.json]",
	Short: "Draft a report from a JSON request file (use - for stdin)",
	Long: `Reads a draft request (findings, clinical context, optional modality and
view) from a JSON file, runs the generation pipeline, and writes the
structured report JSON to stdout or the file given with --output.

Example:
  radreport draft study.json --timeout 60s -o report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDraft,
}

// batchCmd drafts reports for many request files concurrently
var batchCmd = &cobra.Command{
	Use:   "batch [request.json...]",
	Short: "Draft reports for multiple request files",
	Long: `Drafts a report for every request file given, with bounded concurrency.
Each report is written next to its request as <name>.report.json. Every
draft is an independent pipeline invocation; there is no shared state and
no cross-request ordering guarantee.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("radreport v0.3.0")
	},
}

var (
	outputPath  string
	concurrency int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "radreport.yaml", "path to config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "deadline for the whole draft, retries included")

	draftCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the report to this file instead of stdout")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum concurrent drafts")

	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(versionCmd)
}

// newDrafter loads config and wires the pipeline.
func newDrafter(ctx context.Context) (*report.Drafter, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := generation.NewClient(ctx, cfg, generation.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	params := generation.Params{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	return report.NewDrafter(client, prompt.NewBuilder(), params, logger), nil
}

func readRequest(path string) (report.DraftRequest, error) {
	var req report.DraftRequest
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, fmt.Errorf("failed to read request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to decode request %s: %w", path, err)
	}
	return req, nil
}

func writeReport(rep report.StructuredReport, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func runDraft(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	drafter, err := newDrafter(ctx)
	if err != nil {
		return err
	}

	req, err := readRequest(args[0])
	if err != nil {
		return err
	}

	rep, err := drafter.Draft(ctx, req)
	if err != nil {
		return err
	}
	return writeReport(rep, outputPath)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	drafter, err := newDrafter(ctx)
	if err != nil {
		return err
	}

	paths := append([]string(nil), args...)
	sort.Strings(paths)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, path := range paths {
		g.Go(func() error {
			req, err := readRequest(path)
			if err != nil {
				return err
			}
			rep, err := drafter.Draft(gctx, req)
			if err != nil {
				return fmt.Errorf("draft failed for %s: %w", path, err)
			}
			out := reportPathFor(path)
			logger.Info("report written",
				zap.String("request", path),
				zap.String("report", out),
				zap.String("source", string(rep.Source)))
			return writeReport(rep, out)
		})
	}
	return g.Wait()
}

// reportPathFor derives <name>.report.json from a request path.
func reportPathFor(requestPath string) string {
	ext := filepath.Ext(requestPath)
	return requestPath[:len(requestPath)-len(ext)] + ".report.json"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
