package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/7789996399/Meerkat-API/internal/claims"
	"github.com/7789996399/Meerkat-API/internal/config"
	"github.com/7789996399/Meerkat-API/internal/domain"
	"github.com/7789996399/Meerkat-API/internal/entropy"
	"github.com/7789996399/Meerkat-API/internal/governance"
	"github.com/7789996399/Meerkat-API/internal/infrastructure/httpclient"
	httpserver "github.com/7789996399/Meerkat-API/internal/interfaces/http"
	"github.com/7789996399/Meerkat-API/internal/llm"
	appmetrics "github.com/7789996399/Meerkat-API/internal/metrics"
	"github.com/7789996399/Meerkat-API/internal/nli"
	"github.com/7789996399/Meerkat-API/internal/preference"
	"github.com/7789996399/Meerkat-API/internal/store"
)

const version = "v1.0.0"

var (
	configPath   string
	logLevel     string
	portOverride int
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "meerkat",
		Short:   "AI governance gateway",
		Version: version,
		Long: `Meerkat is a governance gateway for AI outputs. It verifies model
responses against source documents with entailment, semantic-entropy,
claim-extraction, preference, and numerical checks, fuses the results
into a trust score, and keeps an audit trail per verification.`,
		RunE: runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	// Accept underscore spellings (--log_level) from older deploy scripts.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the governance gateway HTTP server",
		Long:  "Starts the REST and websocket API: verification, shield, audit, configure, dashboard, and the live verdict stream.",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&portOverride, "port", 0, "Listen port (overrides config)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run one verification from the command line",
		Long:  "Verifies a single AI output against a source document and prints the trust verdict as JSON. Useful for pipelines and smoke tests.",
		RunE:  runCheck,
	}
	checkCmd.Flags().String("output", "", "AI output text to verify (required)")
	checkCmd.Flags().String("context", "", "Source document text")
	checkCmd.Flags().String("context-file", "", "Read the source document from a file")
	checkCmd.Flags().String("domain", "general", "Verification domain (legal|financial|healthcare|pharma|general)")
	checkCmd.Flags().StringSlice("checks", nil, "Checks to run (default: all)")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a built-in end-to-end verification scenario",
		Long:  "Verifies two sample outputs (one faithful, one distorted) against a sample contract using the local engines, and prints the verdicts and metrics.",
		RunE:  runDemo,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("meerkat %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	if level, err := zerolog.ParseLevel(strings.ToLower(logLevel)); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// buildPipeline wires the verification pipeline from configuration:
// model clients, in-process engines, remote analyzer fallbacks, and the
// audit/config stores.
func buildPipeline(ctx context.Context, cfg config.Config) (*governance.Orchestrator, store.AuditStore, func(), error) {
	var nliOpts []nli.Option
	if cfg.Store.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		// Verdicts are deterministic per text pair but the hour TTL keeps
		// the cache honest across model redeployments.
		nliOpts = append(nliOpts, nli.WithCache(rdb, time.Hour))
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("NLI verdict cache enabled")
	}
	predictor := nli.NewClient(cfg.Downstream.NLIURL, cfg.Checks.NLITimeout, nliOpts...)

	var entropyEngine *entropy.Engine
	if cfg.Downstream.GeneratorURL != "" {
		gen := llm.NewClient(cfg.Downstream.GeneratorURL, cfg.Downstream.GeneratorModel, cfg.Checks.ExternalTimeout)
		ecfg := entropy.DefaultConfig()
		ecfg.NumCompletions = cfg.Checks.NumCompletions
		ecfg.NLIBatchSize = cfg.Checks.NLIBatchSize
		entropyEngine = entropy.NewEngine(gen, predictor, ecfg)
	}

	var classifier preference.Classifier
	if cfg.Downstream.SentimentURL != "" {
		classifier = preference.NewHTTPClassifier(cfg.Downstream.SentimentURL, cfg.Checks.ExternalTimeout)
	}

	pool := httpclient.NewPool(httpclient.DefaultPoolConfig("analyzers"))

	checkers := []governance.Checker{
		governance.NewEntailmentChecker(predictor),
		governance.NewEntropyChecker(cfg.Downstream.EntropyServiceURL, pool, entropyEngine, cfg.Checks.NumCompletions),
		governance.NewClaimsChecker(cfg.Downstream.ClaimsServiceURL, pool, claims.NewEngine(predictor)),
		governance.NewPreferenceChecker(cfg.Downstream.PreferenceServiceURL, pool, preference.NewEngine(classifier)),
		governance.NewNumericalChecker(cfg.Downstream.NumericalServiceURL, pool),
	}

	var (
		audits  store.AuditStore
		configs store.ConfigStore
		cleanup = func() {}
	)
	if cfg.Store.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		audits = pg
		configs = pg.Configs()
		cleanup = func() { _ = pg.Close() }
		log.Info().Msg("Postgres audit store connected")
	} else {
		audits = store.NewMemoryAudit()
		configs = store.NewMemoryConfig()
		log.Warn().Msg("Using in-memory stores; audit records will not survive restarts")
	}

	orch := governance.NewOrchestrator(checkers, governance.TimeoutsFrom(cfg.Checks), audits, configs)
	return orch, audits, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if portOverride > 0 {
		cfg.Server.Port = portOverride
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, audits, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	shieldLog := appmetrics.NewShieldLog()
	aggregator := appmetrics.NewAggregator(audits, shieldLog)
	registry := httpserver.NewMetricsRegistry()
	handlers := httpserver.NewHandlers(orch, aggregator, shieldLog, registry)
	server := httpserver.NewServer(cfg.Server, handlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	log.Info().Str("version", version).Str("addr", server.GetAddress()).Msg("Meerkat gateway started")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Meerkat gateway stopped")
	return nil
}

const demoContract = `This Employment Agreement is entered into between Apex Dynamics Inc.
and the Employee. The non-compete obligation lasts 12 months within a
50-mile radius of Vancouver. Confidentiality obligations survive for
2 years after termination. Either party may terminate this agreement
with 30 days written notice. The liquidated damages for breach of the
confidentiality clause are $50,000.`

// runDemo verifies a faithful and a distorted summary of the demo
// contract with the offline heuristics; no downstream services needed.
func runDemo(cmd *cobra.Command, args []string) error {
	setupLogging()

	pool := httpclient.NewPool(httpclient.DefaultPoolConfig("demo"))
	checkers := []governance.Checker{
		governance.NewEntailmentChecker(nil),
		governance.NewEntropyChecker("", pool, nil, 10),
		governance.NewClaimsChecker("", pool, nil),
		governance.NewPreferenceChecker("", pool, nil),
		governance.NewNumericalChecker("", pool),
	}
	orch := governance.NewOrchestrator(checkers,
		governance.TimeoutsFrom(config.Default().Checks),
		store.NewMemoryAudit(), store.NewMemoryConfig())

	registry := httpserver.NewMetricsRegistry()
	orch.OnCheck(func(name domain.Check, elapsed time.Duration, timedOut bool) {
		result := "ok"
		if timedOut {
			result = "timeout"
		}
		registry.CheckDuration.WithLabelValues(string(name), result).Observe(elapsed.Seconds())
	})

	scenarios := []struct {
		label  string
		output string
	}{
		{"faithful summary", "The agreement includes a 12-month non-compete within 50 miles of Vancouver. Confidentiality survives for 2 years, and either party may terminate with 30 days notice."},
		{"distorted summary", "The agreement includes a 5-year non-compete covering all of North America. Damages for breach are $500,000, and termination requires 90 days notice."},
	}

	ctx := cmd.Context()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, sc := range scenarios {
		req := domain.VerifyRequest{
			Output:  sc.output,
			Context: demoContract,
			Domain:  domain.DomainLegal,
			Checks:  domain.AllChecks,
		}
		if err := req.Validate(); err != nil {
			return err
		}
		verdict, err := orch.Verify(ctx, req)
		if err != nil {
			return fmt.Errorf("demo %s: %w", sc.label, err)
		}
		fmt.Printf("--- %s ---\n", sc.label)
		if err := enc.Encode(verdict); err != nil {
			return err
		}
	}

	fmt.Println("--- metrics ---")
	return enc.Encode(registry.Snapshot())
}

func runCheck(cmd *cobra.Command, args []string) error {
	setupLogging()

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return fmt.Errorf("--output is required")
	}

	contextText, _ := cmd.Flags().GetString("context")
	if contextFile, _ := cmd.Flags().GetString("context-file"); contextFile != "" {
		data, err := os.ReadFile(contextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		contextText = string(data)
	}

	domainName, _ := cmd.Flags().GetString("domain")
	checkNames, _ := cmd.Flags().GetStringSlice("checks")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, _, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	req := domain.VerifyRequest{
		Output:  output,
		Context: contextText,
		Domain:  domain.Domain(domainName),
	}
	for _, name := range checkNames {
		req.Checks = append(req.Checks, domain.Check(name))
	}
	if err := req.Validate(); err != nil {
		return err
	}

	verdict, err := orch.Verify(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		return err
	}
	if verdict.Status == domain.StatusBlock {
		os.Exit(2)
	}
	return nil
}
