// agrodash: Brazilian agribusiness market data aggregator with AI reports.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/geraldosnetto/agro-sub002/api"
	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/logging"
	"github.com/geraldosnetto/agro-sub002/internal/report"
	"github.com/geraldosnetto/agro-sub002/internal/scheduler"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by the root command.
var (
	cfg    *config.Config
	logger zerolog.Logger
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agrodash",
	Short: "agrodash: Brazilian agribusiness market dashboard backend",
	Long: `agrodash aggregates physical-market quotes, international futures,
the BCB reference FX rate, weather and agribusiness news, and produces
AI market reports on top of them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = logging.Setup(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(ingestCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agrodash %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var sched *scheduler.Scheduler
		if cfg.Scheduler.Enabled {
			sched, err = newScheduler(a)
			if err != nil {
				return err
			}
			sched.Start()
		}

		srv := api.NewServer(a.agg, a.gen,
			api.WithConfig(cfg),
			api.WithScheduler(sched),
			api.WithProviders(a.router.ProviderNames()),
			api.WithVersion(version),
			api.WithLogger(logger.With().Str("component", "api").Logger()),
		)
		addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
		serveErr := srv.Run(ctx, addr, shutdownTimeout)

		// HTTP is drained; stop scheduled work, then wait for reports in flight.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("scheduler stop")
			}
		}
		if err := a.gen.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("report generator shutdown")
		}
		logger.Info().Msg("agrodash stopped")
		return serveErr
	},
}

// newScheduler registers the daily report and quote ingestion jobs.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	l := logger.With().Str("component", "scheduler").Logger()
	sched := scheduler.New(loc, l)
	jobs := []scheduler.Job{
		scheduler.DailyReportJob(cfg.Scheduler.DailyReportCron, a.gen, cfg.Report.GenerationTimeout, l),
		scheduler.IngestJob(cfg.Scheduler.IngestCron, a.agg, 5*time.Minute, l),
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report [daily|commodity] [slug]",
	Short: "Generate an AI market report and print it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		req := report.Request{Kind: models.ReportKind(args[0])}
		if len(args) == 2 {
			req.Commodity = args[1]
		}
		req.Force, _ = cmd.Flags().GetBool("force")

		r, err := a.gen.Get(ctx, req)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}
		fmt.Printf("Relatório %s gerado em %s (%s, %d tokens)\n\n",
			r.Kind, utils.FormatDateTimeBRT(r.GeneratedAt), r.Model, r.TokensUsed)
		fmt.Println(r.Content)
		return nil
	},
}

func init() {
	reportCmd.Flags().Bool("force", false, "regenerate even when a fresh report is stored")
	reportCmd.Flags().Bool("json", false, "print the report as JSON")
}

// --- Ingest Command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch current quotes for every active commodity and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.agg.IngestQuotes(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("commodities: %d  failed: %d  inserted: %d  skipped: %d  (%s)\n",
			stats.Commodities, stats.Failed, stats.Inserted, stats.Skipped, stats.Elapsed.Round(time.Millisecond))
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration summary and API key status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  agrodash System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Time (BRT):    %s\n", utils.FormatDateTimeBRT(utils.NowBRT()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Primary:   %s (fast: %s, quality: %s)\n", cfg.LLM.Primary, cfg.LLM.FastModel, cfg.LLM.QualityModel)
		fmt.Printf("    Cache:         %s\n", cfg.Cache.Backend)
		fmt.Printf("    News Feeds:    %d\n", len(cfg.Sources.Feeds))
		fmt.Printf("    Quotas:        %d reports / %d tokens per day\n", cfg.Report.MaxReportsPerDay, cfg.Report.MaxTokensPerDay)
		if cfg.Scheduler.Enabled {
			fmt.Printf("    Scheduler:     daily %q, ingest %q (%s)\n", cfg.Scheduler.DailyReportCron, cfg.Scheduler.IngestCron, cfg.Scheduler.Timezone)
		} else {
			fmt.Println("    Scheduler:     disabled")
		}
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
