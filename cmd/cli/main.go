package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanchay-app/sanchay/internal/config"
	"github.com/sanchay-app/sanchay/internal/extract"
	infraBQ "github.com/sanchay-app/sanchay/internal/infra/bigquery"
	"github.com/sanchay-app/sanchay/internal/logger"
	"github.com/sanchay-app/sanchay/internal/mail"
	"github.com/sanchay-app/sanchay/internal/mailarchive"
	"github.com/sanchay-app/sanchay/internal/reconcile"
	"github.com/sanchay-app/sanchay/internal/store"
	"github.com/sanchay-app/sanchay/internal/store/inmemory"
	syncer "github.com/sanchay-app/sanchay/internal/sync"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		runSync(log)
	case "last-sync":
		runLastSync(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Sanchay CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  sync       Scan the mailbox and reconcile transactions")
	fmt.Println("  last-sync  Show when the last successful sync finished")
	fmt.Println("  inspect    Show recent transactions, totals and subscriptions")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (optional)")
	full := fs.Bool("full", false, "Ignore processed-email markers and re-scan everything")
	days := fs.Int("days", 0, "Days of mail history to scan (overrides config)")
	currency := fs.String("currency", "", "Reporting currency (overrides config)")
	extractorName := fs.String("extractor", "", "Extractor backend: pattern or gemini (overrides config)")
	storeName := fs.String("store", "", "Store backend: memory or bigquery (overrides config)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *days > 0 {
		cfg.DaysBack = *days
	}
	if *currency != "" {
		cfg.Currency = *currency
	}
	if *extractorName != "" {
		cfg.Extractor = *extractorName
	}
	if *storeName != "" {
		cfg.Store = *storeName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer closeStore()

	extractor, err := buildExtractor(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	mailSvc, err := mail.NewGmailService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Gmail")
	}

	var archiver syncer.Archiver
	if cfg.ArchiveBucket != "" {
		gcs, err := mailarchive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS archiver")
		}
		defer gcs.Close()
		archiver = gcs
	}

	reconciler := reconcile.NewReconciler(st, reconcile.Config{
		JaccardThreshold:   cfg.JaccardThreshold,
		ReversalWindowDays: cfg.ReversalWindowDays,
		ReversalLookback:   cfg.ReversalLookback,
	})

	orch := syncer.NewOrchestrator(mailSvc, extractor, st, reconciler, archiver)

	log.Info().
		Str("extractor", cfg.Extractor).
		Str("store", cfg.Store).
		Int("days_back", cfg.DaysBack).
		Bool("full", *full).
		Msg("Starting sync")

	result, err := orch.Run(ctx, syncer.Options{
		FullSync: *full,
		After:    time.Now().AddDate(0, 0, -cfg.DaysBack),
		Wide:     cfg.Extractor == config.ExtractorGemini,
		Currency: cfg.Currency,
		Observer: syncer.ProgressFunc(func(p syncer.Progress) {
			fmt.Printf("\rProcessed %d/%d emails (%d new transactions)", p.Processed, p.Total, p.NewTransactions)
		}),
	})
	if result != nil && result.Processed > 0 {
		fmt.Println()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync %s: %d emails scanned, %d processed, %d skipped, %d failures, %d new transactions\n",
		result.State, result.Total, result.Processed, result.Skipped, result.Failures, result.NewTransactions)
}

func runLastSync(log zerolog.Logger) {
	fs := flag.NewFlagSet("last-sync", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (optional)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer closeStore()

	ts, err := syncer.LastSync(ctx, st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read last sync time")
	}
	if ts.IsZero() {
		fmt.Println("Never synced.")
		return
	}
	fmt.Printf("Last sync: %s (%s ago)\n", ts.Format(time.RFC3339), time.Since(ts).Round(time.Second))
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (optional)")
	limit := fs.Int("limit", 20, "Number of recent transactions to show")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create store")
	}
	defer closeStore()

	txs, err := st.ListRecent(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for i, tx := range txs {
		fmt.Printf("\n%d. %s\n", i+1, tx.Description)
		fmt.Printf("   Date:      %s\n", tx.Date)
		fmt.Printf("   Amount:    %s %s (%s)\n", tx.Amount.StringFixed(2), tx.Currency, tx.Direction)
		if tx.Category != "" {
			fmt.Printf("   Category:  %s\n", tx.Category)
		}
		if tx.Merchant != "" {
			fmt.Printf("   Merchant:  %s\n", tx.Merchant)
		}
		if tx.IsDuplicate {
			fmt.Printf("   Duplicate (excluded from totals)\n")
		}
		if tx.Reverses != "" {
			fmt.Printf("   Reverses:  %s\n", tx.Reverses)
		}
		if tx.ReversedBy != "" {
			fmt.Printf("   Reversed by %s\n", tx.ReversedBy)
		}
	}

	totals, err := st.Totals(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute totals")
	}
	fmt.Println("\n=== Totals ===")
	fmt.Printf("Income:  %s\n", totals.Income.StringFixed(2))
	fmt.Printf("Expense: %s\n", totals.Expense.StringFixed(2))

	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list subscriptions")
	}
	if len(subs) > 0 {
		fmt.Printf("\n=== Subscriptions (%d) ===\n", len(subs))
		for _, sub := range subs {
			fmt.Printf("  %-20s %s %s / %s\n", sub.Name, sub.Amount.StringFixed(2), sub.Currency, sub.BillingCycle)
		}
	}
	fmt.Println()
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreBigQuery:
		st, err := infraBQ.NewStore(ctx, cfg.ProjectID, cfg.DatasetID)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return inmemory.NewStore(), func() {}, nil
	}
}

func buildExtractor(ctx context.Context, cfg *config.Config) (extract.Extractor, error) {
	switch cfg.Extractor {
	case config.ExtractorGemini:
		return extract.NewGeminiExtractor(ctx, cfg.Model)
	default:
		return extract.NewPatternExtractor(), nil
	}
}
