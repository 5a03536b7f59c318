package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreschagin/research-monitor/internal/application/usecase"
	"github.com/dreschagin/research-monitor/internal/domain/service"
	"github.com/dreschagin/research-monitor/internal/infrastructure/openaire"
	"github.com/dreschagin/research-monitor/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/research-monitor/internal/infrastructure/registry"
	s3storage "github.com/dreschagin/research-monitor/internal/infrastructure/storage/s3"
	"github.com/dreschagin/research-monitor/pkg/config"
	"github.com/dreschagin/research-monitor/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "monitorctl",
		Short:         "Operational CLI for the research metadata monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify OpenAIRE API credentials and connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadEnvironment()
			if err != nil {
				return err
			}

			client := newGraphClient(cfg, log)
			result := usecase.NewTestConnectionUseCase(client, log).Execute(cmd.Context())
			printJSON(result)
			if !result.OK {
				return fmt.Errorf("connection test failed: %s", result.Error)
			}
			return nil
		},
	}
}

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle and print the run summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadEnvironment()
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			roster, err := registry.LoadYAMLRegistry(cfg.Collector.OrganizationsFile)
			if err != nil {
				return fmt.Errorf("load organization registry: %w", err)
			}

			snapshotRepo := postgres.NewPostgresSnapshotRepository(db)
			alertRepo := postgres.NewPostgresAlertRepository(db)
			evaluator := service.NewRuleEvaluator(thresholdsFrom(cfg))

			evaluateUC := usecase.NewEvaluateAlertsUseCase(snapshotRepo, alertRepo, evaluator, nil, nil, log)
			runUC := usecase.NewRunCollectionUseCase(
				roster, newGraphClient(cfg, log), snapshotRepo, evaluateUC,
				nil, nil, nil, nil, log, cfg.Collector.Parallelism,
			)

			summary, err := runUC.Execute(cmd.Context())
			if summary != nil {
				printJSON(summary)
			}
			return err
		},
	}
}

func newExportCmd() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive the latest snapshots to S3",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadEnvironment()
			if err != nil {
				return err
			}
			if !cfg.S3.Enabled {
				return fmt.Errorf("S3 export storage is disabled, set S3_ENABLED=true")
			}

			date := time.Now().UTC()
			if dateFlag != "" {
				date, err = time.Parse("2006-01-02", dateFlag)
				if err != nil {
					return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
				}
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			storage, err := s3storage.NewExportStorage(cmd.Context(), s3storage.Config{
				Bucket:          cfg.S3.Bucket,
				Region:          cfg.S3.Region,
				Endpoint:        cfg.S3.Endpoint,
				AccessKeyID:     cfg.S3.AccessKeyID,
				SecretAccessKey: cfg.S3.SecretAccessKey,
				UsePathStyle:    cfg.S3.UsePathStyle,
				Prefix:          cfg.S3.KeyPrefix,
			})
			if err != nil {
				return fmt.Errorf("initialize export storage: %w", err)
			}

			exportUC := usecase.NewExportSnapshotsUseCase(
				postgres.NewPostgresSnapshotRepository(db), storage, log)
			key, err := exportUC.Execute(cmd.Context(), date)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "export date in YYYY-MM-DD, defaults to today")
	return cmd
}

func loadEnvironment() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func newGraphClient(cfg *config.Config, log *logger.Logger) *openaire.Client {
	return openaire.NewClient(openaire.Options{
		BaseURL:        cfg.OpenAIRE.APIBaseURL,
		AuthURL:        cfg.OpenAIRE.AuthURL,
		ClientID:       cfg.OpenAIRE.ClientID,
		ClientSecret:   cfg.OpenAIRE.ClientSecret,
		RequestTimeout: cfg.OpenAIRE.RequestTimeout,
		PageSize:       cfg.OpenAIRE.PageSize,
		RequestDelay:   cfg.Collector.RequestDelay,
		MaxRetries:     cfg.Collector.MaxRetries,
		BackoffBase:    cfg.Collector.BackoffBase,
		BackoffCap:     cfg.Collector.BackoffCap,
	}, log)
}

func thresholdsFrom(cfg *config.Config) service.Thresholds {
	return service.Thresholds{
		DropPercent:         cfg.Alerts.PublicationDropPercent,
		CriticalDropPercent: cfg.Alerts.CriticalDropPercent,
		StaleDays:           cfg.Alerts.StaleDataDays,
		FreshnessDays:       cfg.Alerts.DataFreshnessDays,
		FreshnessCritical:   cfg.Alerts.FreshnessCriticalDays,
		UnavailableAfter:    time.Duration(cfg.Alerts.UnavailableHours) * time.Hour,
		RecoveryPercent:     cfg.Alerts.RecoveryPercent,
		RecoverySnapshots:   cfg.Alerts.RecoverySnapshots,
	}
}

func printJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render output: %v\n", err)
		return
	}
	fmt.Println(string(raw))
}
