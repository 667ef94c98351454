package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"trading-bot-fleet/application/bootstrap"
	"trading-bot-fleet/internal/infrastructure/config"
	"trading-bot-fleet/internal/infrastructure/persistence/postgres"
	"trading-bot-fleet/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	storeBackend string
	statusOnly   bool

	rootCmd = &cobra.Command{
		Use:           "fleetd",
		Short:         "Жизненный цикл торговых ботов: карантин, пересоздание, дашборды",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP/WebSocket сервис парка ботов",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции PostgreSQL",
		RunE:  runMigrate,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Один проход по истёкшим окнам переобучения",
		RunE:  runSweep,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".env", "путь к .env файлу")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "хранилище ботов: memory, postgres или redis")
	migrateCmd.Flags().BoolVar(&statusOnly, "status", false, "только показать состояние миграций")

	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

func buildApp() (*bootstrap.Application, error) {
	return bootstrap.NewAppBuilder().
		WithConfigFile(configPath).
		WithOption(bootstrap.WithStoreBackend(storeBackend)).
		WithOption(bootstrap.WithLogging()).
		Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	return app.Run(ctx)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext()
	defer stop()

	report, err := app.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d expired=%d errors=%d\n", report.Checked, report.Expired, report.Errors)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.InitGlobal(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Debug); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	db, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := postgres.NewMigrator(db)
	if err := migrator.Load(postgres.Migrations()); err != nil {
		return err
	}

	if !statusOnly {
		if _, err := migrator.Migrate(ctx); err != nil {
			return err
		}
	}

	statuses, err := migrator.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		applied := "-"
		if s.Applied {
			applied = s.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%03d\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, applied)
	}
	return w.Flush()
}
