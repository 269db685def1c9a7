// Command backoffice serves the back-office API and runs its maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backoffice/auth"
	"backoffice/automation"
	"backoffice/config"
	"backoffice/database"
	"backoffice/invoice"
	"backoffice/loader"
	"backoffice/logging"
	"backoffice/realtime"
	"backoffice/scheduler"
)

const shutdownTimeout = 15 * time.Second

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "backoffice",
	Short:        "Small-business back office: leads, customers, works, invoices and accounts",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP API, the realtime socket and the overdue-invoice job.

Pending migrations are applied on start. The config file is watched and
reloaded when it changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// env is what every command needs: settings, a logger and an open database.
type env struct {
	cfg config.Config
	log *zap.Logger
	db  *sqlx.DB
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) close() {
	e.db.Close()
	_ = e.log.Sync()
}

func (e *env) context(parent context.Context) context.Context {
	return logging.WithContext(parent, e.log)
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(e.context(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loader.InitDatabase(ctx, e.db); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	e.log.Info("database ready", zap.String("driver", e.cfg.Database.Driver))

	issuer := auth.NewIssuer(e.cfg.Auth.JWTSecret, e.cfg.Auth.TokenTTL)
	sessions := auth.NewService(e.db, issuer)

	hub := realtime.NewHub(e.log)
	go hub.Run(ctx)

	invoices := invoice.NewService(e.db, func() int { return config.Get().Invoice.DefaultDueDays })

	var printer invoice.Printer
	if e.cfg.PDF.Enabled {
		printer = automation.NewPDFPrinter(e.cfg.PDF.BrowserBin, e.log)
	}

	jobs := scheduler.New(e.log)
	if err := jobs.AddOverdueJob(e.cfg.Invoice.OverdueSchedule, invoices, hub); err != nil {
		return err
	}
	jobs.Start()

	if err := config.Watch(ctx, e.log, nil); err != nil {
		e.log.Warn("config file will not be reloaded", zap.Error(err))
	}

	srv := &http.Server{
		Addr: e.cfg.Server.Addr,
		Handler: NewRouter(&App{
			DB:       e.db,
			Log:      e.log,
			Sessions: sessions,
			Hub:      hub,
			Invoices: invoices,
			Printer:  printer,
			Config:   e.cfg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return e.context(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server start error: %w", err)
		}
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	jobs.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
