// Command modern360 runs the user and admin apps and the database tooling.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/api"
	"github.com/soaringjerry/modern360/internal/config"
	"github.com/soaringjerry/modern360/internal/db"
	"github.com/soaringjerry/modern360/internal/logging"
	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/services"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modern360",
	Short: "Modern360 feedback platform",
	Long: `modern360 serves the participant app and the operator app of the
360-degree feedback platform and manages its database.

Settings come from an optional YAML file and M360_* environment variables.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("M360_CONFIG"), "path to the YAML config file")
}

// env is what every subcommand needs: settings, a logger and a migrated,
// bootstrapped store.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	conn   *sql.DB
	store  *db.SQLiteStore
	schema services.ProjectionSchema
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	applied, err := db.RunMigrations(ctx, conn, cfg.Database.MigrationsDir)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("files", applied))
	}
	store, err := db.NewSQLiteStore(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := services.Bootstrap(ctx, store, logger); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bootstrap system records: %w", err)
	}
	schema := services.DefaultProjectionSchema()
	if len(cfg.Projection.Columns) > 0 {
		if schema, err = services.NewProjectionSchema(cfg.Projection.Columns); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("projection columns: %w", err)
		}
	}
	return &env{cfg: cfg, logger: logger, conn: conn, store: store, schema: schema}, nil
}

func (e *env) close() {
	if err := e.conn.Close(); err != nil {
		e.logger.Warn("close database", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// mailer builds the configured transport. The returned func releases it.
func (e *env) mailer() (m360mail.Mailer, func(), error) {
	mc := e.cfg.Mail
	switch mc.Transport {
	case "smtp":
		m, err := m360mail.NewSMTPMailer(m360mail.SMTPConfig{
			Host:     mc.Host,
			Port:     mc.Port,
			Username: mc.Username,
			Password: mc.Password.Value(),
			From:     mc.From,
		})
		return m, func() {}, err
	case "nats":
		nc, err := m360mail.ConnectNATS(mc.NATSURL, "modern360", e.logger)
		if err != nil {
			return nil, nil, err
		}
		m, err := m360mail.NewNATSMailer(nc, mc.NATSSubject)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return m, func() {
			if err := nc.Drain(); err != nil {
				e.logger.Warn("drain nats", zap.Error(err))
			}
		}, nil
	default:
		return m360mail.NewLogMailer(e.logger), func() {}, nil
	}
}

func buildInfo() api.BuildInfo {
	return api.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serve runs srv on addr until ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, srv *echo.Echo, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("version", version))
		errCh <- srv.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
