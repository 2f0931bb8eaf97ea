package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/api"
	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/middleware"
)

func init() {
	rootCmd.AddCommand(userCmd, adminCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Serve the participant app",
	Long: `Serve email-code login, the user dashboard and the invitation
response form on user.addr.`,
	Args: cobra.NoArgs,
	RunE: runUser,
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Serve the operator app",
	Long: `Serve the /admin app on admin.addr. Requires admin.password or
admin.password_hash.`,
	Args: cobra.NoArgs,
	RunE: runAdmin,
}

func runUser(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	mailer, release, err := rt.mailer()
	if err != nil {
		return err
	}
	defer release()

	cfg := rt.cfg
	signer, err := middleware.NewSigner(cfg.Session.Secret.Value(), middleware.ScopeUser)
	if err != nil {
		return err
	}
	m := metrics.New("user")
	svc, err := api.NewServices(rt.store, mailer, api.ServiceOptions{
		BaseURL:    cfg.User.BaseURL,
		CodeTTL:    cfg.Login.CodeTTL.Duration(),
		Projection: rt.schema,
		UserSigner: signer,
		UserTTL:    cfg.Session.TTL.Duration(),
		Logger:     rt.logger.Named("user"),
		Metrics:    m,
	})
	if err != nil {
		return err
	}
	srv := api.NewUserServer(rt.store, svc, signer, api.Options{
		Logger:        rt.logger.Named("user.http"),
		Metrics:       m,
		CookieSecure:  cfg.Session.CookieSecure,
		RatePerMinute: cfg.Login.RatePerMinute,
		StaticDir:     cfg.User.StaticDir,
		Build:         buildInfo(),
	})
	rt.logger.Info("user app starting", zap.String("base_url", cfg.User.BaseURL), zap.String("mail", cfg.Mail.Transport))
	return serve(ctx, srv, cfg.User.Addr, rt.logger)
}

func runAdmin(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	if err := cfg.RequireAdminCredentials(); err != nil {
		return err
	}
	mailer, release, err := rt.mailer()
	if err != nil {
		return err
	}
	defer release()

	signer, err := middleware.NewSigner(cfg.Session.Secret.Value(), middleware.ScopeAdmin)
	if err != nil {
		return err
	}
	m := metrics.New("admin")
	svc, err := api.NewServices(rt.store, mailer, api.ServiceOptions{
		BaseURL:           cfg.User.BaseURL,
		CodeTTL:           cfg.Login.CodeTTL.Duration(),
		Projection:        rt.schema,
		AdminSigner:       signer,
		AdminTTL:          cfg.Session.AdminTTL.Duration(),
		AdminUsername:     cfg.Admin.Username,
		AdminPassword:     cfg.Admin.Password.Value(),
		AdminPasswordHash: cfg.Admin.PasswordHash.Value(),
		Logger:            rt.logger.Named("admin"),
		Metrics:           m,
	})
	if err != nil {
		return err
	}
	srv := api.NewAdminServer(rt.store, svc, signer, api.Options{
		Logger:        rt.logger.Named("admin.http"),
		Metrics:       m,
		CookieSecure:  cfg.Session.CookieSecure,
		RatePerMinute: cfg.Login.RatePerMinute,
		Build:         buildInfo(),
	})
	return serve(ctx, srv, cfg.Admin.Addr, rt.logger)
}
