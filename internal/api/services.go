package api

import (
	"time"

	"go.uber.org/zap"

	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/middleware"
	"github.com/soaringjerry/modern360/internal/services"
)

// Services is the set of domain services behind both routers.
type Services struct {
	Auth        *services.AuthService
	AdminAuth   *services.AdminAuthService
	Directory   *services.DirectoryService
	Roster      *services.RosterService
	Invitations *services.InvitationService
	Responses   *services.ResponseService
	Deletion    *services.DeletionService
	Reports     *services.ReportService
	Analytics   *services.AnalyticsService
}

type ServiceOptions struct {
	BaseURL    string
	CodeTTL    time.Duration
	Projection services.ProjectionSchema

	UserSigner *middleware.Signer
	UserTTL    time.Duration

	// AdminSigner is nil for the user app; AdminAuth is then left unset.
	AdminSigner       *middleware.Signer
	AdminTTL          time.Duration
	AdminUsername     string
	AdminPassword     string
	AdminPasswordHash string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewServices(store Store, mailer m360mail.Mailer, opts ServiceOptions) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Services{
		Directory:   services.NewDirectoryService(store, logger),
		Roster:      services.NewRosterService(store, logger),
		Invitations: services.NewInvitationService(store, mailer, opts.BaseURL, logger, opts.Metrics),
		Responses:   services.NewResponseService(store, opts.Projection, logger, opts.Metrics),
		Deletion:    services.NewDeletionService(store, store, logger, opts.Metrics),
		Reports:     services.NewReportService(store),
		Analytics:   services.NewAnalyticsService(store),
	}
	var userSign services.TokenSigner
	if opts.UserSigner != nil {
		userSign = opts.UserSigner.Sign
	}
	svc.Auth = services.NewAuthService(store, mailer, userSign, services.AuthOptions{
		BaseURL:  opts.BaseURL,
		CodeTTL:  opts.CodeTTL,
		TokenTTL: opts.UserTTL,
		Logger:   logger,
		Metrics:  opts.Metrics,
	})
	if opts.AdminSigner != nil {
		admin, err := services.NewAdminAuthService(opts.AdminUsername, opts.AdminPassword, opts.AdminPasswordHash,
			opts.AdminSigner.Sign, opts.AdminTTL, opts.Metrics)
		if err != nil {
			return nil, err
		}
		svc.AdminAuth = admin
	}
	return svc, nil
}
