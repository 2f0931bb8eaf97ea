package api

import (
	"context"

	"github.com/soaringjerry/modern360/internal/db"
	"github.com/soaringjerry/modern360/internal/services"
)

// Store is everything the two apps need from persistence.
type Store interface {
	services.AuthStore
	services.DirectoryStore
	services.RosterStore
	services.InvitationStore
	services.ResponseStore
	services.DeletionStore
	services.Auditor
	services.ReportStore
	services.AnalyticsStore
	services.BootstrapStore
	Ping(ctx context.Context) error
}

var _ Store = (*db.SQLiteStore)(nil)
