// Package app assembles the services from configuration. Both the API
// server and the standalone worker build on it.
package app

import (
	"fmt"
	"io"
	"net/http"

	"github.com/unclebandit/phishsim-backend/internal/clone"
	"github.com/unclebandit/phishsim-backend/internal/config"
	"github.com/unclebandit/phishsim-backend/internal/controller"
	"github.com/unclebandit/phishsim-backend/internal/db"
	"github.com/unclebandit/phishsim-backend/internal/handler"
	"github.com/unclebandit/phishsim-backend/internal/logger"
	"github.com/unclebandit/phishsim-backend/internal/mailer"
	"github.com/unclebandit/phishsim-backend/internal/queue"
	"github.com/unclebandit/phishsim-backend/internal/repository"
	"github.com/unclebandit/phishsim-backend/internal/repository/bunt"
	"github.com/unclebandit/phishsim-backend/internal/service"
	"github.com/unclebandit/phishsim-backend/internal/token"
)

// OpenStores connects the backend selected by STORE_DRIVER. The returned
// closer releases the underlying connection.
func OpenStores(cfg *config.Config) (*repository.Stores, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverBunt:
		d, err := bunt.Open(cfg.BuntPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bunt store %s: %w", cfg.BuntPath, err)
		}
		logger.WithFields(logger.Fields{"path": cfg.BuntPath}).Info("✅ Embedded store ready")
		return d.Stores(), d, nil
	case config.StoreDriverPostgres:
		conn, err := db.Open(cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repository.NewPostgresStores(conn), conn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func Links(cfg *config.Config) token.Links {
	return token.Links{BaseURL: cfg.BackendURL, Prefix: cfg.APIPrefix}
}

// NewDispatcher builds the email dispatcher with the configured transport,
// attachment root and send rate.
func NewDispatcher(cfg *config.Config, stores *repository.Stores) (*service.Dispatcher, error) {
	m, err := mailer.New(cfg)
	if err != nil {
		return nil, err
	}
	return &service.Dispatcher{
		CampaignRepo:  stores.Campaigns,
		ResultRepo:    stores.Results,
		TargetRepo:    stores.Targets,
		CatalogRepo:   stores.Catalog,
		PhishletRepo:  stores.Phishlets,
		EventRepo:     stores.Events,
		Mailer:        m,
		Attachments:   &mailer.FileStore{Root: cfg.AttachmentDir},
		Links:         Links(cfg),
		Limiter:       service.NewLimiter(cfg.SendRate),
		MailerTimeout: cfg.MailerTimeout,
		Lease:         cfg.DispatchLease,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenQueue dials RabbitMQ when AMQP_URL is set. Otherwise jobs stay in
// process and inProcess is true, so the caller must start a worker itself.
func OpenQueue(cfg *config.Config) (q queue.Queue, closer io.Closer, inProcess bool, err error) {
	if cfg.AMQPURL == "" {
		return queue.NewInMemoryQueue(), nopCloser{}, true, nil
	}
	aq, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		return nil, nil, false, err
	}
	logger.Info("✅ Connected to RabbitMQ")
	return aq, aq, false, nil
}

// NewHandler builds the HTTP-facing services on top of stores.
func NewHandler(cfg *config.Config, stores *repository.Stores, d service.CampaignDispatcher, q queue.Queue) http.Handler {
	tracker := &service.TrackerService{ResultRepo: stores.Results, EventRepo: stores.Events}

	campaigns := &service.CampaignService{
		CampaignRepo: stores.Campaigns,
		ResultRepo:   stores.Results,
		TargetRepo:   stores.Targets,
		Dispatcher:   d,
		Queue:        q,
		Topic:        cfg.DispatchQueue,
	}
	phishlets := &service.PhishletService{
		PhishletRepo: stores.Phishlets,
		Fetcher:      clone.NewFetcher(cfg.CloneTimeout, cfg.CloneUserAgent),
		Tracker:      tracker,
		Links:        Links(cfg),
	}

	return handler.NewRouter(cfg.APIPrefix, handler.Controllers{
		Campaigns: &controller.CampaignController{CampaignService: campaigns},
		Phishlets: &controller.PhishletController{PhishletService: phishlets},
		Tracker:   &controller.TrackerController{Tracker: tracker},
	})
}
