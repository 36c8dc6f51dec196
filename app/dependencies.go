package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/config"
	"github.com/upb/academy-hub/guard"
	"github.com/upb/academy-hub/handlers"
	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/preferences"
	"github.com/upb/academy-hub/repositories"
	"github.com/upb/academy-hub/repositories/postgres"
	"github.com/upb/academy-hub/services/account"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/services/providers"
	"github.com/upb/academy-hub/services/providers/openai"
	"github.com/upb/academy-hub/services/ratelimit"
	"github.com/upb/academy-hub/services/rules"
	"go.uber.org/zap"
)

// Version is stamped at build time:
// -ldflags "-X github.com/upb/academy-hub/app.Version=1.4.0"
var Version = "dev"

// auditStopTimeout bounds how long shutdown waits for queued audit events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection; every handle is
// constructed once here and shared by all requests.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Observability
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Identity and sessions
	Identity        *identity.Provider
	Authenticator   *auth.Authenticator
	ProfileListener *postgres.ProfileListener

	// Services
	AuditService  *audit.AuditService
	Accounts      *account.Service
	Rules         *rules.Service
	SignInLimiter *ratelimit.Limiter

	// HTTP
	AuthHandler        *auth.Handler
	AuthMiddleware     *middleware.AuthMiddleware
	Guard              *guard.Guard
	HealthHandler      *handlers.HealthHandler
	AccountHandler     *handlers.AccountHandler
	RulesHandler       *handlers.RulesHandler
	PreferencesHandler *handlers.PreferencesHandler
	LiveHandler        *handlers.LiveHandler

	stopBackground context.CancelFunc
	background     sync.WaitGroup
	closeOnce      sync.Once
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initObservability(cfg)

	if err := deps.initIdentity(cfg); err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initBackground(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize profile listener: %w", err)
	}

	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the pool and makes sure the schema exists
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initObservability(cfg *config.Config) {
	d.Registry = prometheus.NewRegistry()
	if !cfg.Observability.MetricsEnabled {
		return
	}
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

func (d *Dependencies) initIdentity(cfg *config.Config) error {
	provider, err := identity.NewProvider(identity.Config{
		ProjectID:     cfg.Provider.ProjectID,
		PrivateKeyPEM: cfg.Provider.PrivateKeyPEM(),
		JWKSURL:       cfg.Identity.JWKSURL,
		Issuer:        cfg.Identity.Issuer,
		Audience:      cfg.Identity.Audience,
		JWKSCacheTTL:  cfg.Identity.JWKSCacheTTL,
		HTTPTimeout:   cfg.Identity.HTTPTimeout,
		LocalTokenTTL: cfg.Identity.LocalTokenTTL,
	}, d.Repos.Credentials, d.Logger)
	if err != nil {
		return err
	}

	d.Identity = provider
	d.Authenticator = auth.NewAuthenticator(provider, d.Repos.Profiles, d.Logger)
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	d.AuditService = audit.NewAuditService(d.Repos.AuditLogs, d.Logger, audit.DefaultConfig())
	if err := d.AuditService.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Accounts = account.NewService(d.Repos, d.TxManager, d.Identity, d.Logger)
	d.Rules = rules.NewService(newRulesProvider(cfg.Rules), cfg.Rules.Model, d.Logger)
	if !d.Rules.Enabled() {
		d.Logger.Warn("OPENAI_API_KEY not set, security rules assistant disabled")
	}

	limits := ratelimit.DefaultConfig()
	limits.MaxAttempts = cfg.SignIn.MaxAttempts
	limits.Window = cfg.SignIn.Window
	d.SignInLimiter = ratelimit.NewLimiter(d.DB.DB, limits, d.Logger)
	return nil
}

// newRulesProvider returns the chat-completion provider, or an untyped nil
// when no API key is configured
func newRulesProvider(cfg config.RulesConfig) providers.Provider {
	if !cfg.Enabled() {
		return nil
	}

	pc := providers.DefaultProviderConfig()
	pc.APIKey = cfg.APIKey
	pc.BaseURL = cfg.BaseURL
	pc.Timeout = cfg.Timeout
	pc.MaxRetries = cfg.MaxRetries
	return openai.NewOpenAIAdapter(pc)
}

// initBackground starts the LISTEN connection feeding live auth contexts
// and the sign-in attempt cleanup worker
func (d *Dependencies) initBackground(cfg *config.Config) error {
	listener, err := postgres.NewProfileListener(cfg.Database.DSN(), d.Repos.Profiles, d.Logger)
	if err != nil {
		return err
	}
	d.ProfileListener = listener

	ctx, cancel := context.WithCancel(context.Background())
	d.stopBackground = cancel

	d.background.Add(2)
	go func() {
		defer d.background.Done()
		if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
			d.Logger.Error("profile listener stopped", zap.Error(err))
		}
	}()
	go func() {
		defer d.background.Done()
		d.SignInLimiter.RunCleanup(ctx)
	}()
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	secure := cfg.IsProduction()

	d.AuthHandler = auth.NewHandler(d.Identity, d.Repos.Profiles, d.AuditService, d.Metrics, secure, d.Logger).
		WithThrottle(d.SignInLimiter)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Authenticator, d.AuditService, d.Logger)
	d.Guard = guard.New(d.Authenticator, d.Metrics, d.Logger)

	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.AuditService, d.Rules.Enabled(), Version, d.Logger)
	d.AccountHandler = handlers.NewAccountHandler(d.Accounts, d.Metrics, d.Logger)
	d.RulesHandler = handlers.NewRulesHandler(d.Rules, d.AuditService, d.Metrics, d.Logger)
	d.PreferencesHandler = handlers.NewPreferencesHandler(secure, newPreferenceDefaults(cfg.Preferences.File), d.Logger)
	d.LiveHandler = handlers.NewLiveHandler(d.Authenticator, d.ProfileListener, cfg.CORS.AllowedOrigins, d.Metrics, d.Logger)
}

// newPreferenceDefaults returns the server-wide preference file, or an
// untyped nil when none is configured
func newPreferenceDefaults(path string) preferences.Store {
	if path == "" {
		return nil
	}
	return preferences.NewFileStore(path)
}

// Close gracefully shuts down all dependencies. It is safe to call more than once.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	d.closeOnce.Do(func() {
		d.Logger.Info("shutting down dependencies")

		if d.stopBackground != nil {
			d.stopBackground()
			done := make(chan struct{})
			go func() {
				d.background.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		if d.ProfileListener != nil {
			if err := d.ProfileListener.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close profile listener: %w", err))
			}
		}

		if d.AuditService != nil {
			if err := d.AuditService.Stop(auditStopTimeout); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
			}
		}

		if d.RepoFactory != nil {
			if err := d.RepoFactory.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			} else {
				d.Logger.Info("database connection closed")
			}
		}

		_ = d.Logger.Sync()
	})

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
