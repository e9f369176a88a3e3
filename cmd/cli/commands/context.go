package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/jakechorley/radflow/internal/config"
	"github.com/jakechorley/radflow/pkg/clients/gmailclient"
	"github.com/jakechorley/radflow/pkg/clients/sheetsclient"
	"github.com/jakechorley/radflow/pkg/core/eligibility"
	"github.com/jakechorley/radflow/pkg/core/registry"
	"github.com/jakechorley/radflow/pkg/core/services"
	"github.com/jakechorley/radflow/pkg/db"
	"github.com/jakechorley/radflow/pkg/directory"
	"github.com/jakechorley/radflow/pkg/notify"
	"github.com/jakechorley/radflow/pkg/postgres"
	"github.com/jakechorley/radflow/pkg/utils"
	"github.com/jakechorley/radflow/pkg/utils/logging"
)

const (
	logDir              = "logs"
	notificationBacklog = 100
	shutdownTimeout     = 10 * time.Second
)

// Options are the root command's persistent flags
type Options struct {
	Env      string
	Verbose  bool
	JSONLogs bool
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg       *config.Config
	Logger    *zap.Logger
	Ctx       context.Context
	Engine    *services.Engine
	Directory *directory.Directory
	Registry  *registry.Registry

	database *postgres.DB
	notifier *notify.EmailNotifier
	closed   bool
}

// Initialized reports whether Init has completed, so an interactive session initialises once
func (app *AppContext) Initialized() bool {
	return app.Engine != nil
}

// Init sets up the logger, config, Google clients, store, registry, directory and engine
func (app *AppContext) Init(ctx context.Context, opts Options) error {
	var err error
	app.Ctx = ctx

	app.Logger, err = logging.InitLogger(opts.Env, logging.Options{
		Dir:         logDir,
		Verbose:     opts.Verbose,
		JSONConsole: opts.JSONLogs,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger.Debug("Starting application")

	app.Cfg, err = config.LoadWithEnv(opts.Env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	var oauthConfig *oauth2.Config
	var token *oauth2.Token
	if app.Cfg.NeedsGoogle() {
		oauthConfig, token, err = app.authorize(ctx, opts.Env)
		if err != nil {
			return err
		}
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return err
	}

	app.Registry = registry.New(store, app.Cfg.Policy, app.Logger)
	if err := app.Registry.Load(ctx); err != nil {
		return err
	}

	app.Directory, err = app.loadDirectory(ctx, oauthConfig, token)
	if err != nil {
		return err
	}

	notifier, approver, err := app.buildNotifications(ctx, oauthConfig, token)
	if err != nil {
		return err
	}

	app.Engine = services.NewEngine(
		app.Registry,
		app.Directory,
		eligibility.New(eligibility.DefaultRules()...),
		notifier,
		approver,
		app.Logger,
	)
	return nil
}

func (app *AppContext) authorize(ctx context.Context, env string) (*oauth2.Config, *oauth2.Token, error) {
	oauthCfg, err := config.LoadOAuthClientWithEnv(env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := utils.DefaultTokenStore()
	if err != nil {
		return nil, nil, err
	}

	token, err := utils.NewAuthorizer(oauthConfig, tokens, env, app.Logger).Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to authorize with Google: %w", err)
	}
	return oauthConfig, token, nil
}

func (app *AppContext) openStore(ctx context.Context) (db.ShiftStore, error) {
	if app.Cfg.DatabaseURL == "" {
		app.Logger.Warn("No databaseURL configured, shifts are kept in memory for this process only")
		return db.NewMemoryStore(), nil
	}

	database, err := postgres.NewDB(ctx, app.Cfg.DatabaseURL, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	applied, err := database.RunMigrations(ctx)
	if err != nil {
		database.Close()
		return nil, err
	}
	if len(applied) > 0 {
		app.Logger.Info("Applied migrations", zap.Strings("files", applied))
	}
	app.database = database
	return database, nil
}

func (app *AppContext) loadDirectory(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token) (*directory.Directory, error) {
	if app.Cfg.DirectoryFile != "" {
		dir, err := directory.LoadFile(app.Cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		app.Logger.Debug("Directory loaded from file", zap.String("path", app.Cfg.DirectoryFile))
		return dir, nil
	}

	client, err := sheetsclient.NewClient(ctx, oauthConfig, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	dir, err := directory.FromSheets(ctx, client, app.Cfg.RadiologistSheetID, app.Cfg.RadiologistsTab, app.Cfg.LocationsTab)
	if err != nil {
		return nil, err
	}
	app.Logger.Debug("Directory loaded from sheet", zap.String("spreadsheet_id", app.Cfg.RadiologistSheetID))
	return dir, nil
}

func (app *AppContext) buildNotifications(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token) (notify.Notifier, notify.ApprovalRequester, error) {
	settings := app.Cfg.Notifications
	if !settings.Enabled {
		return notify.NewLogNotifier(app.Logger), notify.NewLogApprover(app.Logger), nil
	}

	gmail, err := gmailclient.NewClient(ctx, oauthConfig, token, settings.GmailUserID, settings.GmailSender, settings.EmailsPerMinute)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	app.notifier = notify.NewEmailNotifier(gmail, app.Directory, app.Logger, notificationBacklog)

	var approver notify.ApprovalRequester = notify.NewLogApprover(app.Logger)
	if settings.ApproverEmail != "" {
		approver = notify.NewEmailApprover(gmail, settings.ApproverEmail, app.Logger)
	}
	return app.notifier, approver, nil
}

// Close flushes queued notifications and releases the store
func (app *AppContext) Close() error {
	if app.closed {
		return nil
	}
	app.closed = true

	var err error
	if app.Registry != nil {
		err = multierr.Append(err, app.Registry.Close())
	}
	if app.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = multierr.Append(err, app.notifier.Close(ctx))
	}
	if app.database != nil {
		app.database.Close()
	}
	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
	return err
}
