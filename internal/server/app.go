// Package server wires the Flasky account services together and runs the
// long-lived parts of the process: the mail dispatcher and the gRPC health
// endpoint. App replaces global application and database singletons; every
// collaborator is built once in NewApp and passed down explicitly.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/flasky/internal/logging"
	"github.com/dmitrijs2005/flasky/internal/server/auth"
	"github.com/dmitrijs2005/flasky/internal/server/config"
	"github.com/dmitrijs2005/flasky/internal/server/mail"
	"github.com/dmitrijs2005/flasky/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/flasky/internal/server/services"
	"github.com/dmitrijs2005/flasky/internal/server/storage"

	gs "github.com/dmitrijs2005/flasky/internal/server/grpc"
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mail        *mail.Dispatcher

	Accounts *services.AccountService
	Roles    *services.RoleService
	Profiles *services.ProfileService
}

func NewApp(c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.Debug)
	if err != nil {
		return nil, err
	}
	return NewAppWithLogger(c, logger)
}

// NewAppWithLogger builds the application around an existing logger.
func NewAppWithLogger(c *config.Config, logger logging.Logger) (*App, error) {
	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	dispatcher, err := newDispatcher(c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	signer := auth.NewSigner([]byte(c.SecretKey))

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		mail:        dispatcher,
		Accounts:    services.NewAccountService(db, rm, signer, dispatcher, c, logger),
		Roles:       services.NewRoleService(db, rm, logger),
		Profiles:    services.NewProfileService(db, rm, storage.NewAvatarStore(c), logger),
	}, nil
}

func newDispatcher(c *config.Config, logger logging.Logger) (*mail.Dispatcher, error) {
	renderer, err := mail.NewRenderer(c.MailSubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("mail templates: %w", err)
	}

	var sender mail.Sender
	if c.MailSuppressSend {
		sender = mail.NewLogSender(logger)
	} else {
		sender, err = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     c.MailServer,
			Port:     c.MailPort,
			UseTLS:   c.MailUseTLS,
			Username: c.MailUsername,
			Password: c.MailPassword,
			From:     c.MailSender,
		})
		if err != nil {
			return nil, err
		}
	}

	return mail.NewDispatcher(renderer, sender, c.MailWorkers, c.MailQueueSize, logger), nil
}

// DB exposes the connection pool to tooling that runs next to the app.
func (app *App) DB() *sql.DB {
	return app.db
}

func (app *App) Logger() logging.Logger {
	return app.logger
}

// Deploy brings the schema up to date and syncs the role table.
func (app *App) Deploy(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := app.Roles.InsertRoles(ctx); err != nil {
		return err
	}
	return nil
}

// StartMail delivers queued mail in the background for short-lived tools
// that never call Run. The returned stop closes intake and waits until
// everything queued so far has been handed to the sender.
func (app *App) StartMail(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.mail.Run(ctx)
	}()
	return func() {
		app.mail.Close()
		<-done
	}
}

// Close releases the database and flushes the logger.
func (app *App) Close() error {
	app.mail.Close()
	if s, ok := app.logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
	return app.db.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run deploys the schema and roles, then serves until ctx is cancelled or
// the process receives a termination signal.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.Deploy(ctx); err != nil {
		return err
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = app.mail.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")

	return nil
}
