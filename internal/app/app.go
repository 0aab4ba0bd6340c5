package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/db"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// App wires the full backend: postgres, external clients, repos, services
// and one of the two chain drivers (Temporal runner or DB polling worker).
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Repos    Repos
	Clients  Clients
	Services Services

	cancel context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clientset, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, reposet, clientset)
	if err != nil {
		clientset.close()
		log.Sync()
		return nil, err
	}

	return &App{
		Log:      log,
		DB:       theDB,
		Repos:    reposet,
		Clients:  clientset,
		Services: serviceset,
	}, nil
}

// StartWorkers launches whichever chain driver was wired. Idempotent.
func (a *App) StartWorkers() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.TemporalRunner != nil {
		return a.Services.TemporalRunner.Start(ctx)
	}
	if a.Services.Worker != nil {
		a.Services.Worker.Start(ctx)
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
