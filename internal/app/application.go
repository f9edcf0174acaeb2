// Package app composes the domain services over their stores and manages
// their lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/vanitypay/vanitypay/internal/app/services/accounts"
	"github.com/vanitypay/vanitypay/internal/app/services/requests"
	"github.com/vanitypay/vanitypay/internal/app/storage"
	"github.com/vanitypay/vanitypay/internal/app/storage/memory"
	"github.com/vanitypay/vanitypay/internal/app/system"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts storage.AccountStore
	Requests storage.RequestStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts *accounts.Service
	Requests *requests.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}

	manager := system.NewManager()

	acctService := accounts.New(stores.Accounts, log)
	reqService := requests.New(stores.Accounts, stores.Requests, log)

	for _, name := range []string{"accounts", "requests"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Accounts: acctService,
		Requests: reqService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
