package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/bus"
	"github.com/msgdeck/msgdeck/internal/config"
	"github.com/msgdeck/msgdeck/internal/log"
	httpserver "github.com/msgdeck/msgdeck/internal/server/http"
	"github.com/msgdeck/msgdeck/internal/server/http/subscriptionapi"
	"github.com/msgdeck/msgdeck/internal/service/access"
	"github.com/msgdeck/msgdeck/internal/service/invoice"
	"github.com/msgdeck/msgdeck/internal/service/plan"
	"github.com/msgdeck/msgdeck/internal/service/subscription"
	"github.com/msgdeck/msgdeck/internal/service/usage"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/msgdeck/msgdeck/internal/store/memory"
	"github.com/msgdeck/msgdeck/internal/store/postgres"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "msgdeck"
	shutdownTimeout = 10 * time.Second
)

type Hook func(ctx context.Context, a *App) error

type App struct {
	config *config.Config
	logger *zerolog.Logger

	store    store.Store
	postgres *postgres.Store
	pubsub   *bus.PubSub

	plans         *plan.Service
	invoices      *invoice.Generator
	ledger        *usage.Ledger
	subscriptions *subscription.Service

	beforeRun []Hook
}

// New wires the store, the event bus and every service. It does not start the http server.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(cfg.Logger, serviceName, cfg.GitVersion)

	a := &App{config: cfg, logger: &logger}

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}

	a.pubsub = bus.NewPubSub(ctx, a.logger)

	guard := access.New(a.store.Memberships(), a.logger)

	a.plans = plan.New(a.store.Plans(), a.logger)
	a.invoices = invoice.New(cfg.Billing, a.store, guard, a.pubsub, a.logger)
	a.ledger = usage.New(a.store, guard, a.logger)
	a.subscriptions = subscription.New(a.store, a.plans, a.invoices, guard, a.pubsub, a.logger)

	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.config.Store.Driver {
	case config.DriverMemory:
		db := memory.New()

		for _, p := range plan.Defaults() {
			db.AddPlan(p)
		}

		for _, m := range a.config.Store.Memberships {
			userID, errUser := uuid.Parse(m.UserID)
			tenantID, errTenant := uuid.Parse(m.TenantID)
			if errUser != nil || errTenant != nil {
				return errors.Errorf("invalid membership seed %s/%s", m.UserID, m.TenantID)
			}

			db.AddMembership(userID, tenantID, store.Role(m.Role))
		}

		a.store = db
		a.logger.Warn().Msg("using in-memory store, data is lost on shutdown")

		return nil
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, a.config.Postgres, a.logger)
		if err != nil {
			return err
		}

		a.store = db
		a.postgres = db

		return nil
	}

	return errors.Errorf("unknown store driver %q", a.config.Store.Driver)
}

func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

func (a *App) Plans() *plan.Service {
	return a.plans
}

func (a *App) Subscriptions() *subscription.Service {
	return a.subscriptions
}

// Postgres returns the postgres store; ok is false for the memory driver.
func (a *App) Postgres() (*postgres.Store, bool) {
	return a.postgres, a.postgres != nil
}

func (a *App) OnBeforeRun(hook Hook) {
	a.beforeRun = append(a.beforeRun, hook)
}

// RunServer starts consumers and the http server and blocks until ctx is cancelled
// or the server fails.
func (a *App) RunServer(ctx context.Context) error {
	for _, hook := range a.beforeRun {
		if err := hook(ctx, a); err != nil {
			return err
		}
	}

	if err := a.StartConsumers(); err != nil {
		return err
	}

	handler := subscriptionapi.New(a.plans, a.subscriptions, a.ledger, a.invoices, a.logger)
	server := httpserver.New(
		a.config.Server,
		a.config.Env == "local",
		a.logger,
		httpserver.WithBillingAPI(handler),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(server.Run)

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.logger.Info().Msg("shutting down http server")

		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// StartConsumers subscribes the event log to every topic.
func (a *App) StartConsumers() error {
	consumer := bus.LogConsumer(a.logger)

	for _, topic := range bus.Topics {
		if err := a.pubsub.Subscribe(topic, consumer); err != nil {
			return err
		}
	}

	return nil
}

// Close drains the event bus and releases the store.
func (a *App) Close() {
	a.pubsub.Shutdown()

	if a.postgres != nil {
		a.postgres.Close()
	}
}
