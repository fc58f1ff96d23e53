package app

import (
	"context"

	"github.com/PrismoFinance/bounties/internal/app/services/bounties"
	"github.com/PrismoFinance/bounties/internal/app/services/events"
	"github.com/PrismoFinance/bounties/internal/app/services/execution"
	"github.com/PrismoFinance/bounties/internal/app/services/scheduler"
	"github.com/PrismoFinance/bounties/internal/app/services/triggers"
	"github.com/PrismoFinance/bounties/internal/app/storage"
	"github.com/PrismoFinance/bounties/internal/app/storage/memory"
	"github.com/PrismoFinance/bounties/internal/app/system"
	"github.com/PrismoFinance/bounties/internal/app/venue"
	"github.com/PrismoFinance/bounties/internal/config"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

// Stores bundles the persistence interfaces the application needs. Any nil
// store defaults to the shared in-memory implementation.
type Stores struct {
	Bounties    storage.BountyStore
	Triggers    storage.TriggerStore
	Events      storage.EventStore
	EscrowTasks storage.EscrowTaskStore
}

// Collaborators bundles the external services the engine calls out to.
type Collaborators struct {
	Venue     venue.Venue
	Bank      venue.Bank
	Delegator venue.Delegator
	Addresses venue.AddressValidator
}

// Application wires the bounty engine's services together.
type Application struct {
	Config *config.Config
	Log    *logger.Logger

	Bounties  *bounties.Service
	Triggers  *triggers.Service
	Events    *events.Service
	Execution *execution.Service
	Scheduler *scheduler.Scheduler

	manager *system.Manager
}

// New constructs a fully wired application.
func New(cfg *config.Config, stores Stores, collab Collaborators, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Bounties == nil || stores.Triggers == nil || stores.Events == nil || stores.EscrowTasks == nil {
		mem := memory.New()
		if stores.Bounties == nil {
			stores.Bounties = mem
		}
		if stores.Triggers == nil {
			stores.Triggers = mem
		}
		if stores.Events == nil {
			stores.Events = mem
		}
		if stores.EscrowTasks == nil {
			stores.EscrowTasks = mem
		}
	}

	eventSvc := events.New(stores.Events, log.WithField("component", "events"))
	triggerSvc := triggers.New(stores.Triggers, collab.Venue, log.WithField("component", "triggers"))
	bountySvc := bounties.New(
		stores.Bounties,
		stores.EscrowTasks,
		triggerSvc,
		eventSvc,
		collab.Venue,
		collab.Bank,
		collab.Addresses,
		cfg,
		log.WithField("component", "bounties"),
	)
	execSvc := execution.New(
		stores.Bounties,
		stores.EscrowTasks,
		triggerSvc,
		eventSvc,
		collab.Venue,
		collab.Bank,
		collab.Delegator,
		cfg,
		log.WithField("component", "execution"),
	)
	sched := scheduler.New(
		stores.Bounties,
		stores.EscrowTasks,
		triggerSvc,
		execSvc,
		cfg,
		log.WithField("component", "scheduler"),
	)

	manager := system.NewManager()
	if err := manager.Register(sched); err != nil {
		return nil, err
	}

	return &Application{
		Config:    cfg,
		Log:       log,
		Bounties:  bountySvc,
		Triggers:  triggerSvc,
		Events:    eventSvc,
		Execution: execSvc,
		Scheduler: sched,
		manager:   manager,
	}, nil
}

// Start starts the background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops the background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
