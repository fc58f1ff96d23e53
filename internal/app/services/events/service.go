// Package events implements the append-only event log service. The engine
// writes events as an audit side channel and never reads them back to drive
// decisions.
package events

import (
	"context"

	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/storage"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

// Service appends and queries domain events.
type Service struct {
	store storage.EventStore
	log   *logger.Logger
}

// New constructs an event log service.
func New(store storage.EventStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Service{store: store, log: log}
}

// Append records an event against a resource and returns it with its
// assigned id, block height and timestamp.
func (s *Service) Append(ctx context.Context, resourceID string, data event.Data) (event.Event, error) {
	evt, err := s.store.AppendEvent(ctx, resourceID, data)
	if err != nil {
		return event.Event{}, err
	}
	s.log.WithField("event_id", evt.ID).
		WithField("resource_id", resourceID).
		WithField("type", string(data.Type)).
		Debug("event appended")
	return evt, nil
}

// ListByResource returns events for a resource after the given id.
func (s *Service) ListByResource(ctx context.Context, resourceID string, startAfter int64, limit int) ([]event.Event, error) {
	return s.store.ListEvents(ctx, resourceID, startAfter, limit)
}

// List returns all events after the given id.
func (s *Service) List(ctx context.Context, startAfter int64, limit int) ([]event.Event, error) {
	return s.store.ListAllEvents(ctx, startAfter, limit)
}
