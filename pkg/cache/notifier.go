package cache

import (
	"predix-engine/internal/engine"
	"github.com/sirupsen/logrus"
)

// EventPublisher forwards engine events to the settlement event channel so
// the external indexer can consume them. Publish failures are logged and
// dropped; the engine state change has already committed.
type EventPublisher struct{}

// NewEventPublisher creates a redis-backed engine notifier.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

// Publish implements engine.Notifier.
func (p *EventPublisher) Publish(e engine.Event) {
	if err := PublishSettlementEvent(e); err != nil {
		logrus.WithError(err).WithField("event", e.Name).Warn("failed to publish settlement event")
	}
}
