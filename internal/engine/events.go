package engine

import (
	"time"

	"github.com/rs/xid"
)

// Event names emitted by the engine. Consumed by the websocket hub and the
// external indexer via the redis channel.
const (
	EventMarketCreated   = "market-created"
	EventMarketCancelled = "market-cancelled"
	EventBetPlaced       = "bet-placed"
	EventMarketResolved  = "market-resolved"
	EventAdminOverride   = "admin-override"
	EventWinningsClaimed = "winnings-claimed"
	EventRefundClaimed   = "refund-claimed"
)

// Event is a flat key-value record describing a single settlement action.
type Event struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields"`
}

// Notifier receives engine events. Implementations must not block; the engine
// emits events while serving the originating request.
type Notifier interface {
	Publish(e Event)
}

// MultiNotifier fans an event out to several notifiers in order.
type MultiNotifier []Notifier

// Publish implements Notifier.
func (m MultiNotifier) Publish(e Event) {
	for _, n := range m {
		n.Publish(e)
	}
}

type noopNotifier struct{}

func (noopNotifier) Publish(Event) {}

func (e *Engine) emit(name string, fields map[string]interface{}) {
	e.notifier.Publish(Event{
		ID:     xid.New().String(),
		Name:   name,
		At:     time.Now(),
		Fields: fields,
	})
}
