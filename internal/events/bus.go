package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventSignalReady       EventType = "SIGNAL_READY"
	EventSignalWatching    EventType = "SIGNAL_WATCHING"
	EventSignalActive      EventType = "SIGNAL_ACTIVE"
	EventSignalClosed      EventType = "SIGNAL_CLOSED"
	EventTradeOpened       EventType = "TRADE_OPENED"
	EventTradeClosed       EventType = "TRADE_CLOSED"
	EventCooldownStarted   EventType = "COOLDOWN_STARTED"
	EventPriceUpdate       EventType = "PRICE_UPDATE"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer cannot block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalTransition publishes a lifecycle status change for a signal
func (eb *EventBus) PublishSignalTransition(eventType EventType, signalID, instrument, status string) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"signal_id":  signalID,
			"instrument": instrument,
			"status":     status,
		},
	})
}

// PublishAnalysisCompleted publishes the outcome of a composer run
func (eb *EventBus) PublishAnalysisCompleted(analysisID, instrument, decision string) {
	eb.Publish(Event{
		Type: EventAnalysisCompleted,
		Data: map[string]interface{}{
			"analysis_id": analysisID,
			"instrument":  instrument,
			"decision":    decision,
		},
	})
}

// PublishPriceUpdate publishes a fresh price for an instrument
func (eb *EventBus) PublishPriceUpdate(instrument string, price float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"instrument": instrument,
			"price":      price,
		},
	})
}

// PublishCooldownStarted publishes a new cooldown window
func (eb *EventBus) PublishCooldownStarted(owner, kind string, netPnL float64, expiresAt time.Time) {
	eb.Publish(Event{
		Type: EventCooldownStarted,
		Data: map[string]interface{}{
			"owner":      owner,
			"kind":       kind,
			"net_pnl":    netPnL,
			"expires_at": expiresAt,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source string, err error) {
	eb.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		},
	})
}
