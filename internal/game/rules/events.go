package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a match event.
type EventType string

const (
	// Turn events
	EventMatchStarted EventType = "MATCH_STARTED"
	EventTurnStarted  EventType = "TURN_STARTED"
	EventTurnEnded    EventType = "TURN_ENDED"
	EventGameOver     EventType = "GAME_OVER"

	// Card events
	EventCardDrawn     EventType = "CARD_DRAWN"
	EventCardBurned    EventType = "CARD_BURNED"
	EventFatigue       EventType = "FATIGUE"
	EventCardPlayed    EventType = "CARD_PLAYED"
	EventSpellCast     EventType = "SPELL_CAST"
	EventTokenSummoned EventType = "TOKEN_SUMMONED"
	EventTokenLost     EventType = "TOKEN_LOST"
	EventReturnedHand  EventType = "RETURNED_TO_HAND"
	EventSplashBonus   EventType = "SPLASH_BONUS"

	// Combat events
	EventAttackDeclared  EventType = "ATTACK_DECLARED"
	EventShieldPopped    EventType = "SHIELD_POPPED"
	EventDamageDealt     EventType = "DAMAGE_DEALT"
	EventPlayerDamaged   EventType = "PLAYER_DAMAGED"
	EventPlayerHealed    EventType = "PLAYER_HEALED"
	EventCreatureHealed  EventType = "CREATURE_HEALED"
	EventEnraged         EventType = "ENRAGED"
	EventFrozen          EventType = "FROZEN"
	EventThawed          EventType = "THAWED"
	EventStealthBroken   EventType = "STEALTH_BROKEN"
	EventRegenerated     EventType = "REGENERATED"
	EventCreatureDied    EventType = "CREATURE_DIED"
	EventDeathrattle     EventType = "DEATHRATTLE"
	EventSweepTruncated  EventType = "SWEEP_TRUNCATED"
	EventAbilityNoEffect EventType = "ABILITY_NO_EFFECT"
)

// Event is a state change other subsystems may react to.
type Event struct {
	Type      EventType `json:"type"`
	Seat      Seat      `json:"seat,omitempty"`
	SourceID  string    `json:"sourceId,omitempty"`
	TargetID  string    `json:"targetId,omitempty"`
	Card      string    `json:"card,omitempty"`
	Amount    int       `json:"amount,omitempty"`
	Data      string    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, seat Seat, sourceID, targetID string) Event {
	return Event{
		Type:      eventType,
		Seat:      seat,
		SourceID:  sourceID,
		TargetID:  targetID,
		Timestamp: time.Now(),
	}
}

// NewEventWithAmount creates an event carrying an amount.
func NewEventWithAmount(eventType EventType, seat Seat, sourceID, targetID string, amount int) Event {
	evt := NewEvent(eventType, seat, sourceID, targetID)
	evt.Amount = amount
	return evt
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type typedListener struct {
	handle   int
	callback Listener
}

// EventBus is a synchronous publish/subscribe hub with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]typedListener
	nextHandle     int
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]typedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for one event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], typedListener{handle: handle, callback: listener})
	return handle
}

// Unsubscribe removes the listener identified by handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.callback(event)
	}
}
