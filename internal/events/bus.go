package events

import (
	"github.com/kelindar/event"
)

// Bus carries stream lifecycle events from the supervisor to its observers.
// Delivery is asynchronous; each subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// On registers fn for events of type T and returns its unsubscribe function.
func On[T Event](b *Bus, fn func(T)) func() {
	return event.Subscribe(b.dispatcher, fn)
}

// Publish delivers ev to the subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	// kelindar/event routes on the static type, so the interface is unwrapped here.
	switch e := ev.(type) {
	case StreamStartedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StreamStoppedEvent:
		event.Publish(b.dispatcher, e)
	case StreamExitedEvent:
		event.Publish(b.dispatcher, e)
	case CapabilitiesDetectedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe is the untyped form of On: the handler's parameter type selects
// the event. Handlers for unknown types are ignored and get a no-op unsubscribe.
//
//	unsub := bus.Subscribe(func(e events.StreamExitedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamStartedEvent):
		return On(b, h)
	case func(StreamStateChangedEvent):
		return On(b, h)
	case func(StreamStoppedEvent):
		return On(b, h)
	case func(StreamExitedEvent):
		return On(b, h)
	case func(CapabilitiesDetectedEvent):
		return On(b, h)
	default:
		return func() {}
	}
}
