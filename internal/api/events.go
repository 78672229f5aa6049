package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/hlsfeed/internal/events"
)

// connectedEvent is the first message on every SSE connection.
type connectedEvent struct {
	Message   string `json:"message" example:"SSE connection established"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z"`
}

// registerSSERoutes exposes the event bus as a Server-Sent Events stream.
func (s *Server) registerSSERoutes() {
	if s.options.EventBus == nil {
		return
	}
	bus := s.options.EventBus

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream lifecycle and capability events",
		Tags:        []string{"events"},
		Errors:      []int{403},
	}, map[string]any{
		"connected":             connectedEvent{},
		"stream-started":        events.StreamStartedEvent{},
		"stream-state-changed":  events.StreamStateChangedEvent{},
		"stream-stopped":        events.StreamStoppedEvent{},
		"stream-exited":         events.StreamExitedEvent{},
		"capabilities-detected": events.CapabilitiesDetectedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamStartedEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamStateChangedEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamStoppedEvent](bus, eventCh),
			events.SubscribeToChannel[events.StreamExitedEvent](bus, eventCh),
			events.SubscribeToChannel[events.CapabilitiesDetectedEvent](bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(connectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
