// Package systemd reports service readiness and status to the service manager.
package systemd

import (
	"fmt"
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/hlsfeed/internal/events"
	"github.com/smazurov/hlsfeed/internal/logging"
)

// Notifier sends sd_notify messages. Without NOTIFY_SOCKET every call is a no-op.
type Notifier struct {
	logger logging.Logger
	active atomic.Int64
}

// NewNotifier creates a notifier.
func NewNotifier(logger logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.GetLogger("systemd")
	}
	return &Notifier{logger: logger}
}

// Ready tells the service manager startup is complete.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells the service manager shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// Subscribe keeps the status line in step with the number of active streams.
func (n *Notifier) Subscribe(bus *events.Bus) func() {
	update := func(active int) {
		n.active.Store(int64(active))
		n.Status("%d active stream(s)", active)
	}
	unsubs := []func(){
		events.On(bus, func(e events.StreamStartedEvent) { update(e.Active) }),
		events.On(bus, func(e events.StreamStoppedEvent) { update(e.Active) }),
		events.On(bus, func(e events.StreamExitedEvent) { update(e.Active) }),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Active returns the stream count last reported.
func (n *Notifier) Active() int {
	return int(n.active.Load())
}

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
