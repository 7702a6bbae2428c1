package monitor

import (
	"time"

	"cctvbot/internal/eventbus"
)

// Event types published on the bus.
const (
	EventMonitorStarted    = "monitor.started"
	EventMonitorStopped    = "monitor.stopped"
	EventViolationDetected = "violation.detected"
	EventAlertDelivered    = "alert.delivered"
	EventAlertFailed       = "alert.failed"
	EventSubscriberAdded   = "subscriber.added"
	EventSubscriberRemoved = "subscriber.removed"
	EventViolationResolved = "violation.resolved"
	EventViolationCreated  = "violation.created"
)

func (m *Monitor) publish(typ string, data map[string]any) {
	m.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
