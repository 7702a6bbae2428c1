package app

import (
	"context"
	"fmt"
	"time"

	"cctvbot/internal/eventbus"
	"cctvbot/internal/monitor"
	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

// startEventLog logs every bus event at DEBUG and appends an audit row for it.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.audit", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
				actx, cancel := context.WithTimeout(c, 2*time.Second)
				if err := a.store.AppendAudit(actx, auditEntry(e)); err != nil {
					a.log.Warn("audit append failed", logx.String("type", e.Type), logx.Err(err))
				}
				cancel()
			}
		}
	})
}

func auditEntry(e eventbus.Event) storage.AuditEntry {
	str := func(k string) string {
		if v, ok := e.Data[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	entry := storage.AuditEntry{At: e.Time, Actor: "monitor", Action: e.Type, OK: true}
	switch e.Type {
	case monitor.EventSubscriberAdded, monitor.EventSubscriberRemoved:
		entry.Target = str("address")
	case monitor.EventAlertDelivered:
		entry.Target = str("address")
		entry.Detail = "case=" + str("case") + " tier=" + str("tier")
	case monitor.EventAlertFailed:
		entry.Target = str("address")
		entry.OK = false
		entry.Detail = "case=" + str("case") + " err=" + str("error")
	case monitor.EventViolationResolved:
		entry.Target = str("case")
		entry.Detail = "resolved=" + str("resolved")
	case monitor.EventViolationDetected, monitor.EventViolationCreated:
		entry.Target = str("case")
	case monitor.EventMonitorStarted, monitor.EventMonitorStopped:
		entry.Detail = "by=" + str("by")
	}
	return entry
}
