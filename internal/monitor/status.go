package monitor

import (
	"context"
	"fmt"
	"time"
)

type Status struct {
	TotalCount            int     `json:"total_count"`
	UnresolvedCount       int     `json:"unresolved_count"`
	ResolvedCount         int     `json:"resolved_count"`
	ResolutionRatePercent float64 `json:"resolution_rate_percent"`
	MonitoringActive      bool    `json:"monitoring_active"`
	SubscriberCount       int     `json:"subscriber_count"`

	LastRecordCount int       `json:"last_record_count"`
	SeenCount       int       `json:"seen_count"`
	Cycles          uint64    `json:"cycles"`
	LastPollAt      time.Time `json:"last_poll_at"`
	LastPollError   string    `json:"last_poll_error,omitempty"`
}

// Status reports record counts and monitor state. When the store cannot be
// read the monitor fields are still filled and the error is returned.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	m.mu.Lock()
	st := Status{
		MonitoringActive: m.active,
		LastRecordCount:  m.lastRecordCount,
		SeenCount:        len(m.seen),
		Cycles:           m.cycles,
		LastPollAt:       m.lastPollAt,
		LastPollError:    m.lastPollErr,
	}
	m.mu.Unlock()
	st.SubscriberCount = m.registry.Len()

	all, err := m.store.FetchAll(ctx)
	if err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	st.TotalCount = len(all)
	for _, v := range all {
		if v.Resolved {
			st.ResolvedCount++
		}
	}
	st.UnresolvedCount = st.TotalCount - st.ResolvedCount
	if st.TotalCount > 0 {
		st.ResolutionRatePercent = float64(st.ResolvedCount) / float64(st.TotalCount) * 100
	}
	return st, nil
}
