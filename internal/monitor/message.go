package monitor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"cctvbot/internal/storage"
	"cctvbot/internal/transport"
)

const timeLabelLayout = "02 Jan 2006 15:04 MST"

var timestampLayouts = []string{
	storage.TimestampLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// TimeLabel renders the record timestamp in its creation timezone. Timestamps
// in an unknown layout are returned as-is with the zone name appended.
func TimeLabel(v storage.Violation) string {
	raw := strings.TrimSpace(v.Timestamp)
	loc := time.UTC
	if v.CreationTimezone != "" {
		if l, err := time.LoadLocation(v.CreationTimezone); err == nil {
			loc = l
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.In(loc).Format(timeLabelLayout)
		}
	}
	if raw == "" {
		raw = "unknown"
	}
	if v.CreationTimezone != "" {
		return raw + " (" + v.CreationTimezone + ")"
	}
	return raw
}

// CaseID is the user-facing reference of a record.
func CaseID(v storage.Violation) string {
	if v.ID != "" {
		return v.ID
	}
	return fmt.Sprintf("#%d", v.SequenceIndex)
}

// CaseLink returns the dashboard deep link for a record, or "" without a dashboard.
func CaseLink(dashboardURL string, v storage.Violation) string {
	base := strings.TrimRight(strings.TrimSpace(dashboardURL), "/")
	if base == "" || v.ID == "" {
		return ""
	}
	return base + "/?case_id=" + url.QueryEscape(v.ID)
}

// AlertText is the full plain-text alert, the last delivery tier.
func AlertText(v storage.Violation, dashboardURL string) string {
	var b strings.Builder
	b.WriteString("🚨 NEW VIOLATION DETECTED\n\n")
	fmt.Fprintf(&b, "🆔 Case ID: %s\n", CaseID(v))
	fmt.Fprintf(&b, "⏰ Time: %s\n", TimeLabel(v))
	fmt.Fprintf(&b, "🏭 Area: %s\n", orDash(v.FactoryArea))
	fmt.Fprintf(&b, "🔍 Section: %s\n", orDash(v.InspectionSection))
	fmt.Fprintf(&b, "⚠️ Violation: %s\n", orDash(v.ViolationType))
	if link := CaseLink(dashboardURL, v); link != "" {
		fmt.Fprintf(&b, "\n🔗 Review Case: %s\n", link)
	}
	fmt.Fprintf(&b, "\n📋 Action Required: reply 'resolve %s' when handled, 'status' for a summary.", CaseID(v))
	return b.String()
}

// AlertCaption accompanies the image or video tier.
func AlertCaption(v storage.Violation) string {
	return fmt.Sprintf("🚨 %s\n🏭 %s · %s\n⏰ %s\n🆔 %s",
		orDash(v.ViolationType), orDash(v.FactoryArea), orDash(v.InspectionSection), TimeLabel(v), CaseID(v))
}

// AlertTemplate fills the structured template: case id, time, area, section,
// violation type, with the case id as the URL button suffix.
func AlertTemplate(v storage.Violation, name, language string) transport.TemplateFields {
	tpl := transport.TemplateFields{
		Name:     name,
		Language: language,
		Params: []string{
			CaseID(v),
			TimeLabel(v),
			orDash(v.FactoryArea),
			orDash(v.InspectionSection),
			orDash(v.ViolationType),
		},
	}
	if v.ID != "" {
		tpl.ButtonParam = v.ID
	}
	return tpl
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
