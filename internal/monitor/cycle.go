package monitor

import (
	"strings"

	"cctvbot/internal/storage"
)

// Identity returns the key used to decide whether a record was already seen.
//
// Records without an ID fall back to timestamp|area|section|type. That key is
// lossy: two rows sharing all four fields collapse into one alert.
func Identity(v storage.Violation) string {
	if v.ID != "" {
		return v.ID
	}
	return strings.Join([]string{v.Timestamp, v.FactoryArea, v.InspectionSection, v.ViolationType}, "|")
}

// Detect splits fetched into records not present in seen, in fetch order, and
// returns the identity set of fetched. Callers replace seen with next, so
// identities that disappeared upstream are forgotten.
func Detect(seen map[string]struct{}, fetched []storage.Violation) (fresh []storage.Violation, next map[string]struct{}) {
	next = make(map[string]struct{}, len(fetched))
	for _, v := range fetched {
		id := Identity(v)
		if _, dup := next[id]; dup {
			continue
		}
		next[id] = struct{}{}
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, v)
		}
	}
	return fresh, next
}

func identities(vs []storage.Violation) map[string]struct{} {
	_, next := Detect(nil, vs)
	return next
}
