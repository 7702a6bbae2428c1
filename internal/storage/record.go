package storage

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
)

// TimestampLayout is the layout violation timestamps are written in by the
// camera pipeline and by synthetic inserts.
const TimestampLayout = "01/02/06 03:04 PM"

const (
	minAddressLen = 8
	maxAddressLen = 15
)

// ValidAddress reports whether addr is a digits-only chat address of 8 to 15 characters.
func ValidAddress(addr string) bool {
	if len(addr) < minAddressLen || len(addr) > maxAddressLen {
		return false
	}
	for i := 0; i < len(addr); i++ {
		if addr[i] < '0' || addr[i] > '9' {
			return false
		}
	}
	return true
}

// NewID returns a fresh record identifier.
func NewID() string { return uuid.NewString() }

// sampleViolation seeds synthetic inserts when the table is empty.
var sampleViolation = Violation{
	FactoryArea:       "KP2,Jabar,Indonesia",
	InspectionSection: "Fumigasi Barang Shower Kandang",
	ViolationType:     "Shoes are not on the shoe rack (ENG) / Sepatu tidak diletakkan di rak sepatu(BAHASA INDO)",
	ImageURL:          "https://files.catbox.moe/vvx882.mp4",
}

// synthesize clones a random existing row (or the sample row) with a fresh ID,
// the current time and resolved=false.
func synthesize(rows []Violation, now time.Time, tz string) Violation {
	base := sampleViolation
	if len(rows) > 0 {
		base = rows[rand.IntN(len(rows))]
	}
	loc := loadLocation(tz)
	return Violation{
		ID:                NewID(),
		Timestamp:         now.In(loc).Format(TimestampLayout),
		CreationTimezone:  loc.String(),
		FactoryArea:       base.FactoryArea,
		InspectionSection: base.InspectionSection,
		ViolationType:     base.ViolationType,
		ImageURL:          base.ImageURL,
	}
}

func loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// rawViolation is a row as it comes out of a backend, before interpretation.
type rawViolation struct {
	ID                string
	Timestamp         string
	CreationTimezone  string
	FactoryArea       string
	InspectionSection string
	ViolationType     string
	ImageURL          string
	Resolved          string
}

func (r rawViolation) parse() (Violation, error) {
	v := Violation{
		ID:                strings.TrimSpace(r.ID),
		Timestamp:         strings.TrimSpace(r.Timestamp),
		CreationTimezone:  strings.TrimSpace(r.CreationTimezone),
		FactoryArea:       strings.TrimSpace(r.FactoryArea),
		InspectionSection: strings.TrimSpace(r.InspectionSection),
		ViolationType:     strings.TrimSpace(r.ViolationType),
		ImageURL:          strings.TrimSpace(r.ImageURL),
	}
	resolved, err := ParseResolved(r.Resolved)
	if err != nil {
		return Violation{}, fmt.Errorf("%w: id=%q: %v", ErrMalformedRow, v.ID, err)
	}
	v.Resolved = resolved
	if v.ID == "" && v.Timestamp == "" && v.FactoryArea == "" && v.InspectionSection == "" && v.ViolationType == "" {
		return Violation{}, fmt.Errorf("%w: row has neither id nor descriptive fields", ErrMalformedRow)
	}
	return v, nil
}

// ParseResolved interprets the stored resolved flag. Empty means unresolved.
func ParseResolved(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "t":
		return true, nil
	case "false", "0", "no", "n", "f", "":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized resolved value %q", s)
	}
}

func formatResolved(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// number assigns 1-based sequence indexes in slice order.
func number(vs []Violation) []Violation {
	for i := range vs {
		vs[i].SequenceIndex = i + 1
	}
	return vs
}

func filter(vs []Violation, keep func(Violation) bool) []Violation {
	out := make([]Violation, 0, len(vs))
	for _, v := range vs {
		if keep(v) {
			out = append(out, v)
		}
	}
	return number(out)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(sub)))
}
