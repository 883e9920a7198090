package snapshot

import (
	"strings"
	"time"
)

// Identity names this tool in snapshot descriptions.
const Identity = "osc-bsu-backup"

const descriptionLayout = "2006-01-02 15:04:05 MST"

// Description is the text attached to a snapshot created at t.
func Description(t time.Time) string {
	return Current.Prefix + t.UTC().Format(descriptionLayout)
}

// Marker is the description written by one release of this tool. The
// current release writes Prefix followed by a timestamp; older releases
// wrote a fixed text, matched exactly.
type Marker struct {
	Version string
	Prefix  string
	Exact   bool
}

// Markers is a set of recognised description prefixes.
type Markers []Marker

// Current is the marker written by this release.
var Current = Marker{Version: "current", Prefix: Identity + ": Automated volume snapshot - "}

// Known lists every marker ever written. Entries are appended when the
// format changes and are never edited, so snapshots from older releases
// stay in scope.
var Known = Markers{
	Current,
	{Version: "0.1", Prefix: Identity + " 0.1", Exact: true},
	{Version: "0.0.2", Prefix: Identity + " 0.0.2", Exact: true},
	{Version: "0.0.1", Prefix: Identity + " 0.0.1", Exact: true},
}

// Match reports whether description was written by one of the markers.
func (m Markers) Match(description string) bool {
	for _, mk := range m {
		if mk.Match(description) {
			return true
		}
	}
	return false
}

func (mk Marker) Match(description string) bool {
	if mk.Exact {
		return description == mk.Prefix
	}
	return strings.HasPrefix(description, mk.Prefix)
}

// FilterValues returns the markers as EC2 description filter patterns.
func (m Markers) FilterValues() []string {
	out := make([]string, 0, len(m))
	for _, mk := range m {
		if mk.Exact {
			out = append(out, mk.Prefix)
			continue
		}
		out = append(out, mk.Prefix+"*")
	}
	return out
}
