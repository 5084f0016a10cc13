package diagnostics

import (
	"fmt"
	"sort"
	"time"

	"github.com/coreman2200/funtimes-sacn/internal/receiver"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Key identifies a diagnostic for de-duplication.
func (d Diagnostic) Key() string { return d.Code + "|" + d.Detail }

// LightStatus is the per-light input to Evaluate.
type LightStatus struct {
	Name     string
	Universe uint16
	On       bool
}

// Snapshot is everything Evaluate looks at.
type Snapshot struct {
	At        time.Time
	Bindings  []receiver.BindingInfo
	Stats     receiver.Stats
	Prev      receiver.Stats
	Universes []receiver.UniverseState
	Lights    []LightStatus
}

// Evaluate derives the current set of diagnostics, ordered by severity then
// code.
func Evaluate(s Snapshot) []Diagnostic {
	var out []Diagnostic
	for _, b := range s.Bindings {
		switch b.State {
		case receiver.BindFailed.String():
			out = append(out, Diagnostic{
				Severity: Err,
				Code:     "RX.BIND_FAILED",
				Summary:  "Universe could not be bound; its lights stay dark",
				Detail:   fmt.Sprintf("universe %d %s", b.Universe, b.Mode),
				LikelyCauses: []string{
					"port already in use by another process",
					"no multicast capable interface",
				},
				SuggestedFixes: []string{
					"set receiver.interface to the lighting network NIC",
					"switch the light to UNICAST",
				},
				Evidence: map[string]any{"attempts": b.Attempts, "error": b.Error, "port": b.Port},
			})
		case receiver.BindPending.String():
			out = append(out, Diagnostic{
				Severity: Warn,
				Code:     "RX.BIND_RETRY",
				Summary:  "Retrying socket setup",
				Detail:   fmt.Sprintf("universe %d %s", b.Universe, b.Mode),
				Evidence: map[string]any{"attempts": b.Attempts, "error": b.Error},
			})
		}
	}

	if d := s.Stats.Malformed - s.Prev.Malformed; d > 0 {
		out = append(out, Diagnostic{
			Severity:     Warn,
			Code:         "RX.MALFORMED",
			Summary:      "Dropped malformed sACN packets",
			LikelyCauses: []string{"non E1.31 traffic on port 5568", "truncated datagrams"},
			Evidence:     map[string]any{"new": d, "total": s.Stats.Malformed},
		})
	}

	for _, u := range s.Universes {
		if u.LastPacket.IsZero() {
			out = append(out, Diagnostic{
				Severity:       Info,
				Code:           "RX.NO_DATA",
				Summary:        "No data received yet",
				Detail:         fmt.Sprintf("universe %d", u.Universe),
				SuggestedFixes: []string{"check the console output universe and transport mode"},
			})
		}
	}

	for _, l := range s.Lights {
		if !l.On {
			out = append(out, Diagnostic{
				Severity: Info,
				Code:     "LIGHT.BLANKED",
				Summary:  "Light is blanked",
				Detail:   l.Name,
				Evidence: map[string]any{"universe": l.Universe},
			})
		}
	}

	rank := map[Severity]int{Err: 0, Warn: 1, Info: 2}
	sort.SliceStable(out, func(i, j int) bool {
		if rank[out[i].Severity] != rank[out[j].Severity] {
			return rank[out[i].Severity] < rank[out[j].Severity]
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Diff returns the diagnostics in cur whose key is not in prev.
func Diff(prev, cur []Diagnostic) []Diagnostic {
	seen := make(map[string]bool, len(prev))
	for _, d := range prev {
		seen[d.Key()] = true
	}
	var out []Diagnostic
	for _, d := range cur {
		if !seen[d.Key()] {
			out = append(out, d)
		}
	}
	return out
}
