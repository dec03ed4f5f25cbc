// Package violation derives tab/window switch violations from the event log.
// Nothing here is stored: every report is recomputed from the events on demand.
package violation

import (
	"time"

	"github.com/stemsi/interview-room/internal/model"
)

// LongAway promotes a completed switch to error severity.
const LongAway = 30 * time.Second

// Summary aggregates violations of one kind.
type Summary struct {
	Count      int           `json:"count"`
	TotalAway  time.Duration `json:"total_away"`
	InProgress bool          `json:"in_progress"`
}

// Report is the derived view over an event sequence.
type Report struct {
	TabSwitches    Summary           `json:"tab_switches"`
	WindowSwitches Summary           `json:"window_switches"`
	Violations     []model.Violation `json:"violations"`
}

// Counts flattens the report into the submission aggregate. Face counters are
// owned by the presence monitor and filled in by the caller.
func (r Report) Counts() model.ViolationCounts {
	return model.ViolationCounts{
		TabSwitches:      r.TabSwitches.Count,
		WindowSwitches:   r.WindowSwitches.Count,
		TotalAwaySeconds: (r.TabSwitches.TotalAway + r.WindowSwitches.TotalAway).Seconds(),
	}
}

type pairing struct {
	kind    model.ViolationType
	blur    model.EventType
	focus   model.EventType
	summary *Summary
}

// Compute pairs each *_BLUR with the next *_FOCUS of the same kind. A repeated
// blur while one is already open keeps the earliest; a focus with no open blur is
// ignored. An unmatched trailing blur is reported in progress, measured against now.
func Compute(events []model.ProctoringEvent, now time.Time) Report {
	var r Report
	kinds := []pairing{
		{model.ViolationTabSwitch, model.EventTabBlur, model.EventTabFocus, &r.TabSwitches},
		{model.ViolationWindowSwitch, model.EventWindowBlur, model.EventWindowFocus, &r.WindowSwitches},
	}
	open := make([]*time.Time, len(kinds))

	for _, e := range events {
		for i, k := range kinds {
			switch e.Type {
			case k.blur:
				if open[i] == nil {
					ts := e.Timestamp
					open[i] = &ts
				}
			case k.focus:
				if open[i] == nil {
					continue
				}
				d := e.Timestamp.Sub(*open[i])
				sev := model.SeverityWarning
				if d >= LongAway {
					sev = model.SeverityError
				}
				r.Violations = append(r.Violations, model.Violation{
					Type:      k.kind,
					Timestamp: *open[i],
					Duration:  d,
					Severity:  sev,
				})
				k.summary.Count++
				k.summary.TotalAway += d
				open[i] = nil
			}
		}
	}

	for i, k := range kinds {
		if open[i] == nil {
			continue
		}
		d := now.Sub(*open[i])
		if d < 0 {
			d = 0
		}
		r.Violations = append(r.Violations, model.Violation{
			Type:       k.kind,
			Timestamp:  *open[i],
			Duration:   d,
			Severity:   model.SeverityError,
			InProgress: true,
		})
		k.summary.Count++
		k.summary.TotalAway += d
		k.summary.InProgress = true
	}
	return r
}
