package model

import "time"

// ViolationType names a derived focus violation.
type ViolationType string

const (
	ViolationTabSwitch    ViolationType = "tab_switch"
	ViolationWindowSwitch ViolationType = "window_switch"
)

// Violation is derived from paired blur/focus events. It is never stored.
type Violation struct {
	Type      ViolationType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Severity  Severity      `json:"severity"`
	// InProgress marks an unmatched trailing blur measured against the evaluation instant.
	InProgress bool `json:"in_progress"`
}

// ViolationCounts is the aggregate attached to a submission.
type ViolationCounts struct {
	TabSwitches      int     `json:"tab_switches"`
	WindowSwitches   int     `json:"window_switches"`
	NoFace           int     `json:"no_face"`
	MultipleFaces    int     `json:"multiple_faces"`
	TotalAwaySeconds float64 `json:"total_away_seconds"`
}
