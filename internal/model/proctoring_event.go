package model

import "time"

// EventType identifies an entry in a room's event log.
type EventType string

const (
	// ─── Visibility (paired blur/focus) ────────────────────────────────
	EventTabBlur     EventType = "TAB_BLUR"
	EventTabFocus    EventType = "TAB_FOCUS"
	EventWindowBlur  EventType = "WINDOW_BLUR"
	EventWindowFocus EventType = "WINDOW_FOCUS"

	// ─── Session lifecycle ─────────────────────────────────────────────
	EventCameraReady          EventType = "camera_ready"
	EventInterviewStartFailed EventType = "interview_start_failed"
	EventStartRejected        EventType = "start_rejected"
	EventSessionStart         EventType = "session_start"
	EventLockFailed           EventType = "interaction_lock_failed"
	EventQuestionChange       EventType = "question_change"
	EventRecordingStart       EventType = "recording_start"
	EventAnswerSaved          EventType = "answer_saved"
	EventAnswerSaveFailed     EventType = "answer_save_failed"
	EventNarrationCancelled   EventType = "narration_cancelled"
	EventSessionAbort         EventType = "session_abort"
	EventSubmissionSucceeded  EventType = "submission_succeeded"
	EventSubmissionFailed     EventType = "submission_failed"

	// ─── Presence / capability ─────────────────────────────────────────
	EventNoFace               EventType = "no_face"
	EventMultipleFaces        EventType = "multiple_faces"
	EventFaceMonitorRecovered EventType = "face_monitor_recovered"
	EventFaceMonitorDegraded  EventType = "face_monitor_degraded"
	EventSpeechUnavailable    EventType = "speech_unavailable"
	EventSpeechStartFailed    EventType = "speech_start_failed"
	EventMediaPermission      EventType = "media_permission_denied"
)

// Severity grades a proctoring event for reviewers.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DefaultSeverity returns the severity recorded when the emitter does not pick one.
func (t EventType) DefaultSeverity() Severity {
	switch t {
	case EventTabBlur, EventWindowBlur, EventNoFace, EventAnswerSaveFailed,
		EventInterviewStartFailed, EventStartRejected, EventLockFailed, EventSessionAbort,
		EventSpeechStartFailed:
		return SeverityWarning
	case EventMultipleFaces, EventFaceMonitorDegraded, EventSpeechUnavailable,
		EventSubmissionFailed, EventMediaPermission:
		return SeverityError
	default:
		return SeverityInfo
	}
}

// ProctoringEvent is one append-only entry of the event log.
type ProctoringEvent struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
}

// VisibilityKind distinguishes browser tab switches from OS window switches.
type VisibilityKind string

const (
	VisibilityTab    VisibilityKind = "tab"
	VisibilityWindow VisibilityKind = "window"
)

// BlurType returns the event type recorded when focus leaves this kind.
func (k VisibilityKind) BlurType() EventType {
	if k == VisibilityWindow {
		return EventWindowBlur
	}
	return EventTabBlur
}

// FocusType returns the event type recorded when focus returns.
func (k VisibilityKind) FocusType() EventType {
	if k == VisibilityWindow {
		return EventWindowFocus
	}
	return EventTabFocus
}

// Valid reports whether k is a known kind.
func (k VisibilityKind) Valid() bool {
	return k == VisibilityTab || k == VisibilityWindow
}
