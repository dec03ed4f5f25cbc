package websocket

import "github.com/stemsi/interview-room/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHello            Action = "hello"
	ActionStart            Action = "start"
	ActionStopAnswer       Action = "stop_answer"
	ActionExit             Action = "exit"
	ActionAbort            Action = "abort"
	ActionVisibility       Action = "visibility"
	ActionNarrationStart   Action = "narration_start"
	ActionNarrationEnd     Action = "narration_end"
	ActionTranscript       Action = "transcript"
	ActionRecognitionEnd   Action = "recognition_end"
	ActionRecognitionError Action = "recognition_error"
	ActionFrameState       Action = "frame_state"
	ActionReply            Action = "reply"
	ActionPing             Action = "ping"
)

// ClientMessage is the union of every client action. Fields not used by an
// action are left empty.
type ClientMessage struct {
	Action Action `json:"action"`

	// hello
	Capabilities model.Capabilities `json:"capabilities"`
	Device       model.DeviceInfo   `json:"device"`

	// exit / abort
	Discard bool   `json:"discard,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// visibility
	Kind  model.VisibilityKind `json:"kind,omitempty"`
	State VisibilityState      `json:"state,omitempty"`

	// narration_start / narration_end
	Seq uint64 `json:"seq,omitempty"`

	// transcript
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// recognition_error
	Code ErrorCode `json:"code,omitempty"`

	// frame_state
	Frame *FrameState `json:"frame,omitempty"`

	// reply
	Reply *Reply `json:"reply,omitempty"`
}

// VisibilityState is the direction of a visibility change.
type VisibilityState string

const (
	VisibilityBlur  VisibilityState = "blur"
	VisibilityFocus VisibilityState = "focus"
)

// FrameState mirrors the preview video element.
type FrameState struct {
	Attached       bool `json:"attached"`
	MetadataLoaded bool `json:"metadata_loaded"`
	Width          int  `json:"width"`
	Height         int  `json:"height"`
	Paused         bool `json:"paused"`
}

// ErrorCode is the browser error name reported for a failed operation.
type ErrorCode string

const (
	CodeNotAllowed     ErrorCode = "not-allowed"
	CodeAlreadyStarted ErrorCode = "already-started"
	CodeUnavailable    ErrorCode = "unavailable"
	CodeNoSpeech       ErrorCode = "no-speech"
)

// Reply answers a server Request with the same ReqID.
type Reply struct {
	ReqID    string       `json:"req_id"`
	OK       bool         `json:"ok"`
	Error    string       `json:"error,omitempty"`
	Code     ErrorCode    `json:"code,omitempty"`
	Count    int          `json:"count,omitempty"`
	StreamID string       `json:"stream_id,omitempty"`
	Tracks   []TrackState `json:"tracks,omitempty"`
}

// TrackState describes one media track of an acquired stream.
type TrackState struct {
	Kind string `json:"kind"`
	Live bool   `json:"live"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState             Event = "state"
	EventSpeak             Event = "speak"
	EventCancelSpeech      Event = "cancel_speech"
	EventRecognitionStop   Event = "recognition_stop"
	EventRequest           Event = "request"
	EventStopTrack         Event = "stop_track"
	EventAttachMedia       Event = "attach_media"
	EventClearMedia        Event = "clear_media"
	EventDisposeClassifier Event = "dispose_classifier"
	EventSubmitted         Event = "submitted"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// Op names an operation the server asks the browser to perform.
type Op string

const (
	OpEstimateFaces    Op = "estimate_faces"
	OpInitClassifier   Op = "init_classifier"
	OpLoadClassifier   Op = "load_classifier"
	OpResumeVideo      Op = "resume_video"
	OpAcquireMedia     Op = "acquire_media"
	OpRecorderStart    Op = "recorder_start"
	OpRecorderStop     Op = "recorder_stop"
	OpRecognitionStart Op = "recognition_start"
	OpLock             Op = "lock"
	OpUnlock           Op = "unlock"
	OpLockKeyboard     Op = "lock_keyboard"
)

type StateEvent struct {
	Event Event              `json:"event"`
	State model.SessionState `json:"state"`
}

type SpeakEvent struct {
	Event  Event   `json:"event"`
	Seq    uint64  `json:"seq"`
	Text   string  `json:"text"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

type RequestEvent struct {
	Event      Event  `json:"event"`
	ReqID      string `json:"req_id"`
	Op         Op     `json:"op"`
	StreamID   string `json:"stream_id,omitempty"`
	IntervalMS int64  `json:"interval_ms,omitempty"`
}

type MediaEvent struct {
	Event    Event  `json:"event"`
	StreamID string `json:"stream_id,omitempty"`
	Sink     string `json:"sink,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

type SubmittedEvent struct {
	Event    Event  `json:"event"`
	Success  bool   `json:"success"`
	ReportID string `json:"report_id,omitempty"`
	Aborted  bool   `json:"aborted"`
}

type SignalEvent struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
