package model

// Capabilities is negotiated once at session setup. Downstream components branch on
// it instead of probing for optional browser features at use time.
type Capabilities struct {
	HasSpeechRecognition bool `json:"has_speech_recognition"`
	HasFaceDetection     bool `json:"has_face_detection"`
	HasKeyboardLock      bool `json:"has_keyboard_lock"`
}

// Intersect keeps only the capabilities present in both records.
func (c Capabilities) Intersect(o Capabilities) Capabilities {
	return Capabilities{
		HasSpeechRecognition: c.HasSpeechRecognition && o.HasSpeechRecognition,
		HasFaceDetection:     c.HasFaceDetection && o.HasFaceDetection,
		HasKeyboardLock:      c.HasKeyboardLock && o.HasKeyboardLock,
	}
}

// DeviceInfo is browser/device metadata reported by the client.
type DeviceInfo struct {
	UserAgent    string `json:"user_agent"`
	Platform     string `json:"platform"`
	Language     string `json:"language"`
	Timezone     string `json:"timezone"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
}
