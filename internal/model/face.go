package model

// FacePresence is the debounced output of the face presence monitor.
type FacePresence string

const (
	FacePresenceUnknown  FacePresence = ""
	FacePresenceSingle   FacePresence = "single"
	FacePresenceNone     FacePresence = "none"
	FacePresenceMultiple FacePresence = "multiple"
)

// PresenceFromCount maps a classifier detection count to a presence state.
func PresenceFromCount(n int) FacePresence {
	switch {
	case n <= 0:
		return FacePresenceNone
	case n == 1:
		return FacePresenceSingle
	default:
		return FacePresenceMultiple
	}
}
