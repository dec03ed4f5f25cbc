package session

import "github.com/stemsi/interview-room/internal/model"

// available lists what the wired collaborators can actually do.
func (o *Orchestrator) available() model.Capabilities {
	_, keyboard := o.deps.Lock.(KeyboardLocker)
	return model.Capabilities{
		HasSpeechRecognition: o.speech != nil,
		HasFaceDetection:     o.face != nil,
		HasKeyboardLock:      keyboard,
	}
}

// negotiate settles the capability record once, at setup.
func (o *Orchestrator) negotiate() model.Capabilities {
	return o.opts.Reported.Intersect(o.available())
}
