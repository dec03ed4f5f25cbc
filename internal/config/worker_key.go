package config

type WorkerKeyStruct struct {
	PersistAnswersQueue   string
	PersistEventsQueue    string
	FinalizeAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:   "persist_interview_answers_queue",
	PersistEventsQueue:    "persist_proctoring_events_queue",
	FinalizeAttemptsQueue: "finalize_interview_attempts_queue",
}
