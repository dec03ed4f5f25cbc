package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// FallbackAnswersKey returns the hash holding answers that could not be saved remotely,
// keyed by question index.
func (r *CacheKeyStruct) FallbackAnswersKey(attemptID string) string {
	return fmt.Sprintf("interview:%s:fallback_answers", attemptID)
}

// FallbackEventsKey returns the list mirroring a room's proctoring event log.
func (r *CacheKeyStruct) FallbackEventsKey(sessionID string) string {
	return fmt.Sprintf("room:%s:fallback_events", sessionID)
}

// ActiveRoomKey marks a ticket as attached to a live room.
func (r *CacheKeyStruct) ActiveRoomKey(ticketID string) string {
	return fmt.Sprintf("ticket:%s:active_room", ticketID)
}

var CacheKey = NewCacheKeyStruct()
