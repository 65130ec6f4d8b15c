package player

import (
	"github.com/rs/zerolog/log"
)

type Event int

const (
	EventConnecting Event = iota
	EventPlaying
	EventPaused
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventConnecting:
		return "CONNECTING"
	case EventPlaying:
		return "PLAYING"
	case EventPaused:
		return "PAUSED"
	case EventStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Callback receives session notifications. Calls may come from any
// goroutine, including the audio output goroutine for interleaved metadata.
// Implementations must not call session-mutating Registry methods for the
// same handle from inside a notification.
type Callback interface {
	OnEvent(event Event)
	OnMetadata(key, value string)
	OnError(message string)
}

// Delivery is best effort: a panicking callback is logged and ignored.
func (s *session) notify(fn func(Callback)) {
	s.cbMu.RLock()
	cb := s.callback
	s.cbMu.RUnlock()

	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Uint64("handle", uint64(s.handle)).Msg("Callback panicked")
		}
	}()
	fn(cb)
}

func (s *session) emit(event Event) {
	log.Debug().Uint64("handle", uint64(s.handle)).Str("event", event.String()).Msg("Session event")
	s.notify(func(cb Callback) { cb.OnEvent(event) })
}

func (s *session) emitMetadata(key, value string) {
	if key == "StreamTitle" {
		log.Debug().Msgf("Now playing: %s", value)
	}
	s.notify(func(cb Callback) { cb.OnMetadata(key, value) })
}

func (s *session) emitError(err error) {
	s.notify(func(cb Callback) { cb.OnError(err.Error()) })
}
