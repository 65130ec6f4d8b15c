// Package audio is the boundary to decoding and output. The player package
// only sees the Engine, Stream, Device and Sink interfaces; the defaults are
// backed by gopxl/beep and its speaker.
package audio

import (
	"errors"
	"io"
	"time"

	"github.com/glebovdev/streamcore/internal/format"
	"github.com/gopxl/beep/v2"
)

const (
	DefaultSampleRate = beep.SampleRate(44100)
	SpeakerBufferSize = time.Millisecond * 250
)

var (
	ErrDecode            = errors.New("decode failed")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrSeekUnsupported   = errors.New("source does not support seeking")
	ErrSeekFailed        = errors.New("seek failed")
	ErrDeviceUnavailable = errors.New("audio output device unavailable")
)

// DecodeOptions describes the byte source handed to an Engine.
type DecodeOptions struct {
	Length   int64 // -1 when unknown
	Hint     format.Hint
	Seekable bool
}

// Stream is a decoded audio source.
type Stream interface {
	beep.Streamer
	Format() beep.Format
	// Duration reports the total length when the decoder knows it.
	Duration() (time.Duration, bool)
	Seekable() bool
	// Seek moves to pos. It returns ErrSeekUnsupported or wraps ErrSeekFailed.
	Seek(pos time.Duration) error
	Close() error
}

// Engine turns a byte source into a Stream. The Stream owns src afterwards.
type Engine interface {
	Decode(src io.ReadCloser, opts DecodeOptions) (Stream, error)
}

// Sink plays appended streams in order.
type Sink interface {
	Append(s Stream)
	Play()
	Pause()
	// Stop drops every queued stream.
	Stop()
	// Clear drops every queued stream and pauses.
	Clear()
	IsPaused() bool
	IsEmpty() bool
	SetVolume(v float64)
	Volume() float64
	// Position is the playback position inside the current stream.
	Position() time.Duration
	TrySeek(pos time.Duration) error
	Close() error
}

// Device opens sinks on an output device.
type Device interface {
	OpenSink() (Sink, error)
}
