// Package player keeps the process-wide table of playback sessions. Each
// session owns one audio sink; sessions never share locks with each other.
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/streamcore/internal/audio"
	"github.com/glebovdev/streamcore/internal/hls"
	"github.com/glebovdev/streamcore/internal/httpstream"
	"github.com/glebovdev/streamcore/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Handle identifies a session. Handles are never reused.
type Handle uint64

type session struct {
	handle Handle

	mu            sync.Mutex
	sink          audio.Sink
	duration      time.Duration
	durationKnown bool
	seekable      bool
	destroyed     bool

	// The callback has its own lock because metadata arrives on the audio
	// goroutine while an operation may hold mu.
	cbMu     sync.RWMutex
	callback Callback
}

// Registry maps handles to sessions. The map lock is only held for lookups
// and insert/delete; per-session work runs under the session's own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Handle]*session
	next     atomic.Uint64

	device     audio.Device
	engine     audio.Engine
	options    *httpstream.Options
	client     *httpstream.Client
	userAgent  string
	hlsOptions []hls.Option
	ctx        context.Context
}

type Option func(*Registry)

func WithUserAgent(ua string) Option {
	return func(r *Registry) {
		r.userAgent = ua
	}
}

// WithHTTPOptions shares trust settings with other clients.
func WithHTTPOptions(opts *httpstream.Options) Option {
	return func(r *Registry) {
		r.options = opts
	}
}

func WithHLSOptions(opts ...hls.Option) Option {
	return func(r *Registry) {
		r.hlsOptions = append(r.hlsOptions, opts...)
	}
}

func NewRegistry(device audio.Device, engine audio.Engine, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[Handle]*session),
		device:   device,
		engine:   engine,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.options == nil {
		r.options = httpstream.NewOptions()
	}
	r.client = httpstream.NewClient(r.options, r.userAgent)
	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry backed by the speaker and the
// beep decoders. It is created on first use; opts only apply to that first
// call.
func Default(opts ...Option) *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(audio.NewSpeakerDevice(), audio.NewBeepEngine(), opts...)
	})
	return defaultRegistry
}

// Create opens a sink on the output device and registers a new session.
func (r *Registry) Create() (Handle, error) {
	sink, err := r.device.OpenSink()
	if err != nil {
		return 0, fmt.Errorf("%w: opening output device: %w", ErrIO, err)
	}

	h := Handle(r.next.Add(1))
	r.mu.Lock()
	r.sessions[h] = &session{handle: h, sink: sink}
	r.mu.Unlock()

	metrics.SessionsActive.Inc()
	log.Debug().Uint64("handle", uint64(h)).Msg("Session created")
	return h, nil
}

// Destroy unregisters h and releases its sink before returning.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	s, ok := r.sessions[h]
	delete(r.sessions, h)
	r.mu.Unlock()

	if !ok {
		return &NotFoundError{Handle: h}
	}
	metrics.SessionsActive.Dec()

	return r.run(s, func(s *session) error {
		s.destroyed = true
		if err := s.sink.Close(); err != nil {
			return fmt.Errorf("%w: closing output device: %w", ErrIO, err)
		}
		log.Debug().Uint64("handle", uint64(h)).Msg("Session destroyed")
		return nil
	})
}

func (r *Registry) lookup(h Handle) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[h]
	if !ok {
		return nil, &NotFoundError{Handle: h}
	}
	return s, nil
}

// with runs fn with exclusive access to session h.
func (r *Registry) with(h Handle, fn func(*session) error) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	return r.run(s, fn)
}

func (r *Registry) run(s *session, fn func(*session) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Uint64("handle", uint64(s.handle)).Msg("Session operation panicked")
			err = fmt.Errorf("%w: %v", ErrInternal, p)
		}
	}()
	if s.destroyed {
		return &NotFoundError{Handle: s.handle}
	}
	return fn(s)
}

func (r *Registry) SetCallback(h Handle, cb Callback) error {
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	s.cbMu.Lock()
	s.callback = cb
	s.cbMu.Unlock()
	return nil
}

// commit appends st to the sink of h and records its duration and
// seekability under the same lock. st is closed if h vanished meanwhile.
func (r *Registry) commit(h Handle, st audio.Stream, duration time.Duration, known, seekable bool) error {
	err := r.with(h, func(s *session) error {
		s.sink.Append(st)
		s.duration = duration
		s.durationKnown = known
		s.seekable = seekable
		return nil
	})
	if err != nil {
		st.Close()
		return err
	}

	if s, err := r.lookup(h); err == nil {
		s.emit(EventPlaying)
	}
	return nil
}

// fail reports err to the session callback, if any, and returns it.
func (r *Registry) fail(h Handle, err error) error {
	if s, lerr := r.lookup(h); lerr == nil {
		s.emitError(err)
	}
	log.Warn().Err(err).Uint64("handle", uint64(h)).Str("kind", Classify(err).String()).Msg("Playback failed")
	return err
}

func (r *Registry) Play(h Handle) error {
	return r.with(h, func(s *session) error {
		s.sink.Play()
		s.emit(EventPlaying)
		return nil
	})
}

func (r *Registry) Pause(h Handle) error {
	return r.with(h, func(s *session) error {
		s.sink.Pause()
		s.emit(EventPaused)
		return nil
	})
}

// Stop drops every queued source.
func (r *Registry) Stop(h Handle) error {
	return r.with(h, func(s *session) error {
		s.sink.Stop()
		s.resetSource()
		s.emit(EventStopped)
		return nil
	})
}

// Clear drops every queued source and pauses the session.
func (r *Registry) Clear(h Handle) error {
	return r.with(h, func(s *session) error {
		s.sink.Clear()
		s.resetSource()
		s.emit(EventStopped)
		return nil
	})
}

func (s *session) resetSource() {
	s.duration = 0
	s.durationKnown = false
	s.seekable = false
}

func (r *Registry) IsPaused(h Handle) (bool, error) {
	var paused bool
	err := r.with(h, func(s *session) error {
		paused = s.sink.IsPaused()
		return nil
	})
	return paused, err
}

func (r *Registry) IsEmpty(h Handle) (bool, error) {
	var empty bool
	err := r.with(h, func(s *session) error {
		empty = s.sink.IsEmpty()
		return nil
	})
	return empty, err
}

// SetVolume sets the linear gain of h. 1 is unchanged.
func (r *Registry) SetVolume(h Handle, v float64) error {
	if v < 0 {
		return invalidParameter("invalid volume: %v", v)
	}
	return r.with(h, func(s *session) error {
		s.sink.SetVolume(v)
		return nil
	})
}

func (r *Registry) Volume(h Handle) (float64, error) {
	var v float64
	err := r.with(h, func(s *session) error {
		v = s.sink.Volume()
		return nil
	})
	return v, err
}

func (r *Registry) Position(h Handle) (time.Duration, error) {
	var pos time.Duration
	err := r.with(h, func(s *session) error {
		pos = s.sink.Position()
		return nil
	})
	return pos, err
}

// Seek moves the current source of h to pos. It fails when the duration is
// unknown or the source cannot seek; positions past the end are clamped.
func (r *Registry) Seek(h Handle, pos time.Duration) error {
	return r.with(h, func(s *session) error {
		if !s.durationKnown {
			return fmt.Errorf("%w: duration unknown", ErrSeek)
		}
		if !s.seekable {
			return fmt.Errorf("%w: source is not seekable", ErrSeek)
		}
		if pos > s.duration {
			pos = s.duration
		}
		if pos < 0 {
			pos = 0
		}
		if err := s.sink.TrySeek(pos); err != nil {
			return fmt.Errorf("%w: %w", ErrSeek, err)
		}
		return nil
	})
}

// Duration returns the total length of the current source, if known.
func (r *Registry) Duration(h Handle) (time.Duration, bool, error) {
	var (
		d     time.Duration
		known bool
	)
	err := r.with(h, func(s *session) error {
		d, known = s.duration, s.durationKnown
		return nil
	})
	return d, known, err
}

func (r *Registry) IsSeekable(h Handle) (bool, error) {
	var seekable bool
	err := r.with(h, func(s *session) error {
		seekable = s.seekable
		return nil
	})
	return seekable, err
}

// SetAcceptInvalidCerts applies to requests started after the call.
func (r *Registry) SetAcceptInvalidCerts(accept bool) {
	r.options.SetAcceptInvalidCerts(accept)
}

func (r *Registry) SetTrustedRoots(pems [][]byte) {
	r.options.SetTrustedRoots(pems)
}

func (r *Registry) AddTrustedRoot(pem []byte) {
	r.options.AddTrustedRoot(pem)
}
