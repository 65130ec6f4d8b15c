package audio

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const resampleQuality = 4

type queued struct {
	stream Stream

	// mu serialises decoder access between the audio goroutine and TrySeek.
	mu       sync.Mutex
	streamer beep.Streamer // stream, resampled to the sink rate when needed

	// Guarded by QueueSink.mu.
	offset  time.Duration // position of the last seek
	played  int           // sink frames since offset
	seeks   int           // bumped by TrySeek so stale reads are not counted
	busy    bool          // being read by fill
	dropped bool          // removed while busy; fill closes it
}

// QueueSink is a Sink that mixes nothing: it plays its queue in order and
// emits silence when the queue is empty or paused. It is a beep.Streamer meant
// to be handed to the speaker.
//
// Decoder reads happen without holding the queue lock, so controls stay
// responsive while a network stream is stalled.
type QueueSink struct {
	sampleRate beep.SampleRate
	closed     atomic.Bool

	mu    sync.Mutex
	queue []*queued

	ctrlMu sync.Mutex
	paused bool
	gain   float64
}

func NewQueueSink(sampleRate beep.SampleRate) *QueueSink {
	return &QueueSink{sampleRate: sampleRate, gain: 1}
}

// Stream implements beep.Streamer. It reports false once the sink is closed
// so the speaker drops it.
func (s *QueueSink) Stream(samples [][2]float64) (int, bool) {
	if s.closed.Load() {
		return 0, false
	}

	s.ctrlMu.Lock()
	paused, gain := s.paused, s.gain
	s.ctrlMu.Unlock()

	ctrl := &beep.Ctrl{
		Streamer: &effects.Volume{
			Streamer: beep.StreamerFunc(s.fill),
			Base:     2,
			Volume:   gainToVolume(gain),
			Silent:   gain == 0,
		},
		Paused: paused,
	}
	n, _ := ctrl.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func gainToVolume(gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	return math.Log2(gain)
}

func (s *QueueSink) Err() error {
	return nil
}

func (s *QueueSink) fill(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			break
		}
		cur := s.queue[0]
		cur.busy = true
		seeks := cur.seeks
		s.mu.Unlock()

		cur.mu.Lock()
		n, ok := cur.streamer.Stream(samples[filled:])
		cur.mu.Unlock()
		filled += n

		s.mu.Lock()
		cur.busy = false
		if cur.dropped {
			s.mu.Unlock()
			cur.stream.Close()
			continue
		}
		if cur.seeks == seeks {
			cur.played += n
		}
		if ok && n > 0 {
			s.mu.Unlock()
			continue
		}
		if !ok {
			s.queue = s.queue[1:]
			s.mu.Unlock()
			if err := cur.stream.Err(); err != nil {
				log.Warn().Err(err).Msg("Stream ended with error")
			}
			cur.stream.Close()
			continue
		}
		s.mu.Unlock()
		break
	}
	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (s *QueueSink) resampled(st Stream) beep.Streamer {
	if sr := st.Format().SampleRate; sr != s.sampleRate && sr > 0 {
		return beep.Resample(resampleQuality, sr, s.sampleRate, st)
	}
	return st
}

func (s *QueueSink) Append(st Stream) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		st.Close()
		return
	}
	s.queue = append(s.queue, &queued{stream: st, streamer: s.resampled(st)})
	s.mu.Unlock()
}

func (s *QueueSink) Play() {
	s.setPaused(false)
}

func (s *QueueSink) Pause() {
	s.setPaused(true)
}

func (s *QueueSink) setPaused(paused bool) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	s.paused = paused
}

func (s *QueueSink) Stop() {
	closeAll(s.drop())
}

func (s *QueueSink) Clear() {
	closeAll(s.drop())
	s.setPaused(true)
}

// drop empties the queue and returns the streams the caller must close.
// Streams being read by fill are left for fill to close.
func (s *QueueSink) drop() []Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	idle := make([]Stream, 0, len(s.queue))
	for _, q := range s.queue {
		if q.busy {
			q.dropped = true
			continue
		}
		idle = append(idle, q.stream)
	}
	s.queue = nil
	return idle
}

func closeAll(streams []Stream) {
	for _, st := range streams {
		st.Close()
	}
}

func (s *QueueSink) IsPaused() bool {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	return s.paused
}

func (s *QueueSink) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) == 0
}

// SetVolume sets a linear gain: 1 is unchanged, 0 is silent.
func (s *QueueSink) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	s.gain = v
}

func (s *QueueSink) Volume() float64 {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	return s.gain
}

func (s *QueueSink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0
	}
	cur := s.queue[0]
	return cur.offset + s.sampleRate.D(cur.played)
}

// TrySeek seeks the current stream. An empty queue is not an error. It waits
// for an in-flight read of that stream to finish.
func (s *QueueSink) TrySeek(pos time.Duration) error {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil
	}
	cur := s.queue[0]
	s.mu.Unlock()

	cur.mu.Lock()
	defer cur.mu.Unlock()
	if err := cur.stream.Seek(pos); err != nil {
		return err
	}
	cur.streamer = s.resampled(cur.stream)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur.seeks++
	cur.offset = pos
	cur.played = 0
	return nil
}

func (s *QueueSink) Close() error {
	s.mu.Lock()
	s.closed.Store(true)
	s.mu.Unlock()
	closeAll(s.drop())
	return nil
}

// SpeakerDevice plays sinks through the process-wide beep speaker, which is
// initialised on the first OpenSink.
type SpeakerDevice struct {
	mu          sync.Mutex
	sampleRate  beep.SampleRate
	speakerInit bool
}

func NewSpeakerDevice() *SpeakerDevice {
	return &SpeakerDevice{sampleRate: DefaultSampleRate}
}

func (d *SpeakerDevice) initSpeaker() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.speakerInit {
		if err := speaker.Init(d.sampleRate, d.sampleRate.N(SpeakerBufferSize)); err != nil {
			return errors.Join(ErrDeviceUnavailable, err)
		}
		d.speakerInit = true
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", d.sampleRate, SpeakerBufferSize)
	}
	return nil
}

func (d *SpeakerDevice) OpenSink() (Sink, error) {
	if err := d.initSpeaker(); err != nil {
		return nil, err
	}
	sink := &speakerSink{QueueSink: NewQueueSink(d.sampleRate)}
	speaker.Play(sink.QueueSink)
	return sink, nil
}

type speakerSink struct {
	*QueueSink
}

// Close holds the speaker lock so the sink is detached before Close returns.
func (s *speakerSink) Close() error {
	speaker.Lock()
	defer speaker.Unlock()
	return s.QueueSink.Close()
}
