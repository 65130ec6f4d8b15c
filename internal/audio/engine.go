package audio

import (
	"fmt"
	"io"
	"time"

	"github.com/glebovdev/streamcore/internal/format"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog/log"
)

// BeepEngine decodes MP3, WAV, FLAC and Ogg Vorbis. An unknown hint is
// decoded as MP3, the common case for internet radio.
type BeepEngine struct{}

func NewBeepEngine() *BeepEngine {
	return &BeepEngine{}
}

func (e *BeepEngine) Decode(src io.ReadCloser, opts DecodeOptions) (Stream, error) {
	var (
		streamer beep.StreamSeekCloser
		f        beep.Format
		err      error
	)

	// go-mp3 rewinds any io.Seeker it is given.
	var in io.ReadCloser = src
	if !opts.Seekable {
		in = struct {
			io.Reader
			io.Closer
		}{src, src}
	}

	switch opts.Hint {
	case format.MP3, format.Unknown:
		streamer, f, err = mp3.Decode(in)
	case format.WAV:
		streamer, f, err = wav.Decode(in)
	case format.FLAC:
		streamer, f, err = flac.Decode(in)
	case format.Ogg:
		streamer, f, err = vorbis.Decode(in)
	default:
		src.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Hint)
	}
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, hintName(opts.Hint), err)
	}

	log.Debug().Msgf("Decoded %s stream: %d Hz, %d channels, seekable=%v",
		hintName(opts.Hint), f.SampleRate, f.NumChannels, opts.Seekable)

	s := &source{
		Streamer: streamer,
		format:   f,
		length:   -1,
		closer:   streamer,
		src:      src,
	}
	if opts.Seekable {
		s.seeker = streamer
		s.length = streamer.Len()
	}
	return s, nil
}

func hintName(h format.Hint) string {
	if h == format.Unknown {
		return "mp3 (assumed)"
	}
	return string(h)
}

// source adapts beep streamers to Stream.
type source struct {
	beep.Streamer
	format beep.Format
	seeker beep.StreamSeeker // nil when not seekable
	length int               // frames, -1 when unknown
	closer io.Closer
	src    io.Closer // closed after closer, which usually closed it already
}

func (s *source) Format() beep.Format {
	return s.format
}

func (s *source) Duration() (time.Duration, bool) {
	if s.length <= 0 {
		return 0, false
	}
	return s.format.SampleRate.D(s.length), true
}

func (s *source) Seekable() bool {
	return s.seeker != nil
}

func (s *source) Seek(pos time.Duration) error {
	if s.seeker == nil {
		return ErrSeekUnsupported
	}
	n := s.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if s.length > 0 && n > s.length {
		n = s.length
	}
	if err := s.seeker.Seek(n); err != nil {
		return fmt.Errorf("%w: %w", ErrSeekFailed, err)
	}
	return nil
}

func (s *source) Close() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	if s.src != nil {
		_ = s.src.Close()
	}
	s.closer, s.src = nil, nil
	return err
}

// Loop repeats s forever. The result has no duration and cannot seek.
func Loop(s Stream) (Stream, error) {
	src, ok := s.(*source)
	if !ok || src.seeker == nil {
		return nil, fmt.Errorf("%w: looping needs a seekable stream", ErrSeekUnsupported)
	}
	looped, err := beep.Loop2(src.seeker)
	if err != nil {
		return nil, fmt.Errorf("looping stream: %w", err)
	}
	return &source{
		Streamer: looped,
		format:   src.format,
		length:   -1,
		closer:   src.closer,
		src:      src.src,
	}, nil
}

// Tone is a sine wave of frequency hz lasting d.
func Tone(sr beep.SampleRate, hz float64, d time.Duration) (Stream, error) {
	sine, err := generators.SineTone(sr, hz)
	if err != nil {
		return nil, fmt.Errorf("generating tone: %w", err)
	}
	n := sr.N(d)
	return &source{
		Streamer: beep.Take(n, sine),
		format:   beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2},
		length:   n,
	}, nil
}

// CountFrames drains s and returns how many frames it produced.
func CountFrames(s beep.Streamer) int {
	buf := make([][2]float64, 4096)
	total := 0
	for {
		n, ok := s.Stream(buf)
		total += n
		if !ok {
			return total
		}
	}
}
