package audio

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebovdev/streamcore/internal/format"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

const testRate = beep.SampleRate(8000)

// constStream emits n frames of value v.
type constStream struct {
	v      float64
	n      int
	pos    int
	rate   beep.SampleRate
	closed bool
}

func (c *constStream) Stream(samples [][2]float64) (int, bool) {
	if c.pos >= c.n {
		return 0, false
	}
	k := 0
	for k < len(samples) && c.pos < c.n {
		samples[k] = [2]float64{c.v, c.v}
		k++
		c.pos++
	}
	return k, true
}

func (c *constStream) Err() error          { return nil }
func (c *constStream) Format() beep.Format { return beep.Format{SampleRate: c.rate, NumChannels: 2, Precision: 2} }
func (c *constStream) Duration() (time.Duration, bool) {
	return c.rate.D(c.n), true
}
func (c *constStream) Seekable() bool { return true }
func (c *constStream) Seek(pos time.Duration) error {
	c.pos = c.rate.N(pos)
	return nil
}
func (c *constStream) Close() error {
	c.closed = true
	return nil
}

func TestQueueSinkPlaysInOrder(t *testing.T) {
	sink := NewQueueSink(testRate)
	a := &constStream{v: 0.25, n: 3, rate: testRate}
	b := &constStream{v: 0.5, n: 2, rate: testRate}
	sink.Append(a)
	sink.Append(b)

	buf := make([][2]float64, 8)
	n, ok := sink.Stream(buf)
	if n != len(buf) || !ok {
		t.Fatalf("Stream() = %d, %v", n, ok)
	}

	want := []float64{0.25, 0.25, 0.25, 0.5, 0.5, 0, 0, 0}
	for i, w := range want {
		if buf[i][0] != w {
			t.Errorf("sample %d = %v, want %v", i, buf[i][0], w)
		}
	}
	if !a.closed {
		t.Error("finished stream should be closed")
	}
}

func TestQueueSinkEmptyAndPaused(t *testing.T) {
	sink := NewQueueSink(testRate)
	if !sink.IsEmpty() {
		t.Error("new sink should be empty")
	}
	if sink.IsPaused() {
		t.Error("new sink should not be paused")
	}

	sink.Append(&constStream{v: 1, n: 100, rate: testRate})
	sink.Pause()

	buf := make([][2]float64, 10)
	sink.Stream(buf)
	for i := range buf {
		if buf[i][0] != 0 {
			t.Fatalf("paused sink produced sample %v", buf[i][0])
		}
	}
	if sink.Position() != 0 {
		t.Errorf("Position() = %v while paused from the start", sink.Position())
	}

	sink.Play()
	sink.Stream(buf)
	if buf[0][0] != 1 {
		t.Errorf("sample after Play = %v, want 1", buf[0][0])
	}
	if got, want := sink.Position(), testRate.D(10); got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}
}

func TestQueueSinkStopAndClear(t *testing.T) {
	sink := NewQueueSink(testRate)
	s := &constStream{v: 1, n: 100, rate: testRate}
	sink.Append(s)

	sink.Stop()
	if !sink.IsEmpty() || !s.closed {
		t.Error("Stop should drop and close queued streams")
	}
	if sink.IsPaused() {
		t.Error("Stop should not pause")
	}

	sink.Append(&constStream{v: 1, n: 100, rate: testRate})
	sink.Clear()
	if !sink.IsEmpty() {
		t.Error("Clear should drop queued streams")
	}
	if !sink.IsPaused() {
		t.Error("Clear should pause")
	}
}

func TestQueueSinkVolume(t *testing.T) {
	sink := NewQueueSink(testRate)
	if sink.Volume() != 1 {
		t.Errorf("default volume = %v, want 1", sink.Volume())
	}

	sink.SetVolume(0.5)
	sink.Append(&constStream{v: 0.8, n: 4, rate: testRate})
	buf := make([][2]float64, 2)
	sink.Stream(buf)
	if math.Abs(buf[0][0]-0.4) > 1e-9 {
		t.Errorf("sample at volume 0.5 = %v, want 0.4", buf[0][0])
	}

	sink.SetVolume(0)
	sink.Stream(buf)
	if buf[0][0] != 0 {
		t.Errorf("sample at volume 0 = %v, want 0", buf[0][0])
	}
	if sink.Volume() != 0 {
		t.Errorf("Volume() = %v, want 0", sink.Volume())
	}
}

func TestQueueSinkTrySeek(t *testing.T) {
	sink := NewQueueSink(testRate)
	if err := sink.TrySeek(time.Second); err != nil {
		t.Errorf("TrySeek on empty sink: %v", err)
	}

	s := &constStream{v: 1, n: int(testRate) * 10, rate: testRate}
	sink.Append(s)
	if err := sink.TrySeek(2 * time.Second); err != nil {
		t.Fatalf("TrySeek: %v", err)
	}
	if s.pos != int(testRate)*2 {
		t.Errorf("stream position = %d, want %d", s.pos, int(testRate)*2)
	}
	if sink.Position() != 2*time.Second {
		t.Errorf("Position() = %v, want 2s", sink.Position())
	}
}

func TestQueueSinkClose(t *testing.T) {
	sink := NewQueueSink(testRate)
	sink.Append(&constStream{v: 1, n: 10, rate: testRate})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.Stream(make([][2]float64, 4)); ok {
		t.Error("closed sink should report ok=false")
	}

	late := &constStream{v: 1, n: 10, rate: testRate}
	sink.Append(late)
	if !late.closed {
		t.Error("stream appended after Close should be closed")
	}
}

// stallStream blocks its first read until release is closed, like a network
// decoder waiting on a slow server.
type stallStream struct {
	constStream
	entered chan struct{}
	release chan struct{}
	shut    atomic.Bool
}

func (s *stallStream) Stream(samples [][2]float64) (int, bool) {
	select {
	case <-s.entered:
	default:
		close(s.entered)
		<-s.release
	}
	return s.constStream.Stream(samples)
}

func (s *stallStream) Close() error {
	s.shut.Store(true)
	return nil
}

func TestQueueSinkControlsDuringStalledRead(t *testing.T) {
	sink := NewQueueSink(testRate)
	stalled := &stallStream{
		constStream: constStream{v: 1, n: 100, rate: testRate},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	sink.Append(stalled)

	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		sink.Stream(make([][2]float64, 16))
	}()
	<-stalled.entered

	controls := make(chan struct{})
	go func() {
		defer close(controls)
		sink.Pause()
		_ = sink.IsPaused()
		sink.SetVolume(0.5)
		_ = sink.Volume()
		_ = sink.Position()
		sink.Stop()
		_ = sink.IsEmpty()
	}()

	select {
	case <-controls:
	case <-time.After(2 * time.Second):
		close(stalled.release)
		t.Fatal("controls blocked behind a stalled read")
	}

	if !sink.IsEmpty() {
		t.Error("Stop should empty the queue during a read")
	}
	if stalled.shut.Load() {
		t.Error("stream closed while still being read")
	}

	close(stalled.release)
	<-streamed
	if !stalled.shut.Load() {
		t.Error("stream dropped during a read should be closed once the read returns")
	}
}

func TestQueueSinkSeekCountsFromNewPosition(t *testing.T) {
	sink := NewQueueSink(testRate)
	s := &constStream{v: 1, n: int(testRate) * 10, rate: testRate}
	sink.Append(s)

	sink.Stream(make([][2]float64, 100))
	if err := sink.TrySeek(time.Second); err != nil {
		t.Fatal(err)
	}
	sink.Stream(make([][2]float64, 80))
	if got, want := sink.Position(), time.Second+testRate.D(80); got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}
}

func TestTone(t *testing.T) {
	s, err := Tone(testRate, 440, 250*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	d, ok := s.Duration()
	if !ok || d != 250*time.Millisecond {
		t.Errorf("Duration() = %v, %v", d, ok)
	}
	if s.Seekable() {
		t.Error("tone should not be seekable")
	}
	if err := s.Seek(0); !errors.Is(err, ErrSeekUnsupported) {
		t.Errorf("Seek error = %v, want ErrSeekUnsupported", err)
	}
	if n := CountFrames(s); n != testRate.N(250*time.Millisecond) {
		t.Errorf("CountFrames() = %d, want %d", n, testRate.N(250*time.Millisecond))
	}
}

func writeWAV(t *testing.T, d time.Duration) string {
	t.Helper()
	tone, err := Tone(testRate, 440, d)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := wav.Encode(f, tone, tone.Format()); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBeepEngineDecodeWAV(t *testing.T) {
	path := writeWAV(t, time.Second)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewBeepEngine().Decode(f, DecodeOptions{Length: -1, Hint: format.WAV, Seekable: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer s.Close()

	if s.Format().SampleRate != testRate {
		t.Errorf("SampleRate = %d, want %d", s.Format().SampleRate, testRate)
	}
	d, ok := s.Duration()
	if !ok || d != time.Second {
		t.Errorf("Duration() = %v, %v, want 1s", d, ok)
	}
	if !s.Seekable() {
		t.Error("file stream should be seekable")
	}
	if err := s.Seek(500 * time.Millisecond); err != nil {
		t.Errorf("Seek: %v", err)
	}
	if n := CountFrames(s); n != int(testRate)/2 {
		t.Errorf("frames after seek = %d, want %d", n, int(testRate)/2)
	}
}

func TestBeepEngineLoop(t *testing.T) {
	f, err := os.Open(writeWAV(t, 100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewBeepEngine().Decode(f, DecodeOptions{Length: -1, Hint: format.WAV, Seekable: true})
	if err != nil {
		t.Fatal(err)
	}
	looped, err := Loop(s)
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	defer looped.Close()

	if _, ok := looped.Duration(); ok {
		t.Error("looped stream should have no duration")
	}
	if looped.Seekable() {
		t.Error("looped stream should not be seekable")
	}

	// Three passes worth of frames must still report ok.
	buf := make([][2]float64, testRate.N(300*time.Millisecond))
	total := 0
	for total < len(buf) {
		n, ok := looped.Stream(buf[total:])
		if !ok {
			t.Fatalf("looped stream ended after %d frames", total)
		}
		total += n
	}
}

func TestBeepEngineErrors(t *testing.T) {
	_, err := NewBeepEngine().Decode(io.NopCloser(strings.NewReader("x")), DecodeOptions{Hint: format.AAC})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("AAC error = %v, want ErrUnsupportedFormat", err)
	}

	_, err = NewBeepEngine().Decode(io.NopCloser(strings.NewReader("definitely not audio")), DecodeOptions{Hint: format.WAV})
	if !errors.Is(err, ErrDecode) {
		t.Errorf("garbage WAV error = %v, want ErrDecode", err)
	}
}
