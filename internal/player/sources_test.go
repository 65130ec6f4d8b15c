package player

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebovdev/streamcore/internal/audio"
	"github.com/glebovdev/streamcore/internal/hls"
	"github.com/gopxl/beep/v2"
)

// silentMP3 returns frames of MPEG-1 Layer III silence: 128 kbit/s, 44.1 kHz,
// no padding, so each frame is 417 bytes with empty side info and main data.
func silentMP3(frames int) []byte {
	const frameSize = 417
	out := make([]byte, 0, frames*frameSize)
	for i := 0; i < frames; i++ {
		frame := make([]byte, frameSize)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
		out = append(out, frame...)
	}
	return out
}

func newMP3HLSServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/radio/index.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "#EXTM3U\n#EXT-X-TARGETDURATION:1\n#EXT-X-MEDIA-SEQUENCE:0\n"+
			"#EXTINF:1.0,\nseg0.mp3\n#EXTINF:1.0,\nseg1.mp3\n#EXT-X-ENDLIST\n")
	})
	for i := 0; i < 2; i++ {
		mux.HandleFunc(fmt.Sprintf("/radio/seg%d.mp3", i), func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write(silentMP3(20))
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOpenHLSDecodesMP3(t *testing.T) {
	server := newMP3HLSServer(t)
	r := NewRegistry(&fakeDevice{}, audio.NewBeepEngine(), WithHLSOptions(hls.WithSleep(noSleep)))

	st, duration, known, err := r.openHLS(server.URL + "/radio/index.m3u8")
	if err != nil {
		t.Fatalf("openHLS: %v", err)
	}
	defer st.Close()

	if !known || duration != 2*time.Second {
		t.Errorf("duration = %v, %v, want 2s", duration, known)
	}
	if st.Seekable() {
		t.Error("HLS stream should not be seekable")
	}
	if rate := st.Format().SampleRate; rate != beep.SampleRate(44100) {
		t.Errorf("sample rate = %d, want 44100", rate)
	}

	if frames := audio.CountFrames(st); frames == 0 {
		t.Error("decoder produced no frames from the segments")
	}
	if err := st.Err(); err != nil {
		t.Errorf("stream error after draining: %v", err)
	}
}

func TestPlayURLHLSWithBeepEngine(t *testing.T) {
	server := newMP3HLSServer(t)
	r := NewRegistry(&fakeDevice{}, audio.NewBeepEngine(), WithHLSOptions(hls.WithSleep(noSleep)))
	h, err := r.Create()
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	_ = r.SetCallback(h, rec)

	if err := r.PlayURL(h, server.URL+"/radio/index.m3u8"); err != nil {
		t.Fatalf("PlayURL: %v", err)
	}
	if empty, _ := r.IsEmpty(h); empty {
		t.Error("decoded HLS stream should be queued")
	}
	if len(rec.errors) != 0 {
		t.Errorf("callback errors = %v", rec.errors)
	}
}
