package player

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/glebovdev/streamcore/internal/audio"
	"github.com/glebovdev/streamcore/internal/format"
	"github.com/glebovdev/streamcore/internal/hls"
	"github.com/glebovdev/streamcore/internal/httpstream"
	"github.com/glebovdev/streamcore/internal/icy"
	"github.com/glebovdev/streamcore/internal/playlist"
	"github.com/rs/zerolog/log"
)

// PlayFile decodes a local file and appends it to h. A looped file repeats
// forever, has no duration and cannot seek.
//
// When the decoder cannot report a duration the file is decoded a second
// time just to count frames. This costs a full decode on large files.
func (r *Registry) PlayFile(h Handle, path string, looped bool) error {
	if _, err := r.lookup(h); err != nil {
		return err
	}

	st, err := r.decodeFile(path)
	if err != nil {
		return r.fail(h, err)
	}

	var (
		duration time.Duration
		known    bool
		seekable = st.Seekable()
	)
	if looped {
		looped, err := audio.Loop(st)
		if err != nil {
			st.Close()
			return r.fail(h, err)
		}
		st, seekable = looped, false
	} else if duration, known = st.Duration(); !known {
		duration, known = r.estimateDuration(path)
	}

	log.Debug().Str("path", path).Bool("looped", looped).Dur("duration", duration).Msg("Playing file")
	return r.commit(h, st, duration, known, seekable)
}

func (r *Registry) decodeFile(path string) (audio.Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	length := int64(-1)
	if info, err := f.Stat(); err == nil {
		length = info.Size()
	}
	return r.engine.Decode(f, audio.DecodeOptions{
		Length:   length,
		Hint:     format.FromPath(path),
		Seekable: true,
	})
}

// estimateDuration decodes path once and converts the frame count to time.
func (r *Registry) estimateDuration(path string) (time.Duration, bool) {
	st, err := r.decodeFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Duration estimate failed")
		return 0, false
	}
	defer st.Close()

	rate := st.Format().SampleRate
	if rate <= 0 {
		return 0, false
	}
	frames := audio.CountFrames(st)
	if frames == 0 {
		return 0, false
	}
	return rate.D(frames), true
}

// PlayTone appends a sine tone of frequencyHz lasting d.
func (r *Registry) PlayTone(h Handle, frequencyHz float64, d time.Duration) error {
	if frequencyHz <= 0 {
		return r.fail(h, invalidParameter("invalid frequency: %v", frequencyHz))
	}
	if d <= 0 {
		return r.fail(h, invalidParameter("invalid duration: %v", d))
	}
	if _, err := r.lookup(h); err != nil {
		return err
	}

	st, err := audio.Tone(audio.DefaultSampleRate, frequencyHz, d)
	if err != nil {
		return r.fail(h, invalidParameter("%v", err))
	}
	return r.commit(h, st, d, true, false)
}

// PlayURL plays a direct HTTP stream, an HLS manifest, or the first entry
// of a text playlist.
func (r *Registry) PlayURL(h Handle, rawURL string) error {
	return r.playNetwork(h, rawURL, false)
}

// PlayRadio is PlayURL with ICY metadata requested. Interleaved metadata is
// delivered to the callback while the stream plays.
func (r *Registry) PlayRadio(h Handle, rawURL string) error {
	return r.playNetwork(h, rawURL, true)
}

func (r *Registry) playNetwork(h Handle, rawURL string, radio bool) error {
	if _, err := httpstream.ParseURL(rawURL); err != nil {
		return r.fail(h, invalidParameter("%v", err))
	}
	s, err := r.lookup(h)
	if err != nil {
		return err
	}
	s.emit(EventConnecting)

	st, duration, known, err := r.openNetwork(s, rawURL, radio, true)
	if err != nil {
		return r.fail(h, err)
	}
	return r.commit(h, st, duration, known, false)
}

// openNetwork opens rawURL and decodes it. Text playlists are followed one
// level when follow is set.
func (r *Registry) openNetwork(s *session, rawURL string, radio, follow bool) (audio.Stream, time.Duration, bool, error) {
	if format.IsHLS(rawURL, "") {
		return r.openHLSOrText(s, rawURL, radio, follow)
	}
	if follow && format.IsPlaylist(rawURL, "") {
		resolved, err := r.resolveText(rawURL)
		if err != nil {
			return nil, 0, false, err
		}
		return r.openNetwork(s, resolved, radio, false)
	}

	resp, err := r.client.Open(r.ctx, rawURL, radio)
	if err != nil {
		return nil, 0, false, err
	}

	finalURL := resp.URL.String()
	switch {
	case format.IsHLS(finalURL, resp.ContentType):
		resp.Body.Close()
		return r.openHLSOrText(s, finalURL, radio, follow)
	case follow && format.IsPlaylist(finalURL, resp.ContentType):
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, 0, false, fmt.Errorf("%w: reading playlist: %w", httpstream.ErrTransport, err)
		}
		resolved, err := playlist.ResolveText(resp.URL, string(body))
		if err != nil {
			return nil, 0, false, err
		}
		return r.openNetwork(s, resolved.String(), radio, false)
	}

	for _, d := range resp.Station.Descriptors() {
		s.emitMetadata(d.Key, d.Value)
	}

	var body io.ReadCloser = resp.Body
	if radio && resp.MetaInt > 0 {
		body = struct {
			io.Reader
			io.Closer
		}{
			Reader: icy.NewReader(resp.Body, resp.MetaInt, func(fields []icy.Field) {
				for _, f := range fields {
					s.emitMetadata(f.Key, f.Value)
				}
			}),
			Closer: resp.Body,
		}
	}

	hint := format.Detect(resp.ContentType, finalURL)
	st, err := r.engine.Decode(body, audio.DecodeOptions{
		Length:   resp.ContentLength,
		Hint:     hint,
		Seekable: false,
	})
	if err != nil {
		return nil, 0, false, err
	}

	log.Info().
		Str("url", resp.URL.Redacted()).
		Str("hint", string(hint)).
		Int("metaint", resp.MetaInt).
		Str("station", resp.Station.Name).
		Msg("Stream opened")

	duration, known := st.Duration()
	return st, duration, known, nil
}

// openHLSOrText opens rawURL as HLS. Legacy radio playlists share the HLS
// extension and content type but carry no tags; when the manifest does not
// parse they are read as a text playlist instead.
func (r *Registry) openHLSOrText(s *session, rawURL string, radio, follow bool) (audio.Stream, time.Duration, bool, error) {
	st, duration, known, err := r.openHLS(rawURL)
	if err == nil || !follow || !errors.Is(err, playlist.ErrInvalidManifest) {
		return st, duration, known, err
	}

	resolved, textErr := r.resolveText(rawURL)
	if textErr != nil {
		log.Debug().Err(textErr).Msg("Not a text playlist either")
		return nil, 0, false, err
	}
	log.Debug().Err(err).Str("stream", resolved).Msg("Manifest is not HLS, using text playlist entry")
	return r.openNetwork(s, resolved, radio, false)
}

func (r *Registry) openHLS(rawURL string) (audio.Stream, time.Duration, bool, error) {
	stream, err := hls.Open(r.ctx, r.client, rawURL, r.hlsOptions...)
	if err != nil {
		return nil, 0, false, err
	}
	duration, known := stream.Duration()

	// Decoders rewind any io.Seeker; the stream only answers position
	// queries, so it is handed over as a plain reader.
	body := struct {
		io.Reader
		io.Closer
	}{stream, stream}
	st, err := r.engine.Decode(body, audio.DecodeOptions{
		Length:   -1,
		Hint:     format.Detect("", stream.NextSegment()),
		Seekable: false,
	})
	if err != nil {
		return nil, 0, false, err
	}
	return st, duration, known, nil
}

func (r *Registry) resolveText(rawURL string) (string, error) {
	body, final, err := r.client.Fetch(r.ctx, rawURL)
	if err != nil {
		return "", err
	}
	resolved, err := playlist.ResolveText(final, string(body))
	if err != nil {
		return "", err
	}
	log.Debug().Str("playlist", final.Redacted()).Str("stream", resolved.Redacted()).Msg("Resolved text playlist")
	return resolved.String(), nil
}
