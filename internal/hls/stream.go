// Package hls exposes an HLS media playlist as one continuous byte stream.
//
// Segments are fetched lazily from Read: there is no background prefetch. When
// the known segments of a live playlist are exhausted the playlist is fetched
// again after RefreshDelay. Neither playlist nor segment requests time out.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/glebovdev/streamcore/internal/httpstream"
	"github.com/glebovdev/streamcore/internal/metrics"
	"github.com/glebovdev/streamcore/internal/playlist"
	"github.com/rs/zerolog/log"
)

const (
	minRefreshDelay = 500 * time.Millisecond
	maxRefreshDelay = 2 * time.Second
)

var ErrSeekUnsupported = errors.New("seeking is not supported on HLS streams")

// Fetcher is the HTTP surface the stream needs. *httpstream.Client implements it.
type Fetcher interface {
	playlist.Fetcher
	Open(ctx context.Context, rawURL string, wantMetadata bool) (*httpstream.Response, error)
}

// Option configures a Stream.
type Option func(*Stream)

// WithSleep replaces the function used to wait between playlist refreshes.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Stream) {
		s.sleep = sleep
	}
}

// Stream is an io.ReadSeekCloser over the segments of one media playlist.
// It is not safe for concurrent use.
type Stream struct {
	ctx    context.Context
	client Fetcher
	sleep  func(context.Context, time.Duration) error

	playlistURL string
	media       *playlist.Media // nil once exhausted, refetched on demand
	nextSeq     uint64
	segment     io.ReadCloser
	ended       bool
	pos         int64

	duration      time.Duration
	durationKnown bool
}

// Open resolves manifestURL (master or media playlist) and returns a stream
// positioned at the first segment the playlist offers. ctx bounds every
// request issued by later reads.
func Open(ctx context.Context, client Fetcher, manifestURL string, opts ...Option) (*Stream, error) {
	media, err := playlist.ResolveHLS(ctx, client, manifestURL)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		ctx:         ctx,
		client:      client,
		sleep:       sleepContext,
		playlistURL: media.URL.String(),
		media:       media,
		nextSeq:     media.Playlist.SeqNo,
	}
	for _, opt := range opts {
		opt(s)
	}

	if media.Playlist.Closed {
		var total float64
		for _, seg := range media.Segments() {
			total += seg.Duration
		}
		s.duration = time.Duration(total * float64(time.Second))
		s.durationKnown = true
	}

	log.Debug().
		Str("playlist", media.URL.Redacted()).
		Uint64("sequence", s.nextSeq).
		Bool("vod", media.Playlist.Closed).
		Msg("Opened HLS stream")

	return s, nil
}

// RefreshDelay is half the target duration clamped to [500ms, 2s].
func RefreshDelay(targetDuration float64) time.Duration {
	d := time.Duration(targetDuration / 2 * float64(time.Second))
	if d < minRefreshDelay {
		return minRefreshDelay
	}
	if d > maxRefreshDelay {
		return maxRefreshDelay
	}
	return d
}

// Duration is the sum of segment durations for a complete playlist. Live
// playlists report false.
func (s *Stream) Duration() (time.Duration, bool) {
	return s.duration, s.durationKnown
}

// NextSegment returns the URI of the segment the next fetch will request, or
// "" when it is not yet known.
func (s *Stream) NextSegment() string {
	if s.media == nil {
		return ""
	}
	segments := s.media.Segments()
	seq := s.nextSeq
	if first := s.media.Playlist.SeqNo; seq < first {
		seq = first
	}
	if idx := seq - s.media.Playlist.SeqNo; idx < uint64(len(segments)) {
		return segments[idx].URI
	}
	return ""
}

func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if s.ended {
			return 0, io.EOF
		}

		if s.segment == nil {
			segmentURL, err := s.nextSegment()
			if err != nil {
				return 0, err
			}
			resp, err := s.client.Open(s.ctx, segmentURL, false)
			if err != nil {
				return 0, fmt.Errorf("fetching segment: %w", err)
			}
			metrics.HLSSegments.Inc()
			s.segment = resp.Body
		}

		n, err := s.segment.Read(p)
		if n > 0 {
			s.pos += int64(n)
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		s.closeSegment()
	}
}

// Seek only answers the current position query Seek(0, io.SeekCurrent).
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekCurrent {
		return s.pos, nil
	}
	return 0, ErrSeekUnsupported
}

func (s *Stream) Close() error {
	s.ended = true
	s.media = nil
	s.closeSegment()
	return nil
}

func (s *Stream) closeSegment() {
	if s.segment != nil {
		s.segment.Close()
		s.segment = nil
	}
}

// nextSegment runs the cursor until it yields the URL of the next segment or
// the playlist ends. A live playlist with nothing new is refetched after
// RefreshDelay; that wait is not an error.
func (s *Stream) nextSegment() (string, error) {
	for {
		if s.media == nil {
			media, err := playlist.FetchMedia(s.ctx, s.client, s.playlistURL)
			if err != nil {
				return "", err
			}
			metrics.HLSPlaylistRefreshes.Inc()
			s.media = media
		}

		p := s.media.Playlist
		segments := s.media.Segments()

		if len(segments) > 0 {
			if s.nextSeq < p.SeqNo {
				log.Debug().
					Uint64("from", s.nextSeq).
					Uint64("to", p.SeqNo).
					Msg("HLS cursor behind playlist, jumping to live edge")
				s.nextSeq = p.SeqNo
			}

			if idx := s.nextSeq - p.SeqNo; idx < uint64(len(segments)) {
				seg := segments[idx]
				if err := playlist.CheckSegment(p, seg); err != nil {
					return "", err
				}
				u, err := playlist.ResolveURI(s.media.URL, seg.URI)
				if err != nil {
					return "", err
				}
				s.nextSeq++
				return u.String(), nil
			}
		}

		if p.Closed {
			s.ended = true
			s.media = nil
			return "", io.EOF
		}

		delay := RefreshDelay(p.TargetDuration)
		s.media = nil
		log.Debug().Dur("delay", delay).Msg("HLS playlist exhausted, refreshing")
		if err := s.sleep(s.ctx, delay); err != nil {
			return "", err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
