package playlist

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads a small resource and reports the URL it was finally
// served from. *httpstream.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error)
}

// Media is a parsed media playlist together with the URL segment URIs are
// resolved against.
type Media struct {
	URL      *url.URL
	Playlist *m3u8.MediaPlaylist
}

// Segments returns the decoded segments in order.
func (m *Media) Segments() []*m3u8.MediaSegment {
	return Segments(m.Playlist)
}

// ResolveHLS fetches manifestURL. A media playlist is returned as is; for a
// master playlist the highest bandwidth variant is fetched instead.
func ResolveHLS(ctx context.Context, f Fetcher, manifestURL string) (*Media, error) {
	body, final, err := f.Fetch(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is neither a media nor a master playlist: %w", ErrInvalidManifest, final.Redacted(), err)
	}

	switch listType {
	case m3u8.MEDIA:
		return &Media{URL: final, Playlist: p.(*m3u8.MediaPlaylist)}, nil
	case m3u8.MASTER:
		variant, err := SelectVariant(p.(*m3u8.MasterPlaylist))
		if err != nil {
			return nil, err
		}
		variantURL, err := ResolveURI(final, variant.URI)
		if err != nil {
			return nil, err
		}
		log.Debug().
			Str("variant", variantURL.Redacted()).
			Uint32("bandwidth", variant.Bandwidth).
			Msg("Selected HLS variant")
		return FetchMedia(ctx, f, variantURL.String())
	default:
		return nil, fmt.Errorf("%w: %s has unknown playlist type", ErrInvalidManifest, final.Redacted())
	}
}

// FetchMedia fetches and decodes a media playlist.
func FetchMedia(ctx context.Context, f Fetcher, rawURL string) (*Media, error) {
	body, final, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	p, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, fmt.Errorf("%w: media playlist %s: %w", ErrInvalidManifest, final.Redacted(), err)
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%w: %s is not a media playlist", ErrInvalidManifest, final.Redacted())
	}
	return &Media{URL: final, Playlist: p.(*m3u8.MediaPlaylist)}, nil
}

// SelectVariant picks the regular variant with the highest declared bandwidth.
// I-frame only variants are never selected.
func SelectVariant(master *m3u8.MasterPlaylist) (*m3u8.Variant, error) {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.Iframe || strings.TrimSpace(v.URI) == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return nil, ErrNoVariant
	}
	return best, nil
}

// Segments returns the non-nil segments of p in playlist order.
func Segments(p *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	if p == nil {
		return nil
	}
	out := make([]*m3u8.MediaSegment, 0, p.Count())
	for _, s := range p.Segments {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// CheckSegment rejects segments this package cannot play: external init
// sections, byte ranges and encryption.
func CheckSegment(p *m3u8.MediaPlaylist, s *m3u8.MediaSegment) error {
	switch {
	case s.Map != nil || p.Map != nil:
		return fmt.Errorf("%w: segment %q uses an EXT-X-MAP init section", ErrUnsupported, s.URI)
	case s.Limit > 0 || s.Offset > 0:
		return fmt.Errorf("%w: segment %q uses byte-range addressing", ErrUnsupported, s.URI)
	case s.Key != nil || p.Key != nil:
		return fmt.Errorf("%w: segment %q carries an EXT-X-KEY", ErrUnsupported, s.URI)
	}
	return nil
}

// ResolveURI resolves a playlist URI against the playlist's own URL. Absolute
// URIs are returned verbatim.
func ResolveURI(base *url.URL, uri string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: URI %q: %w", ErrInvalidManifest, uri, err)
	}
	if ref.IsAbs() || base == nil {
		return ref, nil
	}
	return base.ResolveReference(ref), nil
}
