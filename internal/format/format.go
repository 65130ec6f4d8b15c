// Package format guesses container formats from HTTP content types and URL
// paths.
package format

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Hint names an audio container. The empty Hint means unknown and the
// engine picks its default decoder.
type Hint string

const (
	Unknown Hint = ""
	MP3     Hint = "mp3"
	AAC     Hint = "aac"
	Ogg     Hint = "ogg"
	FLAC    Hint = "flac"
	WAV     Hint = "wav"
	MP4     Hint = "mp4"
)

var contentTypes = map[string]Hint{
	"audio/mpeg":      MP3,
	"audio/mp3":       MP3,
	"audio/mpeg3":     MP3,
	"audio/x-mpeg":    MP3,
	"audio/aac":       AAC,
	"audio/aacp":      AAC,
	"audio/x-aac":     AAC,
	"audio/ogg":       Ogg,
	"application/ogg": Ogg,
	"audio/vorbis":    Ogg,
	"audio/opus":      Ogg,
	"audio/flac":      FLAC,
	"audio/x-flac":    FLAC,
	"audio/wav":       WAV,
	"audio/x-wav":     WAV,
	"audio/wave":      WAV,
	"audio/vnd.wave":  WAV,
	"audio/mp4":       MP4,
	"audio/x-m4a":     MP4,
	"video/mp4":       MP4,
}

var extensions = map[string]Hint{
	".mp3":  MP3,
	".aac":  AAC,
	".aacp": AAC,
	".ogg":  Ogg,
	".oga":  Ogg,
	".opus": Ogg,
	".flac": FLAC,
	".wav":  WAV,
	".m4a":  MP4,
	".mp4":  MP4,
}

// Detect returns the container hint for a response. The content type wins;
// the URL path extension is consulted only when the content type is missing
// or not recognised.
func Detect(contentType, rawURL string) Hint {
	if h, ok := contentTypes[mediaType(contentType)]; ok {
		return h
	}
	return FromPath(urlPath(rawURL))
}

// FromPath maps a file name or path to a hint using its extension.
func FromPath(p string) Hint {
	return extensions[strings.ToLower(path.Ext(p))]
}

// IsHLS reports whether the URL path ends in .m3u8 or the content type is one
// of the HLS playlist types.
func IsHLS(rawURL, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(urlPath(rawURL)), ".m3u8") {
		return true
	}
	ct := mediaType(contentType)
	return strings.Contains(ct, "vnd.apple.mpegurl") ||
		strings.Contains(ct, "x-mpegurl") ||
		strings.Contains(ct, "mpegurl")
}

// IsPlaylist reports whether the URL or content type names a text playlist
// (M3U, M3U8 or PLS).
func IsPlaylist(rawURL, contentType string) bool {
	switch strings.ToLower(path.Ext(urlPath(rawURL))) {
	case ".m3u", ".m3u8", ".pls":
		return true
	}
	ct := mediaType(contentType)
	for _, marker := range []string{"mpegurl", "x-mpegurl", "scpls", "playlist"} {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// mediaType lowercases ct and strips its parameters.
func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// urlPath returns the path of rawURL without query or fragment. Strings that
// do not parse as URLs are treated as plain paths.
func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
