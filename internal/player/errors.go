package player

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/glebovdev/streamcore/internal/audio"
	"github.com/glebovdev/streamcore/internal/hls"
	"github.com/glebovdev/streamcore/internal/httpstream"
	"github.com/glebovdev/streamcore/internal/playlist"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrIO               = errors.New("io error")
	ErrSeek             = errors.New("seek error")
	ErrInternal         = errors.New("internal error")
)

// NotFoundError is returned for any operation on an unknown handle.
type NotFoundError struct {
	Handle Handle
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("player %d not found", e.Handle)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrSessionNotFound
}

func invalidParameter(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// Kind is the error category reported across the binding boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidParameter
	KindIO
	KindDecode
	KindNetwork
	KindHTTPStatus
	KindPlaylist
	KindSeek
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidParameter:
		return "INVALID_PARAMETER"
	case KindIO:
		return "IO"
	case KindDecode:
		return "DECODE"
	case KindNetwork:
		return "NETWORK"
	case KindHTTPStatus:
		return "HTTP_STATUS"
	case KindPlaylist:
		return "PLAYLIST"
	case KindSeek:
		return "SEEK"
	default:
		return "INTERNAL"
	}
}

// Classify maps err onto a Kind. Unrecognised errors are internal.
func Classify(err error) Kind {
	var statusErr *httpstream.StatusError

	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidParameter), errors.Is(err, httpstream.ErrInvalidURL):
		return KindInvalidParameter
	case errors.Is(err, ErrSeek),
		errors.Is(err, audio.ErrSeekUnsupported),
		errors.Is(err, audio.ErrSeekFailed),
		errors.Is(err, hls.ErrSeekUnsupported):
		return KindSeek
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.Is(err, playlist.ErrNoStreamURL),
		errors.Is(err, playlist.ErrInvalidManifest),
		errors.Is(err, playlist.ErrNoVariant),
		errors.Is(err, playlist.ErrUnsupported):
		return KindPlaylist
	case errors.Is(err, httpstream.ErrTransport):
		return KindNetwork
	case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrUnsupportedFormat):
		return KindDecode
	case errors.Is(err, ErrIO), errors.Is(err, audio.ErrDeviceUnavailable):
		return KindIO
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}
	return KindInternal
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *httpstream.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
