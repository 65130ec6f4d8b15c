// Package playlist resolves playlist URLs into concrete stream URLs: legacy
// radio text playlists (M3U, PLS) and HLS master/media manifests.
package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNoStreamURL     = errors.New("no stream URL found in playlist")
	ErrInvalidManifest = errors.New("invalid HLS manifest")
	ErrNoVariant       = errors.New("no selectable variant in master playlist")
	ErrUnsupported     = errors.New("unsupported HLS feature")
)

// ResolveText returns the first stream entry of a text playlist. Bare URIs
// and key=value lines whose key starts with "file" (case-insensitive) are
// candidates; relative entries are resolved against base.
func ResolveText(base *url.URL, body string) (*url.URL, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		entry, ok := candidate(scanner.Text())
		if !ok {
			continue
		}
		return resolve(base, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}
	return nil, ErrNoStreamURL
}

func candidate(line string) (string, bool) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if line == "" {
		return "", false
	}
	switch line[0] {
	case '#', ';', '[':
		return "", false
	}

	if key, value, ok := strings.Cut(line, "="); ok && isKey(key) {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(key)), "file") {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}
	return line, true
}

// isKey tells a PLS key apart from a URI that happens to contain '='.
func isKey(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/:?&")
}

func resolve(base *url.URL, entry string) (*url.URL, error) {
	ref, err := url.Parse(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %w", ErrNoStreamURL, entry, err)
	}
	if ref.Scheme != "" {
		return ref, nil
	}
	if base == nil {
		return nil, fmt.Errorf("%w: relative entry %q without a base URL", ErrNoStreamURL, entry)
	}
	return base.ResolveReference(ref), nil
}
