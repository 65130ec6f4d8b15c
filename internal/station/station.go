// Package station defines the radio station descriptors advertised by ICY servers.
package station

import (
	"html"
	"net/http"
	"strconv"
	"strings"
)

// Header names surfaced to session callbacks, in delivery order.
const (
	HeaderName        = "icy-name"
	HeaderDescription = "icy-description"
	HeaderGenre       = "icy-genre"
	HeaderURL         = "icy-url"
	HeaderBitrate     = "icy-br"
)

// Station represents the station descriptors sent with an ICY response.
type Station struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	URL         string `json:"url"`
	Bitrate     int    `json:"bitrate"` // kbit/s, 0 when not advertised
}

// Descriptor is one station header value.
type Descriptor struct {
	Key   string
	Value string
}

// FromHeader extracts the station descriptors from response headers.
// Servers sometimes send HTML entities in names, so values are unescaped.
func FromHeader(h http.Header) Station {
	s := Station{
		Name:        headerValue(h, HeaderName),
		Description: headerValue(h, HeaderDescription),
		Genre:       headerValue(h, HeaderGenre),
		URL:         headerValue(h, HeaderURL),
	}
	if br := headerValue(h, HeaderBitrate); br != "" {
		// Some servers send "128,128"
		if i := strings.IndexByte(br, ','); i >= 0 {
			br = br[:i]
		}
		s.Bitrate, _ = strconv.Atoi(strings.TrimSpace(br))
	}
	return s
}

// IsEmpty reports whether no descriptor was advertised.
func (s Station) IsEmpty() bool {
	return s == Station{}
}

// Descriptors returns the name, description and genre that are present, in
// that order, keyed by their header names.
func (s Station) Descriptors() []Descriptor {
	var out []Descriptor
	for _, d := range []Descriptor{
		{HeaderName, s.Name},
		{HeaderDescription, s.Description},
		{HeaderGenre, s.Genre},
	} {
		if d.Value != "" {
			out = append(out, d)
		}
	}
	return out
}

func headerValue(h http.Header, key string) string {
	return html.UnescapeString(strings.TrimSpace(h.Get(key)))
}
