package station

import (
	"net/http"
	"reflect"
	"testing"
)

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   map[string]string
		expected Station
	}{
		{
			name: "All descriptors",
			header: map[string]string{
				"icy-name":        "Groove Salad",
				"icy-description": "Ambient beats",
				"icy-genre":       "Ambient",
				"icy-url":         "http://somafm.com",
				"icy-br":          "128",
			},
			expected: Station{
				Name:        "Groove Salad",
				Description: "Ambient beats",
				Genre:       "Ambient",
				URL:         "http://somafm.com",
				Bitrate:     128,
			},
		},
		{
			name:     "HTML entities are unescaped",
			header:   map[string]string{"icy-name": " Drum &amp; Bass "},
			expected: Station{Name: "Drum & Bass"},
		},
		{
			name:     "Duplicated bitrate value",
			header:   map[string]string{"icy-br": "128,128"},
			expected: Station{Bitrate: 128},
		},
		{
			name:     "Invalid bitrate is ignored",
			header:   map[string]string{"icy-br": "fast"},
			expected: Station{},
		},
		{
			name:     "No headers",
			header:   map[string]string{},
			expected: Station{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.header {
				h.Set(k, v)
			}

			result := FromHeader(h)
			if result != tt.expected {
				t.Errorf("FromHeader() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestIsEmpty(t *testing.T) {
	if !(Station{}).IsEmpty() {
		t.Error("Zero station should be empty")
	}
	if (Station{Bitrate: 64}).IsEmpty() {
		t.Error("Station with bitrate should not be empty")
	}
}

func TestDescriptors(t *testing.T) {
	s := Station{Name: "Name", Genre: "Jazz", URL: "http://ignored", Bitrate: 320}

	expected := []Descriptor{
		{Key: HeaderName, Value: "Name"},
		{Key: HeaderGenre, Value: "Jazz"},
	}

	if got := s.Descriptors(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Descriptors() = %+v, want %+v", got, expected)
	}

	if got := (Station{}).Descriptors(); got != nil {
		t.Errorf("Descriptors() of empty station = %+v, want nil", got)
	}
}
