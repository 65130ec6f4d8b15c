package format

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		expected    Hint
	}{
		{"MPEG content type", "audio/mpeg", "http://host/stream", MP3},
		{"Parameters are stripped", "audio/aacp; charset=binary", "http://host/stream", AAC},
		{"Case is ignored", "Audio/OGG", "http://host/stream", Ogg},
		{"Content type wins over extension", "audio/flac", "http://host/file.mp3", FLAC},
		{"Extension fallback", "", "http://host/music/track.WAV", WAV},
		{"Unknown type falls back to extension", "application/octet-stream", "http://host/a.m4a?x=1", MP4},
		{"Query does not hide extension", "", "http://host/a.flac?token=abc", FLAC},
		{"Local path", "", "/home/user/song.ogg", Ogg},
		{"Nothing known", "text/html", "http://host/index", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.contentType, tt.url); got != tt.expected {
				t.Errorf("Detect(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.expected)
			}
		})
	}
}

func TestIsHLS(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		expected    bool
	}{
		{"http://host/live/index.m3u8", "", true},
		{"http://host/live/INDEX.M3U8?token=1", "", true},
		{"http://host/live", "application/vnd.apple.mpegurl", true},
		{"http://host/live", "application/x-mpegURL", true},
		{"http://host/live", "audio/mpegurl", true},
		{"http://host/radio.mp3", "audio/mpeg", false},
		{"http://host/list.pls", "audio/x-scpls", false},
	}

	for _, tt := range tests {
		if got := IsHLS(tt.url, tt.contentType); got != tt.expected {
			t.Errorf("IsHLS(%q, %q) = %v, want %v", tt.url, tt.contentType, got, tt.expected)
		}
	}
}

func TestIsPlaylist(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		expected    bool
	}{
		{"http://host/radio.pls", "", true},
		{"http://host/radio.m3u", "", true},
		{"http://host/radio.m3u8", "", true},
		{"http://host/listen", "audio/x-scpls", true},
		{"http://host/listen", "audio/x-mpegurl", true},
		{"http://host/listen", "application/xspf+xml; profile=playlist", false},
		{"http://host/listen", "application/playlist", true},
		{"http://host/radio.mp3", "audio/mpeg", false},
		{"http://host/pls/stream", "", false},
	}

	for _, tt := range tests {
		if got := IsPlaylist(tt.url, tt.contentType); got != tt.expected {
			t.Errorf("IsPlaylist(%q, %q) = %v, want %v", tt.url, tt.contentType, got, tt.expected)
		}
	}
}
