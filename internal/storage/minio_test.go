package storage

import "testing"

func TestContentTypeForKey(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"videos/abc/original.mp4", "video/mp4"},
		{"videos/abc/hls/master.m3u8", "application/vnd.apple.mpegurl"},
		{"videos/abc/hls/360p/seg_000.ts", "video/mp2t"},
		{"videos/abc/thumbnail.jpg", "image/jpeg"},
		{"videos/abc/thumbnail.JPG", "image/jpeg"},
		{"videos/abc/original.mov", "video/quicktime"},
		{"videos/abc/unknown.bin", "application/octet-stream"},
		{"no-extension", "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			if got := contentTypeForKey(tc.key); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}
