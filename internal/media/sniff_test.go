package media

import (
	"errors"
	"testing"
)

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		kind Kind
		mime string
	}{
		{"JPEG", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, KindImage, "image/jpeg"},
		{"PNG", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, KindImage, "image/png"},
		{"GIF", []byte("GIF89a......"), KindImage, "image/gif"},
		{"WebP", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), KindImage, "image/webp"},
		{"MP4", []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00"), KindVideo, "video/mp4"},
		{"QuickTime", []byte("\x00\x00\x00\x14ftypqt  \x00\x00\x00\x00"), KindVideo, "video/quicktime"},
		{"WebM", []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x00}, KindVideo, "video/webm"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Sniff(tc.data)
			if err != nil {
				t.Fatalf("Failed to sniff: %v", err)
			}
			if info.Kind != tc.kind {
				t.Errorf("Expected kind %s, got %s", tc.kind, info.Kind)
			}
			if info.MIME != tc.mime {
				t.Errorf("Expected MIME %s, got %s", tc.mime, info.MIME)
			}
		})
	}

	t.Run("Unknown", func(t *testing.T) {
		_, err := Sniff([]byte("definitely not a media file"))
		if !errors.Is(err, ErrUnknownType) {
			t.Errorf("Expected ErrUnknownType, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Sniff(nil)
		if !errors.Is(err, ErrUnknownType) {
			t.Errorf("Expected ErrUnknownType, got %v", err)
		}
	})
}
