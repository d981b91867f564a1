package media

import (
	"bytes"
	"errors"
)

// Kind classifies an artifact at the container level.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var ErrUnknownType = errors.New("unknown media type")

type Info struct {
	Kind Kind
	MIME string
}

// Sniff identifies the container from the first bytes of the artifact.
// The declared MIME from the upload is never trusted.
func Sniff(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrUnknownType
	}

	switch {
	case isJPEG(data):
		return Info{Kind: KindImage, MIME: "image/jpeg"}, nil
	case isPNG(data):
		return Info{Kind: KindImage, MIME: "image/png"}, nil
	case isGIF(data):
		return Info{Kind: KindImage, MIME: "image/gif"}, nil
	case isWEBP(data):
		return Info{Kind: KindImage, MIME: "image/webp"}, nil
	case isMP4(data):
		return Info{Kind: KindVideo, MIME: "video/mp4"}, nil
	case isQuickTime(data):
		return Info{Kind: KindVideo, MIME: "video/quicktime"}, nil
	case isWebM(data):
		return Info{Kind: KindVideo, MIME: "video/webm"}, nil
	}

	return Info{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isMP4(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	brand := string(head[8:12])
	switch brand {
	case "isom", "iso2", "mp41", "mp42", "avc1", "dash", "M4V ":
		return true
	}
	return false
}

func isQuickTime(head []byte) bool {
	return len(head) >= 12 && string(head[4:8]) == "ftyp" && string(head[8:12]) == "qt  "
}

func isWebM(head []byte) bool {
	ebmlMagic := []byte{0x1a, 0x45, 0xdf, 0xa3}
	return len(head) >= 4 && bytes.Equal(head[:4], ebmlMagic)
}
