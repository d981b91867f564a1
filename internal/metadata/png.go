package metadata

import (
	"bytes"
	"encoding/binary"
	"time"
)

// parsePNG walks PNG chunks for tEXt, iTXt and tIME metadata.
func parsePNG(data []byte) *Findings {
	findings := &Findings{}

	pos := 8 // past the signature
	for pos+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		dataStart := pos + 8
		if chunkLen < 0 || dataStart+chunkLen > len(data) {
			break
		}
		chunk := data[dataStart : dataStart+chunkLen]

		switch chunkType {
		case "tEXt":
			key, value := splitNul(chunk)
			applyTextChunk(findings, key, value)
		case "iTXt":
			// keyword NUL compress-flag compress-method NUL lang NUL
			// translated-keyword NUL text; uncompressed text only.
			if idx := bytes.IndexByte(chunk, 0); idx >= 0 {
				key := string(chunk[:idx])
				rest := chunk[idx+1:]
				if len(rest) >= 2 && rest[0] == 0 {
					parts := bytes.SplitN(rest[2:], []byte{0}, 3)
					if len(parts) == 3 {
						applyTextChunk(findings, key, string(parts[2]))
					}
				}
			}
		case "tIME":
			if chunkLen == 7 {
				t := time.Date(
					int(binary.BigEndian.Uint16(chunk[:2])),
					time.Month(chunk[2]), int(chunk[3]),
					int(chunk[4]), int(chunk[5]), int(chunk[6]),
					0, time.UTC)
				findings.ModifiedAt = &t
			}
		case "IEND":
			return findings
		}

		pos = dataStart + chunkLen + 4 // skip CRC
	}

	return findings
}

func splitNul(chunk []byte) (string, string) {
	idx := bytes.IndexByte(chunk, 0)
	if idx < 0 {
		return string(chunk), ""
	}
	return string(chunk[:idx]), string(chunk[idx+1:])
}

func applyTextChunk(findings *Findings, key, value string) {
	switch key {
	case "Software":
		findings.Software = value
	case "Creation Time":
		if t, err := time.Parse(time.RFC1123, value); err == nil {
			utc := t.UTC()
			findings.CreatedAt = &utc
		} else if t, ok := exifTime(value); ok {
			findings.CreatedAt = &t
		}
	}
}
