package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
)

// EXIF/TIFF tags we care about.
const (
	tagModel            = 0x0110
	tagSoftware         = 0x0131
	tagDateTime         = 0x0132
	tagExifIFDPointer   = 0x8769
	tagGPSIFDPointer    = 0x8825
	tagDateTimeOriginal = 0x9003
)

const exifTimeLayout = "2006:01:02 15:04:05"

// parseJPEG walks JPEG markers looking for the APP1/Exif segment. A JPEG
// without one simply has no metadata.
func parseJPEG(data []byte) *Findings {
	findings := &Findings{}

	// Skip SOI, then walk marker segments until SOS or entropy data.
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xff {
			break
		}
		marker := data[pos+1]
		if marker == 0xd8 || marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			pos += 2
			continue
		}
		if marker == 0xda { // SOS, metadata segments are behind us
			break
		}

		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(data) {
			break
		}

		if marker == 0xe1 {
			payload := data[pos+4 : pos+2+segLen]
			if bytes.HasPrefix(payload, []byte("Exif\x00\x00")) {
				parseTIFF(payload[6:], findings)
			}
		}

		pos += 2 + segLen
	}

	return findings
}

// parseTIFF reads IFD0 plus the Exif sub-IFD from an Exif TIFF blob.
func parseTIFF(tiff []byte, findings *Findings) {
	if len(tiff) < 8 {
		return
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return
	}

	ifd0Offset := order.Uint32(tiff[4:8])
	exifOffset, gpsOffset := parseIFD(tiff, ifd0Offset, order, findings, false)

	if gpsOffset != 0 {
		findings.HasGPS = true
	}
	if exifOffset != 0 {
		parseIFD(tiff, exifOffset, order, findings, true)
	}
}

// parseIFD walks one IFD and fills the findings from known tags. Returns
// the Exif and GPS sub-IFD offsets when present in this IFD.
func parseIFD(tiff []byte, offset uint32, order binary.ByteOrder, findings *Findings, isExifIFD bool) (exifOffset, gpsOffset uint32) {
	if int(offset)+2 > len(tiff) {
		return 0, 0
	}
	count := int(order.Uint16(tiff[offset : offset+2]))
	entryBase := int(offset) + 2

	for i := 0; i < count; i++ {
		entry := entryBase + i*12
		if entry+12 > len(tiff) {
			break
		}

		tag := order.Uint16(tiff[entry : entry+2])
		valueCount := order.Uint32(tiff[entry+4 : entry+8])
		valueField := tiff[entry+8 : entry+12]

		switch tag {
		case tagModel:
			findings.DeviceModel = asciiValue(tiff, valueField, valueCount, order)
		case tagSoftware:
			findings.Software = asciiValue(tiff, valueField, valueCount, order)
		case tagDateTime:
			if t, ok := exifTime(asciiValue(tiff, valueField, valueCount, order)); ok {
				findings.ModifiedAt = &t
			}
		case tagDateTimeOriginal:
			if isExifIFD {
				if t, ok := exifTime(asciiValue(tiff, valueField, valueCount, order)); ok {
					findings.CreatedAt = &t
				}
			}
		case tagExifIFDPointer:
			exifOffset = order.Uint32(valueField)
		case tagGPSIFDPointer:
			gpsOffset = order.Uint32(valueField)
		}
	}

	return exifOffset, gpsOffset
}

// asciiValue reads an ASCII tag value, which is stored inline when it fits
// in four bytes and behind an offset otherwise.
func asciiValue(tiff []byte, valueField []byte, count uint32, order binary.ByteOrder) string {
	var raw []byte
	if count <= 4 {
		raw = valueField[:count]
	} else {
		off := order.Uint32(valueField)
		if int(off)+int(count) > len(tiff) {
			return ""
		}
		raw = tiff[off : off+count]
	}
	return strings.TrimRight(string(raw), "\x00 ")
}

func exifTime(value string) (time.Time, bool) {
	t, err := time.Parse(exifTimeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
