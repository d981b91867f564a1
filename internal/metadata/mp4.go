package metadata

import (
	"encoding/binary"
	"time"
)

// MP4 box timestamps count seconds since 1904-01-01 (QuickTime epoch).
var mp4Epoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// parseMP4 looks for moov/mvhd creation and modification times. Encoder
// identity lives in udta/©too when present.
func parseMP4(data []byte) *Findings {
	findings := &Findings{}
	walkBoxes(data, findings, 0)
	return findings
}

func walkBoxes(data []byte, findings *Findings, depth int) {
	if depth > 4 {
		return
	}

	pos := 0
	for pos+8 <= len(data) {
		size := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		boxType := string(data[pos+4 : pos+8])
		if size < 8 || pos+size > len(data) {
			return
		}
		body := data[pos+8 : pos+size]

		switch boxType {
		case "moov", "udta":
			walkBoxes(body, findings, depth+1)
		case "mvhd":
			parseMvhd(body, findings)
		case "\xa9too":
			// udta metadata boxes carry a 4-byte size/lang prefix in some
			// muxers; take the printable tail.
			if len(body) > 4 {
				findings.Software = string(body[4:])
			} else if len(body) > 0 {
				findings.Software = string(body)
			}
		}

		pos += size
	}
}

func parseMvhd(body []byte, findings *Findings) {
	if len(body) < 1 {
		return
	}
	version := body[0]

	switch version {
	case 0:
		if len(body) < 12 {
			return
		}
		created := mp4Time(uint64(binary.BigEndian.Uint32(body[4:8])))
		modified := mp4Time(uint64(binary.BigEndian.Uint32(body[8:12])))
		if created != nil {
			findings.CreatedAt = created
		}
		if modified != nil {
			findings.ModifiedAt = modified
		}
	case 1:
		if len(body) < 20 {
			return
		}
		created := mp4Time(binary.BigEndian.Uint64(body[4:12]))
		modified := mp4Time(binary.BigEndian.Uint64(body[12:20]))
		if created != nil {
			findings.CreatedAt = created
		}
		if modified != nil {
			findings.ModifiedAt = modified
		}
	}
}

// maxMP4Seconds caps mvhd timestamps near the year 2993. Larger values are
// corrupt or hostile headers, and would overflow time.Duration into
// pre-epoch times.
const maxMP4Seconds = 1 << 35

func mp4Time(seconds uint64) *time.Time {
	if seconds == 0 || seconds > maxMP4Seconds {
		return nil
	}
	t := mp4Epoch.Add(time.Duration(seconds) * time.Second)
	return &t
}
