package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	StartMarker = "START"
	EndMarker   = "END"

	// StartSize is the marker plus two big-endian float64 (latitude, longitude).
	StartSize = len(StartMarker) + 8 + 8

	latOffset = len(StartMarker)
	lonOffset = latOffset + 8
)

// Kind classifies one payload.
type Kind uint8

const (
	KindBody Kind = iota
	KindStart
	KindEnd
	// KindMalformed is a START marker too short to carry a location.
	// There is no error channel back to the sender, so callers drop it.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindBody:
		return "BODY"
	case KindStart:
		return "START"
	case KindEnd:
		return "END"
	case KindMalformed:
		return "MALFORMED"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame is a classified payload. Latitude/Longitude are set for START,
// Body for BODY (aliasing the payload, not copied).
type Frame struct {
	Kind      Kind
	Latitude  float64
	Longitude float64
	Body      []byte
}

// EncodeStart builds the 21-byte START header.
func EncodeStart(lat, lon float64) []byte {
	buf := make([]byte, StartSize)
	copy(buf, StartMarker)
	binary.BigEndian.PutUint64(buf[latOffset:], math.Float64bits(lat))
	binary.BigEndian.PutUint64(buf[lonOffset:], math.Float64bits(lon))
	return buf
}

// EncodeEnd returns the 3-byte END marker.
func EncodeEnd() []byte {
	return []byte(EndMarker)
}

// EncodeBody returns audio bytes as they go on the wire: verbatim.
func EncodeBody(samples []byte) []byte {
	return samples
}

// Classify decodes a payload. The checks run in order: START prefix first,
// then an exact END, everything else is BODY. Trailing bytes after a 21-byte
// START header are ignored.
func Classify(payload []byte) Frame {
	if len(payload) >= len(StartMarker) && bytes.Equal(payload[:len(StartMarker)], []byte(StartMarker)) {
		if len(payload) < StartSize {
			return Frame{Kind: KindMalformed}
		}
		return Frame{
			Kind:      KindStart,
			Latitude:  math.Float64frombits(binary.BigEndian.Uint64(payload[latOffset:lonOffset])),
			Longitude: math.Float64frombits(binary.BigEndian.Uint64(payload[lonOffset:StartSize])),
		}
	}
	if len(payload) == len(EndMarker) && string(payload) == EndMarker {
		return Frame{Kind: KindEnd}
	}
	return Frame{Kind: KindBody, Body: payload}
}

// String returns a human-readable representation of the frame
func (f Frame) String() string {
	switch f.Kind {
	case KindStart:
		return fmt.Sprintf("Frame{START lat:%g lon:%g}", f.Latitude, f.Longitude)
	case KindBody:
		return fmt.Sprintf("Frame{BODY len:%d}", len(f.Body))
	default:
		return fmt.Sprintf("Frame{%s}", f.Kind)
	}
}
