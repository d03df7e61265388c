package frame

import (
	"bytes"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Delimiter separates byte values in the text form of a payload.
const Delimiter = ','

// ErrText is returned for a text payload that is not a list of byte values.
var ErrText = errors.New("frame: malformed text payload")

// Sensor is the source data for one encoded record.
type Sensor struct {
	DeviceID    int
	Description string // Unescaped, at most 12 bytes are sent
	Resolution  int
	Celsius     float64
	AlarmHigh   int
	AlarmLow    int
}

// Encode builds the binary payload the box would send for sensors.
func Encode(sensors []Sensor) []byte {
	buf := make([]byte, len(sensors)*Width)
	for i, s := range sensors {
		rec := buf[i*Width : (i+1)*Width]

		raw := int(math.Round(s.Celsius * 16))
		rec[0] = byte(len(sensors))
		rec[1] = byte(raw & 0xFF)
		rec[2] = byte((raw >> 8) & 0xFF)
		rec[3] = byte(int8(s.AlarmHigh))
		rec[4] = byte(int8(s.AlarmLow))

		res := s.Resolution
		if res < 9 || res > 12 {
			res = 12
		}
		rec[5] = byte(res-9)<<5 | 0x1F

		desc := rec[6:18]
		n := copy(desc, s.Description)
		if n < len(desc) {
			desc[n] = sentinel
		}
		rec[18] = byte(s.DeviceID)
	}
	return buf
}

// ParseText converts a delimited text payload into raw bytes. A trailing
// delimiter and surrounding whitespace are tolerated.
func ParseText(payload []byte) ([]byte, error) {
	payload = bytes.Trim(payload, " \t\r\n\x00")
	payload = bytes.TrimSuffix(payload, []byte{Delimiter})
	if len(payload) == 0 {
		return nil, errors.Wrap(ErrText, "empty payload")
	}

	fields := bytes.Split(payload, []byte{Delimiter})
	out := make([]byte, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(string(bytes.TrimSpace(f)))
		if err != nil {
			return nil, errors.Wrapf(ErrText, "field %d: %v", i, err)
		}
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(ErrText, "field %d: value %d out of byte range", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// FormatText renders raw bytes as a delimited text payload.
func FormatText(buf []byte) []byte {
	out := make([]byte, 0, len(buf)*4)
	for i, b := range buf {
		if i > 0 {
			out = append(out, Delimiter)
		}
		out = strconv.AppendInt(out, int64(b), 10)
	}
	return out
}
