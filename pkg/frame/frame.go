package frame

import (
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	// Width is the number of bytes (or text fields) carried per sensor.
	Width = 20
	// MaxSensors is the largest sensor population the box can report.
	MaxSensors = 12

	// sentinel terminates a description shorter than its field.
	sentinel = 10
	// NoDescription replaces a description whose first byte is the sentinel.
	NoDescription = "No Descrip."
)

// ErrLength is returned when a buffer does not hold exactly count frames.
var ErrLength = errors.New("frame: buffer length does not match sensor count")

// Frame is one sensor's record within a single acquisition.
type Frame struct {
	Reported    int    // Sensor count as reported by the box
	Raw         int    // Signed temperature, °C × 16
	AlarmHigh   int    // TH register (°C)
	AlarmLow    int    // TL register (°C)
	Config      byte   // Configuration register
	Resolution  int    // 9..12 bits
	Description string // Colon-escaped label
	DeviceID    int
	CRC         byte
}

// Celsius returns the decoded temperature in degrees Celsius.
func (f Frame) Celsius() float64 {
	return float64(f.Raw) / 16.0
}

// Fahrenheit returns the temperature in degrees Fahrenheit rounded to one decimal.
func (f Frame) Fahrenheit() float64 {
	return Fahrenheit(f.Celsius())
}

// Field describes one fixed-width field inside a sensor record.
type Field struct {
	Name   string
	Offset int
	Width  int
	decode func(raw []byte, f *Frame)
}

// Layout is the per-sensor record layout, in wire order.
var Layout = []Field{
	{Name: "count", Offset: 0, Width: 1, decode: func(raw []byte, f *Frame) {
		f.Reported = int(raw[0])
	}},
	{Name: "temperature", Offset: 1, Width: 2, decode: func(raw []byte, f *Frame) {
		f.Raw = RawTemperature(raw[0], raw[1])
	}},
	{Name: "alarm_high", Offset: 3, Width: 1, decode: func(raw []byte, f *Frame) {
		f.AlarmHigh = int(int8(raw[0]))
	}},
	{Name: "alarm_low", Offset: 4, Width: 1, decode: func(raw []byte, f *Frame) {
		f.AlarmLow = int(int8(raw[0]))
	}},
	{Name: "config", Offset: 5, Width: 1, decode: func(raw []byte, f *Frame) {
		f.Config = raw[0]
		f.Resolution = Resolution(raw[0])
	}},
	{Name: "description", Offset: 6, Width: 12, decode: func(raw []byte, f *Frame) {
		f.Description = EscapeColons(Description(raw))
	}},
	{Name: "device", Offset: 18, Width: 1, decode: func(raw []byte, f *Frame) {
		f.DeviceID = int(raw[0])
	}},
	{Name: "crc", Offset: 19, Width: 1, decode: func(raw []byte, f *Frame) {
		f.CRC = raw[0]
	}},
}

// deviceOffset is looked up once so id extraction does not decode whole frames.
var deviceOffset = fieldOffset("device")

func fieldOffset(name string) int {
	for _, fd := range Layout {
		if fd.Name == name {
			return fd.Offset
		}
	}
	panic("frame: unknown field " + name)
}

// Decode parses count consecutive sensor records from buf.
func Decode(buf []byte, count int) ([]Frame, error) {
	if err := checkLength(buf, count); err != nil {
		return nil, err
	}

	frames := make([]Frame, count)
	for i := range frames {
		rec := buf[i*Width : (i+1)*Width]
		for _, fd := range Layout {
			fd.decode(rec[fd.Offset:fd.Offset+fd.Width], &frames[i])
		}
	}
	return frames, nil
}

// DeviceIDs returns the device identifiers of each record in wire order.
func DeviceIDs(buf []byte, count int) ([]int, error) {
	if err := checkLength(buf, count); err != nil {
		return nil, err
	}
	ids := make([]int, count)
	for i := range ids {
		ids[i] = int(buf[i*Width+deviceOffset])
	}
	return ids, nil
}

// SortedIDs returns the device identifiers of buf in ascending order.
func SortedIDs(buf []byte, count int) ([]int, error) {
	ids, err := DeviceIDs(buf, count)
	if err != nil {
		return nil, err
	}
	sort.Ints(ids)
	return ids, nil
}

func checkLength(buf []byte, count int) error {
	if count <= 0 || len(buf) != count*Width {
		return errors.Wrapf(ErrLength, "%d bytes for %d sensors", len(buf), count)
	}
	return nil
}

// RawTemperature combines the two temperature bytes (low byte first) into
// a signed value in units of 1/16 °C.
func RawTemperature(low, high byte) int {
	raw := 256*int(high) + int(low)
	if high > 127 {
		raw -= 65536
	}
	return raw
}

// Resolution maps the configuration register to a resolution in bits.
func Resolution(config byte) int {
	return int(config>>5) + 9
}

// Description reads a label from its field. The label ends at the first
// sentinel byte or at the end of the field.
func Description(raw []byte) string {
	if len(raw) == 0 || raw[0] == sentinel {
		return NoDescription
	}

	var sb strings.Builder
	for _, b := range raw {
		if b == sentinel {
			break
		}
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

// EscapeColons prefixes every colon with a backslash.
func EscapeColons(s string) string {
	return strings.ReplaceAll(s, ":", `\:`)
}

// Fahrenheit converts °C to °F rounded to one decimal place.
func Fahrenheit(celsius float64) float64 {
	return math.Round((1.8*celsius+32.0)*10) / 10
}
