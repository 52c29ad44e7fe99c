package parse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

/*
LD-series serial frame (47 bytes, little-endian):

	offset  size  field
	0       1     header 0x54
	1       1     ver/len 0x2C (frame type 1, 12 points)
	2       2     rotational speed, degrees per second
	4       2     start angle, 0.01 degree units
	6       36    12 x (distance u16 mm, intensity u8)
	42      2     end angle, 0.01 degree units
	44      2     timestamp, milliseconds, wraps at 30000
	46      1     CRC-8 (poly 0x4D) over bytes 0..45

Angles of the points between start and end are linearly interpolated.
*/
const (
	PacketSize      = 47
	PointsPerPacket = 12
	HeaderByte      = 0x54
	VerLenByte      = 0x2C

	offsetSpeed      = 2
	offsetStartAngle = 4
	offsetPoints     = 6
	bytesPerPoint    = 3
	offsetEndAngle   = 42
	offsetTimestamp  = 44
	offsetCRC        = 46

	AngleResolution = 0.01  // degrees per LSB
	TimestampWrapMs = 30000 // sensor clock rolls over here
)

var (
	ErrShortPacket = errors.New("packet shorter than 47 bytes")
	ErrBadHeader   = errors.New("packet header mismatch")
	ErrBadCRC      = errors.New("packet CRC mismatch")
)

// Measurement is one raw distance/intensity pair from a packet.
type Measurement struct {
	Distance  uint16
	Intensity uint8
}

// Packet is a decoded 47-byte sensor frame.
type Packet struct {
	Speed        uint16 // degrees per second
	StartAngle   float64
	EndAngle     float64
	Timestamp    uint16 // milliseconds, wrapping
	Measurements [PointsPerPacket]Measurement
}

// ParsePacket decodes and CRC-checks one frame. data must start at the
// header byte; bytes after PacketSize are ignored.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < PacketSize {
		return nil, fmt.Errorf("%w: got %d", ErrShortPacket, len(data))
	}
	if data[0] != HeaderByte || data[1] != VerLenByte {
		return nil, fmt.Errorf("%w: got 0x%02X 0x%02X", ErrBadHeader, data[0], data[1])
	}
	if got, want := data[offsetCRC], CRC8(data[:offsetCRC]); got != want {
		return nil, fmt.Errorf("%w: got 0x%02X, computed 0x%02X", ErrBadCRC, got, want)
	}

	p := &Packet{
		Speed:      binary.LittleEndian.Uint16(data[offsetSpeed:]),
		StartAngle: float64(binary.LittleEndian.Uint16(data[offsetStartAngle:])) * AngleResolution,
		EndAngle:   float64(binary.LittleEndian.Uint16(data[offsetEndAngle:])) * AngleResolution,
		Timestamp:  binary.LittleEndian.Uint16(data[offsetTimestamp:]),
	}
	for i := range p.Measurements {
		off := offsetPoints + i*bytesPerPoint
		p.Measurements[i] = Measurement{
			Distance:  binary.LittleEndian.Uint16(data[off:]),
			Intensity: data[off+2],
		}
	}
	return p, nil
}

// Encode renders the packet back to its 47-byte wire form with a fresh CRC.
// Replay tools and tests use it to synthesise sensor traffic.
func (p *Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	buf[0] = HeaderByte
	buf[1] = VerLenByte
	binary.LittleEndian.PutUint16(buf[offsetSpeed:], p.Speed)
	binary.LittleEndian.PutUint16(buf[offsetStartAngle:], angleUnits(p.StartAngle))
	for i, m := range p.Measurements {
		off := offsetPoints + i*bytesPerPoint
		binary.LittleEndian.PutUint16(buf[off:], m.Distance)
		buf[off+2] = m.Intensity
	}
	binary.LittleEndian.PutUint16(buf[offsetEndAngle:], angleUnits(p.EndAngle))
	binary.LittleEndian.PutUint16(buf[offsetTimestamp:], p.Timestamp)
	buf[offsetCRC] = CRC8(buf[:offsetCRC])
	return buf
}

func angleUnits(deg float64) uint16 {
	return uint16(math.Round(math.Mod(deg, 360) / AngleResolution))
}

// Span returns the angle covered from start to end, accounting for the
// zero crossing.
func (p *Packet) Span() float64 {
	span := p.EndAngle - p.StartAngle
	if span < 0 {
		span += 360
	}
	return span
}

// Points expands the packet into filter points with interpolated angles.
// clock turns the wrapping packet timestamp into a monotonic one; when nil
// the raw timestamp is used.
func (p *Packet) Points(clock *TimestampUnwrapper) []nearfilter.Point {
	ts := uint64(p.Timestamp)
	if clock != nil {
		ts = clock.Unwrap(p.Timestamp)
	}

	step := p.Span() / float64(PointsPerPacket-1)
	points := make([]nearfilter.Point, PointsPerPacket)
	for i, m := range p.Measurements {
		angle := p.StartAngle + step*float64(i)
		if angle >= 360 {
			angle -= 360
		}
		points[i] = nearfilter.Point{
			Angle:     angle,
			Distance:  m.Distance,
			Intensity: m.Intensity,
			Timestamp: ts,
		}
	}
	return points
}
