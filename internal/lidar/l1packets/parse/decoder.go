package parse

import (
	"bufio"
	"errors"
	"io"
)

// DecoderStats counts what a Decoder has seen on its stream.
type DecoderStats struct {
	Packets      uint64 // frames decoded successfully
	CorruptCount uint64 // frames with a valid header but a bad CRC
	SkippedBytes uint64 // bytes discarded while searching for a header
}

// Decoder pulls frames out of a byte stream, resynchronising on the header
// after noise or corruption.
type Decoder struct {
	r     *bufio.Reader
	stats DecoderStats
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 16*PacketSize)}
}

// Stats returns the running counters.
func (d *Decoder) Stats() DecoderStats { return d.stats }

// Next returns the next valid frame. It returns io.EOF once the stream ends,
// including when the stream ends partway through a frame.
func (d *Decoder) Next() (*Packet, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != HeaderByte {
			d.stats.SkippedBytes++
			continue
		}

		rest, err := d.r.Peek(PacketSize - 1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.stats.SkippedBytes += uint64(1 + len(rest))
				return nil, io.EOF
			}
			return nil, err
		}
		if rest[0] != VerLenByte {
			d.stats.SkippedBytes++
			continue
		}

		frame := make([]byte, PacketSize)
		frame[0] = HeaderByte
		copy(frame[1:], rest)
		pkt, err := ParsePacket(frame)
		if err != nil {
			// Leave the remaining bytes in place: the real header may be
			// inside this false frame.
			d.stats.CorruptCount++
			opsf("dropping corrupt frame: %v", err)
			continue
		}
		if _, err := d.r.Discard(PacketSize - 1); err != nil {
			return nil, err
		}

		d.stats.Packets++
		tracef("frame speed=%d start=%.2f end=%.2f ts=%d", pkt.Speed, pkt.StartAngle, pkt.EndAngle, pkt.Timestamp)
		if d.stats.Packets%1000 == 0 {
			diagf("decoded=%d corrupt=%d skipped_bytes=%d", d.stats.Packets, d.stats.CorruptCount, d.stats.SkippedBytes)
		}
		return pkt, nil
	}
}
