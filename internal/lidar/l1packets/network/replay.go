package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// pcapngMagic is the block type of the section header that opens a pcapng file.
const pcapngMagic = 0x0A0D0D0A

// ReplayStats summarises one replay.
type ReplayStats struct {
	CapturePackets int // packets read from the file
	UDPPayloads    int // UDP payloads on the sensor port
	Frames         int // sensor frames decoded from those payloads
	Corrupt        int // frames rejected by the decoder
}

// ReplaySource replays sensor frames that a serial-to-UDP bridge forwarded,
// read from a pcap or pcapng capture. Decoding uses the pure-Go pcapgo
// readers, so no libpcap is needed.
type ReplaySource struct {
	path    string
	udpPort int

	mu    sync.Mutex
	stats ReplayStats
}

// NewReplaySource returns a source for the capture at path. udpPort selects
// the destination port carrying sensor bytes; 0 accepts every UDP packet.
func NewReplaySource(path string, udpPort int) *ReplaySource {
	return &ReplaySource{path: path, udpPort: udpPort}
}

// Name identifies the source in logs and stored runs.
func (s *ReplaySource) Name() string { return "pcap:" + s.path }

// Stats returns the counters from the last Run.
func (s *ReplaySource) Stats() ReplayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// Run reads the capture to the end, calling handle for each decoded frame.
func (s *ReplaySource) Run(ctx context.Context, handle func(*parse.Packet) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", s.path, err)
	}
	defer f.Close()

	reader, err := openCapture(f)
	if err != nil {
		return fmt.Errorf("failed to read PCAP file %s: %w", s.path, err)
	}

	var stats ReplayStats
	defer func() {
		s.mu.Lock()
		s.stats = stats
		s.mu.Unlock()
	}()

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", stats.CapturePackets)
			return err
		}

		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("PCAP replay complete: %d packets, %d frames in %v",
				stats.CapturePackets, stats.Frames, time.Since(start))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read PCAP packet %d: %w", stats.CapturePackets+1, err)
		}
		stats.CapturePackets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if s.udpPort != 0 && int(udp.DstPort) != s.udpPort {
			continue
		}
		stats.UDPPayloads++

		dec := parse.NewDecoder(bytes.NewReader(udp.Payload))
		for {
			pkt, err := dec.Next()
			if err != nil {
				break
			}
			stats.Frames++
			if err := handle(pkt); err != nil {
				return err
			}
		}
		stats.Corrupt += int(dec.Stats().CorruptCount)
	}
}
