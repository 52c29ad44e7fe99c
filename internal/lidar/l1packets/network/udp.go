package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// UDPSocket is the part of *net.UDPConn the listener uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// UDPSocketFactory opens sockets; tests substitute an in-memory one.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

type realUDPSocketFactory struct{}

// NewRealUDPSocketFactory returns a factory backed by net.ListenUDP.
func NewRealUDPSocketFactory() UDPSocketFactory { return realUDPSocketFactory{} }

func (realUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	return net.ListenUDP(network, laddr)
}

// UDPSourceConfig configures a UDPSource.
type UDPSourceConfig struct {
	Address       string           // listen address, e.g. ":2368"
	RcvBuf        int              // socket receive buffer (default 1 MiB)
	SocketFactory UDPSocketFactory // optional, for tests
}

// UDPSource receives sensor frames from a serial-to-UDP bridge. Each
// datagram may carry any number of whole or partial frames; frames split
// across datagrams are lost and counted as skipped bytes.
type UDPSource struct {
	address       string
	rcvBuf        int
	socketFactory UDPSocketFactory

	mu    sync.Mutex
	conn  UDPSocket
	stats ReplayStats
}

// NewUDPSource returns a source for config.
func NewUDPSource(config UDPSourceConfig) *UDPSource {
	if config.RcvBuf <= 0 {
		config.RcvBuf = 1 << 20
	}
	if config.SocketFactory == nil {
		config.SocketFactory = NewRealUDPSocketFactory()
	}
	return &UDPSource{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		socketFactory: config.SocketFactory,
	}
}

// Name identifies the source in logs and stored runs.
func (s *UDPSource) Name() string { return "udp:" + s.address }

// Stats returns the running counters. CapturePackets counts datagrams.
func (s *UDPSource) Stats() ReplayStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LocalAddr returns the bound address once Run has opened the socket.
func (s *UDPSource) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run listens until ctx is cancelled or handle returns an error.
func (s *UDPSource) Run(ctx context.Context, handle func(*parse.Packet) error) error {
	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := s.socketFactory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	if err := conn.SetReadBuffer(s.rcvBuf); err != nil {
		monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", s.rcvBuf, err)
	}
	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", s.address, s.rcvBuf)

	buffer := make([]byte, 2048)
	var deadlineErrLogged bool
	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return err
		}

		// A short deadline lets the loop notice cancellation.
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil && !deadlineErrLogged {
			monitoring.Logf("failed to set read deadline: %v", err)
			deadlineErrLogged = true
		}

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		if err := s.handleDatagram(buffer[:n], handle); err != nil {
			return fmt.Errorf("handling datagram from %v: %w", from, err)
		}
	}
}

func (s *UDPSource) handleDatagram(data []byte, handle func(*parse.Packet) error) error {
	dec := parse.NewDecoder(bytes.NewReader(data))
	frames := 0
	var herr error
	for {
		pkt, err := dec.Next()
		if err != nil {
			break
		}
		frames++
		if herr = handle(pkt); herr != nil {
			break
		}
	}

	s.mu.Lock()
	s.stats.CapturePackets++
	s.stats.UDPPayloads++
	s.stats.Frames += frames
	s.stats.Corrupt += int(dec.Stats().CorruptCount)
	s.mu.Unlock()
	return herr
}
