// Package serialport reads LD-series frames from a live serial port.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// Porter is the part of a serial port the source uses. It lets tests run
// without hardware.
type Porter interface {
	io.ReadCloser
}

// Opener opens a port at path with the given mode.
type Opener func(path string, mode *serial.Mode) (Porter, error)

// OpenPort opens a real serial port.
func OpenPort(path string, mode *serial.Mode) (Porter, error) {
	return serial.Open(path, mode)
}

// Source streams decoded frames from a serial device.
type Source struct {
	path string
	opts PortOptions
	open Opener

	mu    sync.Mutex
	stats parse.DecoderStats
}

// NewSource returns a Source for the device at path. A nil opener uses
// OpenPort.
func NewSource(path string, opts PortOptions, opener Opener) *Source {
	if opener == nil {
		opener = OpenPort
	}
	return &Source{path: path, opts: opts, open: opener}
}

// Name identifies the source in logs and stored runs.
func (s *Source) Name() string { return "serial:" + s.path }

// Stats returns decoder counters from the last Run.
func (s *Source) Stats() parse.DecoderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run opens the port and calls handle for every frame until ctx is done,
// the port reaches EOF, or handle returns an error.
func (s *Source) Run(ctx context.Context, handle func(*parse.Packet) error) error {
	mode, err := s.opts.SerialMode()
	if err != nil {
		return fmt.Errorf("invalid serial options: %w", err)
	}
	port, err := s.open(s.path, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.path, err)
	}

	var closeOnce sync.Once
	closePort := func() { closeOnce.Do(func() { _ = port.Close() }) }
	defer closePort()

	// A blocked Read only returns once the port is closed.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closePort()
		case <-done:
		}
	}()

	monitoring.Logf("reading LiDAR frames from %s at %d baud", s.path, mode.BaudRate)
	dec := parse.NewDecoder(port)
	defer func() {
		s.mu.Lock()
		s.stats = dec.Stats()
		s.mu.Unlock()
	}()

	for {
		pkt, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read serial port %s: %w", s.path, err)
		}
		if err := handle(pkt); err != nil {
			return err
		}
	}
}
