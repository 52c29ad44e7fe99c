package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
)

type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func frames(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		p := &parse.Packet{Speed: 3600, StartAngle: float64(i), EndAngle: float64(i) + 0.88, Timestamp: uint16(i)}
		buf.Write(p.Encode())
	}
	return buf.Bytes()
}

func TestSourceRunDeliversFrames(t *testing.T) {
	port := &fakePort{Reader: bytes.NewReader(frames(5))}
	var gotMode *serial.Mode
	src := NewSource("/dev/ttyUSB0", PortOptions{}, func(path string, mode *serial.Mode) (Porter, error) {
		assert.Equal(t, "/dev/ttyUSB0", path)
		gotMode = mode
		return port, nil
	})

	var timestamps []uint16
	err := src.Run(context.Background(), func(p *parse.Packet) error {
		timestamps = append(timestamps, p.Timestamp)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 1, 2, 3, 4}, timestamps)
	assert.True(t, port.closed)
	assert.Equal(t, DefaultBaudRate, gotMode.BaudRate)
	assert.Equal(t, uint64(5), src.Stats().Packets)
	assert.Equal(t, "serial:/dev/ttyUSB0", src.Name())
}

func TestSourceRunStopsOnHandlerError(t *testing.T) {
	port := &fakePort{Reader: bytes.NewReader(frames(3))}
	src := NewSource("/dev/ttyUSB0", PortOptions{}, func(string, *serial.Mode) (Porter, error) { return port, nil })

	stop := errors.New("stop")
	calls := 0
	err := src.Run(context.Background(), func(*parse.Packet) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSourceRunOpenError(t *testing.T) {
	src := NewSource("/dev/missing", PortOptions{}, func(string, *serial.Mode) (Porter, error) {
		return nil, errors.New("no such device")
	})
	err := src.Run(context.Background(), func(*parse.Packet) error { return nil })
	assert.ErrorContains(t, err, "/dev/missing")
}

func TestSourceRunInvalidOptions(t *testing.T) {
	src := NewSource("/dev/ttyUSB0", PortOptions{DataBits: 9}, nil)
	err := src.Run(context.Background(), func(*parse.Packet) error { return nil })
	assert.ErrorContains(t, err, "invalid serial options")
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{Parity: " even "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "E"}, opts)

	_, err = PortOptions{StopBits: 3}.Normalize()
	assert.Error(t, err)
	_, err = PortOptions{Parity: "mark"}.Normalize()
	assert.Error(t, err)

	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.OddParity}, mode)
}
