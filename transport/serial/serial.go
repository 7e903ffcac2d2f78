// Package serial provides the UART transport to the RF module.
//
// The module speaks 8N1 at a fixed baud rate. This transport only moves
// bytes: inbound chunks are handed to the data handler as read, and framing
// is left to the engine's assembler so that frames may straddle reads.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kabili207/smartantenna-go/transport"
	"go.bug.st/serial"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultBaudRate is the default baud rate of the module UART.
	DefaultBaudRate = 115200

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024
)

var ErrNotConnected = errors.New("not connected")

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// port is the subset of serial.Port the transport uses.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Transport implements transport.Transport over a serial connection.
type Transport struct {
	cfg          Config
	port         port
	log          *slog.Logger
	mu           sync.RWMutex
	writeMu      sync.Mutex
	connected    bool
	cancel       context.CancelFunc
	done         chan struct{}
	dataHandler  transport.DataHandler
	stateHandler transport.StateHandler

	// openFn allows replacing the serial port in tests.
	openFn func(name string, mode *serial.Mode) (port, error)
}

// New creates a new serial transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("serial"),
		openFn: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}
}

// Start opens the serial port, discards stale input and begins reading.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Port == "" {
		return errors.New("serial port is required")
	}

	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := t.openFn(t.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		t.log.Warn("failed to flush serial input", "error", err)
	}

	t.mu.Lock()
	t.port = p
	t.connected = true
	t.done = make(chan struct{})
	handler := t.stateHandler
	readCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(readCtx, p)

	t.log.Info("connected to serial port", "port", t.cfg.Port, "baud", t.cfg.BaudRate)

	if handler != nil {
		handler(t, transport.EventConnected)
	}

	return nil
}

// Stop closes the serial port and stops the read loop.
func (t *Transport) Stop() error {
	t.mu.Lock()
	handler := t.stateHandler
	cancel := t.cancel
	t.cancel = nil
	wasConnected := t.connected
	t.connected = false
	p := t.port
	t.port = nil
	done := t.done
	t.done = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if p != nil {
		err = p.Close()
	}

	// Wait for read loop to finish
	if done != nil {
		<-done
	}

	if handler != nil && wasConnected {
		handler(t, transport.EventDisconnected)
	}

	return err
}

// IsConnected returns true if the serial port is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetDataHandler sets the callback for inbound bytes.
func (t *Transport) SetDataHandler(fn transport.DataHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dataHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// Write sends data to the module.
func (t *Transport) Write(data []byte) error {
	t.mu.RLock()
	p := t.port
	connected := t.connected
	t.mu.RUnlock()

	if !connected || p == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := p.Write(data)
	if err != nil {
		return fmt.Errorf("writing to serial port: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("writing to serial port: %w", io.ErrShortWrite)
	}
	return nil
}

// readLoop continuously reads from the serial port and hands chunks to the
// data handler.
func (t *Transport) readLoop(ctx context.Context, p port) {
	t.mu.RLock()
	done := t.done
	t.mu.RUnlock()
	defer close(done)

	buf := make([]byte, readBufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := p.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				t.log.Error("serial read error", "error", err)
			}
			t.handleDisconnect(err)
			return
		}

		if n == 0 {
			continue
		}

		t.mu.RLock()
		handler := t.dataHandler
		t.mu.RUnlock()

		if handler != nil {
			handler(buf[:n])
		}
	}
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	if err != nil {
		t.log.Error("serial disconnected", "error", err)
	}

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}
