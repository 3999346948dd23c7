// internal/transport/serial.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// Port abstracts the subset of go.bug.st/serial.Port used by this
// package so tests can substitute a scripted device.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(d time.Duration) error
}

// SerialTransport implements Transport over a serial (UART) link
type SerialTransport struct {
	config *Config
	port   Port
	logger *zap.Logger
	mutex  sync.Mutex
	isOpen bool
	stats  *Stats

	// openPort is replaced in tests
	openPort func(name string, mode *serial.Mode) (Port, error)
}

// NewSerialTransport creates a new serial transport
func NewSerialTransport(config *Config, logger *zap.Logger) *SerialTransport {
	return &SerialTransport{
		config: config,
		logger: logger.With(
			zap.String("transport", "serial"),
			zap.String("port", config.Port),
		),
		stats: &Stats{
			IsConnected: false,
		},
		openPort: func(name string, mode *serial.Mode) (Port, error) {
			return serial.Open(name, mode)
		},
	}
}

// Open opens the serial connection. The sensor speaks 8N1 at one of
// the supported baud rates; anything else fails before the OS port is
// touched, so no resources are left open on failure.
func (st *SerialTransport) Open(ctx context.Context) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if st.isOpen {
		return nil
	}

	if !IsSupportedBaud(st.config.BaudRate) {
		return fmt.Errorf("%w: %d (supported: %v)",
			ErrUnsupportedBaud, st.config.BaudRate, SupportedBaudRates)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	st.logger.Info("Opening serial port",
		zap.Int("baud_rate", st.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: st.config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := st.openPort(st.config.Port, mode)
	if err != nil {
		st.logger.Error("Failed to open serial port", zap.Error(err))
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(st.config.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	st.port = port
	st.isOpen = true
	st.stats.IsConnected = true
	st.stats.LastActivity = time.Now()

	st.logger.Info("Serial port opened successfully")
	return nil
}

// Close closes the serial connection. Close is idempotent; callers may
// defer it unconditionally.
func (st *SerialTransport) Close() error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil
	}

	if err := st.port.Close(); err != nil {
		st.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	st.port = nil
	st.isOpen = false
	st.stats.IsConnected = false

	st.logger.Debug("Serial port closed")
	return nil
}

// IsOpen returns whether the connection is open
func (st *SerialTransport) IsOpen() bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.isOpen && st.port != nil
}

// Send writes one command frame to the serial port. A short write is
// an error; no acknowledgement is implied.
func (st *SerialTransport) Send(ctx context.Context, frame []byte) error {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return ErrPortClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := st.port.Write(frame)
	if err != nil {
		st.stats.ErrorCount++
		st.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(frame) {
		st.stats.ErrorCount++
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(frame))
	}

	st.stats.BytesWritten += int64(len(frame))
	st.stats.LastActivity = time.Now()

	st.logger.Debug("Serial write completed", zap.Int("bytes", len(frame)))
	return nil
}

// Receive reads exactly length bytes from the serial port. The read
// deadline is the transport's configured timeout; a zero-byte read
// from the port means the deadline expired, and any shortfall is
// surfaced as ErrReadTimeout rather than a partial result.
func (st *SerialTransport) Receive(ctx context.Context, length int) ([]byte, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if !st.isOpen || st.port == nil {
		return nil, ErrPortClosed
	}

	buffer := make([]byte, length)
	total := 0

	for total < length {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := st.port.Read(buffer[total:])
		if err != nil {
			st.stats.ErrorCount++
			return nil, fmt.Errorf("failed to read from serial port: %w", err)
		}

		// go.bug.st/serial reports an expired read timeout as a
		// zero-length read with a nil error.
		if n == 0 {
			st.stats.ErrorCount++
			return nil, fmt.Errorf("%w: received %d of %d bytes", ErrReadTimeout, total, length)
		}

		total += n
	}

	st.stats.BytesRead += int64(total)
	st.stats.LastActivity = time.Now()

	return buffer, nil
}

// GetStats returns a snapshot of transport statistics
func (st *SerialTransport) GetStats() Stats {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return *st.stats
}
