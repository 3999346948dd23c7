// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"time"
)

// Transport provides byte-level access to one sensor for the lifetime
// of a single configuration run. Implementations perform no retries;
// retry policy belongs to the caller, which knows which protocol step
// is in flight.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context, length int) ([]byte, error)
}

// Config represents serial connection configuration
type Config struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	Timeout  time.Duration `json:"timeout"`
}

// Stats provides transport-level statistics
type Stats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}

var (
	// ErrUnsupportedBaud is returned by Open for a baud rate outside
	// the rates the sensor's UART accepts.
	ErrUnsupportedBaud = errors.New("unsupported baud rate")

	// ErrPortClosed is returned when an operation is attempted on a
	// transport that is not open.
	ErrPortClosed = errors.New("serial port not open")

	// ErrReadTimeout is returned by Receive when the requested number
	// of bytes did not arrive within the read timeout. A short read is
	// always a timeout, never a partial success.
	ErrReadTimeout = errors.New("read timeout")
)

// SupportedBaudRates lists the baud rates the sensor's UART accepts.
var SupportedBaudRates = []int{230400, 460800, 921600}

// IsSupportedBaud reports whether baud is a rate the sensor accepts
func IsSupportedBaud(baud int) bool {
	for _, b := range SupportedBaudRates {
		if baud == b {
			return true
		}
	}
	return false
}
