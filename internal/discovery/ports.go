// internal/discovery/ports.go
package discovery

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ListPorts returns candidate serial ports for the current OS, sorted.
// GPIO UARTs and other ports that cannot belong to a USB-attached
// sensor are filtered out.
func ListPorts(logger *zap.Logger) ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	var filtered []string
	for _, port := range ports {
		if keepPort(runtime.GOOS, port) {
			filtered = append(filtered, port)
		}
	}
	sort.Strings(filtered)

	logger.Debug("Serial port scan completed",
		zap.Int("total", len(ports)),
		zap.Int("candidates", len(filtered)),
	)

	return filtered, nil
}

// keepPort reports whether a port name is a plausible sensor port on
// the given OS.
func keepPort(goos, port string) bool {
	switch goos {
	case "linux":
		// Skip SoC GPIO UARTs such as the Raspberry Pi's ttyAMA.
		if strings.HasPrefix(port, "/dev/ttyAMA") {
			return false
		}
		return strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM")
	case "windows":
		return strings.HasPrefix(port, "COM")
	case "darwin":
		return strings.HasPrefix(port, "/dev/tty.usbserial") || strings.HasPrefix(port, "/dev/tty.usbmodem")
	default:
		return true
	}
}

// ValidatePort reports whether a port name is well-formed for the
// given OS. It does not check that the port exists.
func ValidatePort(goos, port string) bool {
	if port == "" {
		return false
	}
	switch goos {
	case "windows":
		rest, ok := strings.CutPrefix(strings.ToUpper(port), "COM")
		if !ok || rest == "" {
			return false
		}
		for _, r := range rest {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	case "linux":
		return strings.HasPrefix(port, "/dev/tty")
	case "darwin":
		return strings.HasPrefix(port, "/dev/tty.")
	default:
		return true
	}
}

// PortExamples returns example port names for the given OS, for use in
// operator-facing messages.
func PortExamples(goos string) string {
	switch goos {
	case "windows":
		return "COM1, COM2, COM3, etc."
	case "linux":
		return "/dev/ttyUSB0, /dev/ttyUSB1, /dev/ttyACM0, etc."
	case "darwin":
		return "/dev/tty.usbserial-*, /dev/tty.usbmodem-*, etc."
	default:
		return "/dev/ttyUSB0, COM1, etc."
	}
}

// PermissionHelp returns remediation text for a permission-denied
// error on the given OS.
func PermissionHelp(goos string) string {
	switch goos {
	case "linux":
		return "Permission denied. To fix:\n" +
			"  sudo usermod -a -G dialout $USER\n" +
			"  Then log out and log back in.\n" +
			"Or run with sudo (not recommended)."
	case "darwin":
		return "Permission denied. Add your user to the dialout group, " +
			"or run with sudo (not recommended)."
	default:
		return "Permission denied. Check if you have access to the serial port."
	}
}
