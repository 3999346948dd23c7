// internal/sensor/command.go
package sensor

import "fmt"

// Register map for the sensor's UART command interface. Registers live
// in two windows selected by writing the window ID to WIN_CTRL; the
// write form of an address has its high bit set.
const (
	// Window select register (write form 0xFE in every window)
	RegWindowCtrl byte = 0x7E

	Window0 byte = 0x00
	Window1 byte = 0x01

	// Window 0
	RegModeCtrl  byte = 0x02 // MODE_CTRL
	RegDiagStat1 byte = 0x04 // DIAG_STAT1: bit0 = FLASH_BU_ERR

	// Window 1
	RegUARTCtrl byte = 0x08 // UART_CTRL: bit0 = UART_AUTO, bit1 = AUTO_START
	RegGlobCmd  byte = 0x0A // GLOB_CMD: bit3 = FLASH_BACKUP trigger / busy

	// Window 1, product ID and serial number (ASCII words)
	RegProdID1 byte = 0x6A
	RegProdID2 byte = 0x6C
	RegProdID3 byte = 0x6E
	RegProdID4 byte = 0x70
	RegSerial1 byte = 0x74
	RegSerial2 byte = 0x76
	RegSerial3 byte = 0x78
	RegSerial4 byte = 0x7A
)

const (
	// UARTCtrlAutoStart enables UART auto-sampling (bit 0) and
	// auto-start on power-on (bit 1).
	UARTCtrlAutoStart byte = 0x03

	// GlobCmdFlashBackup triggers non-volatile backup of the current
	// register state. The same bit reads back as 1 while the backup is
	// still running.
	GlobCmdFlashBackup byte = 0x08

	// DiagStat1FlashBUErr flags a failed flash backup in DIAG_STAT1.
	DiagStat1FlashBUErr byte = 0x01
)

const (
	frameCR   byte = 0x0D
	writeFlag byte = 0x80

	// ReadResponseLength is the fixed length of a register read
	// response: [address, MSB, LSB, CR].
	ReadResponseLength = 4
)

// WriteRegister builds a register write frame: address with the write
// flag set, one value byte, CR terminator.
func WriteRegister(addr, value byte) []byte {
	return []byte{addr | writeFlag, value, frameCR}
}

// ReadRegister builds a register read request. The device answers with
// a ReadResponseLength frame echoing the address.
func ReadRegister(addr byte) []byte {
	return []byte{addr, 0x00, frameCR}
}

// SelectWindow builds the frame that switches the active register
// window.
func SelectWindow(window byte) []byte {
	return WriteRegister(RegWindowCtrl, window)
}

// ResetFrame builds the software reset / break frame. The sensor
// expects it repeated; it produces no response.
func ResetFrame() []byte {
	return []byte{0xFF, 0xFF, frameCR}
}

// ParseReadResponse validates a register read response frame and
// returns the 16-bit register value.
func ParseReadResponse(addr byte, resp []byte) (uint16, error) {
	if len(resp) != ReadResponseLength {
		return 0, fmt.Errorf("register 0x%02X: response length %d, want %d",
			addr, len(resp), ReadResponseLength)
	}
	if resp[0] != addr {
		return 0, fmt.Errorf("register 0x%02X: response for register 0x%02X",
			addr, resp[0])
	}
	if resp[3] != frameCR {
		return 0, fmt.Errorf("register 0x%02X: response not CR-terminated (0x%02X)",
			addr, resp[3])
	}
	return uint16(resp[1])<<8 | uint16(resp[2]), nil
}
