// internal/sensor/identity.go
package sensor

import (
	"context"
	"fmt"
	"strings"
)

// Identity describes the sensor as reported by its product ID and
// serial number registers.
type Identity struct {
	// ProductID is the marketing name, after alias resolution.
	ProductID string

	// ProductIDRaw is the exact register spelling.
	ProductIDRaw string

	SerialNumber string
}

var (
	prodIDRegisters = []byte{RegProdID1, RegProdID2, RegProdID3, RegProdID4}
	serialRegisters = []byte{RegSerial1, RegSerial2, RegSerial3, RegSerial4}
)

// productAliases maps factory register spellings to marketing names.
var productAliases = map[string]string{
	"A342VD10": "M-A542VR1",
}

// readIdentity reads the product ID and serial number registers from
// window 1 and leaves the sensor back in window 0.
func (s *Sequencer) readIdentity(ctx context.Context) (*Identity, error) {
	productWords, err := s.readWords(ctx, prodIDRegisters)
	if err != nil {
		return nil, fmt.Errorf("product ID registers: %w", err)
	}

	serialWords, err := s.readWords(ctx, serialRegisters)
	if err != nil {
		return nil, fmt.Errorf("serial number registers: %w", err)
	}

	if err := s.transport.Send(ctx, SelectWindow(Window0)); err != nil {
		return nil, fmt.Errorf("window restore: %w", err)
	}

	raw := decodeASCIIWords(productWords)
	productID := raw
	if alias, ok := productAliases[raw]; ok {
		productID = alias
	}

	return &Identity{
		ProductID:    productID,
		ProductIDRaw: raw,
		SerialNumber: decodeASCIIWords(serialWords),
	}, nil
}

func (s *Sequencer) readWords(ctx context.Context, registers []byte) ([]uint16, error) {
	words := make([]uint16, 0, len(registers))
	for _, reg := range registers {
		word, err := s.readRegister(ctx, Window1, reg)
		if err != nil {
			return nil, fmt.Errorf("register 0x%02X: %w", reg, err)
		}
		words = append(words, word)
	}
	return words, nil
}

// decodeASCIIWords unpacks register words into a string. Characters
// are stored little endian within each word; NUL bytes are padding.
func decodeASCIIWords(words []uint16) string {
	var sb strings.Builder
	for _, word := range words {
		low := byte(word)
		high := byte(word >> 8)
		if low != 0x00 {
			sb.WriteByte(low)
		}
		if high != 0x00 {
			sb.WriteByte(high)
		}
	}
	return strings.TrimSpace(sb.String())
}
