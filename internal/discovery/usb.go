// internal/discovery/usb.go
package discovery

import (
	"fmt"
	"sort"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Adapter describes a USB serial adapter found on the bus. It helps
// the operator match an enumerated port to a physical device; the
// sensor itself always sits behind one of these bridges.
type Adapter struct {
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Vendor    string `json:"vendor"`
	Model     string `json:"model"`
	Bus       int    `json:"bus"`
	Address   int    `json:"address"`
}

// Location returns a stable bus position identifier
func (a Adapter) Location() string {
	return fmt.Sprintf("USB-Bus%d-Port%d", a.Bus, a.Address)
}

// AdapterDatabase contains known USB-to-UART bridge chips
type AdapterDatabase struct {
	vendors map[gousb.ID]*vendorInfo
}

type vendorInfo struct {
	name     string
	products map[gousb.ID]string
}

// NewAdapterDatabase creates and initializes the adapter database
func NewAdapterDatabase() *AdapterDatabase {
	db := &AdapterDatabase{
		vendors: make(map[gousb.ID]*vendorInfo),
	}
	db.initializeDatabase()
	return db
}

// initializeDatabase populates the known bridge chips
func (db *AdapterDatabase) initializeDatabase() {
	// FTDI (0x0403)
	db.vendors[0x0403] = &vendorInfo{
		name: "FTDI",
		products: map[gousb.ID]string{
			0x6001: "FT232R",
			0x6010: "FT2232H",
			0x6011: "FT4232H",
			0x6014: "FT232H",
			0x6015: "FT231X",
		},
	}

	// Silicon Labs (0x10C4)
	db.vendors[0x10C4] = &vendorInfo{
		name: "Silicon Labs",
		products: map[gousb.ID]string{
			0xEA60: "CP2102",
			0xEA70: "CP2105",
			0xEA71: "CP2108",
		},
	}

	// WCH (0x1A86)
	db.vendors[0x1A86] = &vendorInfo{
		name: "QinHeng Electronics",
		products: map[gousb.ID]string{
			0x7523: "CH340",
			0x5523: "CH341",
			0x55D4: "CH9102",
		},
	}

	// Prolific (0x067B)
	db.vendors[0x067B] = &vendorInfo{
		name: "Prolific",
		products: map[gousb.ID]string{
			0x2303: "PL2303",
			0x23A3: "PL2303GC",
		},
	}
}

// IsKnownVendor reports whether the vendor ID belongs to a known
// USB-to-UART bridge manufacturer
func (db *AdapterDatabase) IsKnownVendor(vendor gousb.ID) bool {
	_, ok := db.vendors[vendor]
	return ok
}

// Identify returns vendor and model names for a known device. Unknown
// products of a known vendor get a synthetic model name.
func (db *AdapterDatabase) Identify(vendor, product gousb.ID) (string, string, bool) {
	info, ok := db.vendors[vendor]
	if !ok {
		return "", "", false
	}
	model, ok := info.products[product]
	if !ok {
		model = fmt.Sprintf("Unknown-%04X", uint16(product))
	}
	return info.name, model, true
}

// ListAdapters scans the USB bus for known serial adapters. The scan
// only reads device descriptors; no device is opened for I/O.
func ListAdapters(logger *zap.Logger) ([]Adapter, error) {
	db := NewAdapterDatabase()

	usbCtx := gousb.NewContext()
	defer func() {
		if err := usbCtx.Close(); err != nil {
			logger.Warn("Failed to close USB context", zap.Error(err))
		}
	}()

	var adapters []Adapter
	devices, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !db.IsKnownVendor(desc.Vendor) {
			return false
		}
		vendor, model, _ := db.Identify(desc.Vendor, desc.Product)
		adapters = append(adapters, Adapter{
			VendorID:  fmt.Sprintf("0x%04X", uint16(desc.Vendor)),
			ProductID: fmt.Sprintf("0x%04X", uint16(desc.Product)),
			Vendor:    vendor,
			Model:     model,
			Bus:       desc.Bus,
			Address:   desc.Address,
		})
		// Descriptor already captured; do not open the device.
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	for _, device := range devices {
		if device != nil {
			device.Close()
		}
	}

	sort.Slice(adapters, func(i, j int) bool {
		if adapters[i].Bus != adapters[j].Bus {
			return adapters[i].Bus < adapters[j].Bus
		}
		return adapters[i].Address < adapters[j].Address
	})

	logger.Debug("USB adapter scan completed", zap.Int("adapters", len(adapters)))
	return adapters, nil
}
