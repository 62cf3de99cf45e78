package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultUSBDevicesDir is where the kernel lists attached USB devices.
const DefaultUSBDevicesDir = "/sys/bus/usb/devices"

// CameraProbe reports whether a USB device from the camera vendor is attached.
type CameraProbe struct {
	Detected     bool   `json:"detected"`
	VendorID     string `json:"vendor_id"`
	ProductID    string `json:"product_id,omitempty"`
	Product      string `json:"product,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Device       string `json:"device,omitempty"`
}

// ProbeCamera scans devicesDir (normally DefaultUSBDevicesDir) for a device
// whose idVendor matches vendorID.
func ProbeCamera(devicesDir, vendorID string) CameraProbe {
	vendorID = strings.ToLower(strings.TrimSpace(vendorID))
	probe := CameraProbe{VendorID: vendorID}
	if vendorID == "" {
		return probe
	}
	if devicesDir == "" {
		devicesDir = DefaultUSBDevicesDir
	}
	entries, err := os.ReadDir(devicesDir)
	if err != nil {
		return probe
	}
	for _, entry := range entries {
		dir := filepath.Join(devicesDir, entry.Name())
		if readAttr(dir, "idVendor") != vendorID {
			continue
		}
		probe.Detected = true
		probe.Device = entry.Name()
		probe.ProductID = readAttr(dir, "idProduct")
		probe.Product = readAttr(dir, "product")
		probe.Manufacturer = readAttr(dir, "manufacturer")
		return probe
	}
	return probe
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(data)))
}

// CameraDetail renders a display-friendly summary for status UIs.
func (p CameraProbe) CameraDetail() string {
	if p.VendorID == "" {
		return "USB detection disabled"
	}
	if !p.Detected {
		return fmt.Sprintf("No USB device with vendor %s", p.VendorID)
	}
	name := strings.TrimSpace(p.Manufacturer + " " + p.Product)
	if name == "" {
		name = p.VendorID + ":" + p.ProductID
	}
	return fmt.Sprintf("%s on %s", name, p.Device)
}
