// Package hidenum lists HID devices and resolves their hidraw/evdev nodes,
// generalizing hidraw.go's fixed-VID sysfs walk into a vendor-agnostic
// lookup and layering github.com/karalabe/hid's cross-platform enumerator
// on top for the fields sysfs alone does not expose (manufacturer, product
// and serial strings).
package hidenum

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/karalabe/hid"

	"padswitch/internal/perrors"
)

// Info is one HID device as seen by the OS HID subsystem, independent of
// whether it has since been claimed by an evdev/XInput/DirectInput layer.
type Info struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
}

// Enumerate lists every HID device currently attached. vendorID/productID
// of 0 match any vendor/product, mirroring hid.Enumerate's own convention.
func Enumerate(vendorID, productID uint16) ([]Info, error) {
	if !hid.Supported() {
		return nil, perrors.PlatformNotSupported("hidraw enumeration unavailable on this platform")
	}
	raw, err := hid.Enumerate(vendorID, productID)
	if err != nil {
		return nil, perrors.IO("enumerating HID devices", err)
	}

	out := make([]Info, 0, len(raw))
	for _, d := range raw {
		out = append(out, Info{
			Path:         d.Path,
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
			Serial:       d.Serial,
		})
	}
	return out, nil
}

// HidrawForUSB finds the /dev/hidrawN node belonging to a specific USB
// bus/address pair, generalizing hidraw.go's GetHidrawForUSB from one fixed
// Nintendo Pro Controller VID to any matched device.
func HidrawForUSB(bus, addr int) (string, error) {
	return nodeForUSB("/sys/class/hidraw", "hidraw", "/dev/", bus, addr)
}

// EvdevForUSB finds the /dev/input/eventN node for a USB bus/address pair,
// generalizing hidraw.go's GetEvdevForUSB the same way.
func EvdevForUSB(bus, addr int) (string, error) {
	return nodeForUSB("/sys/class/input", "event", "/dev/input/", bus, addr)
}

func nodeForUSB(classDir, prefix, devPrefix string, bus, addr int) (string, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return "", perrors.IO(fmt.Sprintf("reading %s", classDir), err)
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		devPath := filepath.Join(classDir, entry.Name(), "device")
		if matchesUSBDevice(devPath, bus, addr) {
			return devPrefix + entry.Name(), nil
		}
	}
	return "", perrors.DeviceNotFound(fmt.Sprintf("no %s node for USB bus %d addr %d", prefix, bus, addr))
}

// matchesUSBDevice walks up the sysfs tree from startPath looking for the
// busnum/devnum files that identify the owning USB device, same walk as
// hidraw.go's matchesUSBDevice but bounded with filepath instead of string
// concatenation.
func matchesUSBDevice(startPath string, targetBus, targetAddr int) bool {
	real, err := filepath.EvalSymlinks(startPath)
	if err != nil {
		return false
	}

	dir := real
	for i := 0; i < 6; i++ {
		busFile := filepath.Join(dir, "busnum")
		devFile := filepath.Join(dir, "devnum")
		if fileExists(busFile) && fileExists(devFile) {
			bus, _ := readIntFile(busFile)
			addr, _ := readIntFile(devFile)
			return bus == targetBus && addr == targetAddr
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
