//go:build windows

package platform

import (
	"os"
	"strings"

	"golang.org/x/sys/windows"

	"padswitch/internal/perrors"
)

// HidHide IOCTL codes and device path, ported from hidhide.rs. The IOCTLs
// themselves never change across HidHide releases; only the calling
// convention differs between windows-rs and golang.org/x/sys/windows.
const (
	hidHideDevicePath = `\\.\HidHide`

	ioctlGetWhitelist = 0x80016000
	ioctlSetWhitelist = 0x80016004
	ioctlGetBlacklist = 0x80016008
	ioctlSetBlacklist = 0x8001600C
	// ioctlGetActive has no caller: SetActive is write-only from this
	// client's side, nothing here reads the driver's current flag back.
	// Listed anyway for completeness with spec.md §6's IOCTL table.
	ioctlGetActive = 0x80016010
	ioctlSetActive = 0x80016014
)

// hidHide opens a fresh handle per call, matching HidHide's "only one handle
// at a time" constraint documented in hidhide.rs.
type hidHide struct{}

func openHidHide() (windows.Handle, error) {
	path, err := windows.UTF16PtrFromString(hidHideDevicePath)
	if err != nil {
		return 0, perrors.HidingDriver("encoding HidHide device path", err)
	}
	h, err := windows.CreateFile(
		path,
		0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return 0, perrors.HidingDriver("opening HidHide device", err)
	}
	return h, nil
}

func hidHideInstalled() bool {
	h, err := openHidHide()
	if err != nil {
		return false
	}
	windows.CloseHandle(h)
	return true
}

func (hidHide) SetActive(active bool) error {
	h, err := openHidHide()
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	var value byte
	if active {
		value = 1
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(h, ioctlSetActive, &value, 1, nil, 0, &bytesReturned, nil); err != nil {
		return perrors.HidingDriver("IOCTL_SET_ACTIVE", err)
	}
	return nil
}

func (hidHide) Hide(instancePath string) error {
	h, err := openHidHide()
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	list, err := ioctlGetList(h, ioctlGetBlacklist)
	if err != nil {
		return err
	}
	normalized := strings.ToUpper(instancePath)
	for _, s := range list {
		if strings.ToUpper(s) == normalized {
			return nil
		}
	}
	list = append(list, instancePath)
	return ioctlSetList(h, ioctlSetBlacklist, list)
}

func (hidHide) Unhide(instancePath string) error {
	h, err := openHidHide()
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	list, err := ioctlGetList(h, ioctlGetBlacklist)
	if err != nil {
		return err
	}
	normalized := strings.ToUpper(instancePath)
	kept := list[:0]
	for _, s := range list {
		if strings.ToUpper(s) != normalized {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return ioctlSetList(h, ioctlSetBlacklist, kept)
}

// WhitelistSelf lets the padswitch process itself keep raw access to hidden
// devices (Force mode forwards from the real device to the virtual one, so
// the forwarding process must stay exempt from its own blacklist).
func (hidHide) WhitelistSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return perrors.HidingDriver("resolving own executable path", err)
	}

	h, err := openHidHide()
	if err != nil {
		return err
	}
	defer windows.CloseHandle(h)

	list, err := ioctlGetList(h, ioctlGetWhitelist)
	if err != nil {
		return err
	}
	normalized := strings.ToUpper(exe)
	for _, s := range list {
		if strings.ToUpper(s) == normalized {
			return nil
		}
	}
	list = append(list, exe)
	return ioctlSetList(h, ioctlSetWhitelist, list)
}

// ioctlGetList fetches a double-null-terminated UTF-16LE multi-string list
// using the two-call size-then-data pattern hidhide.rs documents.
func ioctlGetList(h windows.Handle, code uint32) ([]string, error) {
	var bytesReturned uint32
	_ = windows.DeviceIoControl(h, code, nil, 0, nil, 0, &bytesReturned, nil)
	if bytesReturned == 0 {
		return nil, nil
	}

	buf := make([]byte, bytesReturned)
	if err := windows.DeviceIoControl(h, code, nil, 0, &buf[0], bytesReturned, &bytesReturned, nil); err != nil {
		return nil, perrors.HidingDriver("reading HidHide list", err)
	}
	return decodeMultiString(buf[:bytesReturned]), nil
}

func ioctlSetList(h windows.Handle, code uint32, list []string) error {
	buf := encodeMultiString(list)
	var bytesReturned uint32
	var p *byte
	if len(buf) > 0 {
		p = &buf[0]
	}
	if err := windows.DeviceIoControl(h, code, p, uint32(len(buf)), nil, 0, &bytesReturned, nil); err != nil {
		return perrors.HidingDriver("writing HidHide list", err)
	}
	return nil
}

func encodeMultiString(list []string) []byte {
	var wide []uint16
	for _, s := range list {
		wide = append(wide, windows.StringToUTF16(s)...)
		wide[len(wide)-1] = 0
	}
	wide = append(wide, 0)

	buf := make([]byte, len(wide)*2)
	for i, w := range wide {
		buf[2*i] = byte(w)
		buf[2*i+1] = byte(w >> 8)
	}
	return buf
}

func decodeMultiString(buf []byte) []string {
	if len(buf) < 2 {
		return nil
	}
	wide := make([]uint16, len(buf)/2)
	for i := range wide {
		wide[i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
	}

	var out []string
	var cur []uint16
	for _, ch := range wide {
		if ch == 0 {
			if len(cur) == 0 {
				break
			}
			out = append(out, windows.UTF16ToString(cur))
			cur = nil
			continue
		}
		cur = append(cur, ch)
	}
	return out
}
