//go:build windows

package platform

import (
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"padswitch/internal/perrors"
)

// SetupAPI is not wrapped by golang.org/x/sys/windows, so its seven entry
// points are bound directly the way windows_xinput.go binds XInput: via
// NewLazySystemDLL, ported from
// setupdi.rs's windows-rs calls one-for-one.
var (
	setupapi                       = windows.NewLazySystemDLL("setupapi.dll")
	procSetupDiGetClassDevsW       = setupapi.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInfo      = setupapi.NewProc("SetupDiEnumDeviceInfo")
	procSetupDiGetDeviceInstanceIdW = setupapi.NewProc("SetupDiGetDeviceInstanceIdW")
	procSetupDiGetDeviceRegistryPropertyW = setupapi.NewProc("SetupDiGetDeviceRegistryPropertyW")
	procSetupDiSetClassInstallParamsW     = setupapi.NewProc("SetupDiSetClassInstallParamsW")
	procSetupDiCallClassInstaller         = setupapi.NewProc("SetupDiCallClassInstaller")
	procSetupDiDestroyDeviceInfoList      = setupapi.NewProc("SetupDiDestroyDeviceInfoList")
)

const (
	digcfPresent    = 0x00000002
	digcfAllClasses = 0x00000004

	spdrpDeviceDesc   = 0x00000000
	spdrpHardwareID   = 0x00000001
	spdrpService      = 0x00000005
	spdrpClass        = 0x00000007
	spdrpFriendlyName = 0x0000000C

	difPropertyChange = 0x00000012
	dicsEnable        = 1
	dicsDisable       = 2
	dicsFlagGlobal    = 1

	invalidHandleValue = ^uintptr(0)
)

type spDevinfoData struct {
	cbSize    uint32
	classGUID windows.GUID
	devInst   uint32
	reserved  uintptr
}

type spClassInstallHeader struct {
	cbSize          uint32
	installFunction uint32
}

type spPropchangeParams struct {
	classInstallHeader spClassInstallHeader
	stateChange        uint32
	scope               uint32
	hwProfile           uint32
}

// windowsGameController is what enumerate_game_controllers returns in
// setupdi.rs: a real SetupAPI instance path plus a flag for whether the
// device occupies an XInput slot.
type windowsGameController struct {
	InstancePath string
	Name         string
	VendorID     uint16
	ProductID    uint16
	IsXInput     bool
}

func enumerateGameControllers() ([]windowsGameController, error) {
	devInfo, _, callErr := procSetupDiGetClassDevsW.Call(0, 0, 0, digcfAllClasses|digcfPresent)
	if devInfo == invalidHandleValue || devInfo == 0 {
		return nil, perrors.Platform("SetupDiGetClassDevsW failed", callErr)
	}
	defer procSetupDiDestroyDeviceInfoList.Call(devInfo)

	var out []windowsGameController
	for index := uint32(0); ; index++ {
		data := spDevinfoData{cbSize: uint32(unsafe.Sizeof(spDevinfoData{}))}
		ok, _, _ := procSetupDiEnumDeviceInfo.Call(devInfo, uintptr(index), uintptr(unsafe.Pointer(&data)))
		if ok == 0 {
			break
		}

		service := deviceStringProperty(devInfo, &data, spdrpService)
		class := deviceStringProperty(devInfo, &data, spdrpClass)
		description := deviceStringProperty(devInfo, &data, spdrpDeviceDesc)

		if !isGameControllerWin(service, description, class) {
			continue
		}

		instancePath, ok2 := deviceInstanceID(devInfo, &data)
		if !ok2 {
			continue
		}

		friendly := deviceStringProperty(devInfo, &data, spdrpFriendlyName)
		name := friendly
		if name == "" {
			name = description
		}

		hwIDs := deviceMultiStringProperty(devInfo, &data, spdrpHardwareID)
		vid, pid := extractVidPid(hwIDs)

		out = append(out, windowsGameController{
			InstancePath: instancePath,
			Name:         name,
			VendorID:     vid,
			ProductID:    pid,
			IsXInput:     isXInputDriver(service, class),
		})
	}
	return out, nil
}

func isXInputDriver(service, class string) bool {
	su := strings.ToUpper(service)
	cl := strings.ToLower(class)
	return strings.Contains(su, "XUSB") || strings.Contains(su, "XINPUT") || su == "XBOXGIP" ||
		strings.Contains(cl, "xna") || strings.Contains(cl, "xbox")
}

func isGameControllerWin(service, description, class string) bool {
	su := strings.ToUpper(service)
	dl := strings.ToLower(description)
	cl := strings.ToLower(class)

	if strings.Contains(su, "XUSB") || strings.Contains(su, "XINPUT") || su == "XBOXGIP" {
		return true
	}
	if strings.Contains(cl, "xna") || strings.Contains(cl, "xbox") {
		return true
	}
	if strings.Contains(dl, "game controller") || strings.Contains(dl, "gamepad") || strings.Contains(dl, "joystick") {
		return true
	}
	if strings.Contains(dl, "controller") && !strings.Contains(dl, "hub") &&
		!strings.Contains(dl, "host") && !strings.Contains(dl, "root") &&
		(strings.Contains(cl, "hid") || cl == "") {
		return true
	}
	return false
}

// getDeviceRegistryProperty runs SetupDiGetDeviceRegistryPropertyW's
// two-call size-then-data pattern (devInfo, data, property, regDataType,
// propertyBuffer, propertyBufferSize, requiredSize — all 7 parameters).
func getDeviceRegistryProperty(devInfo uintptr, data *spDevinfoData, property uint32) []uint16 {
	var size uint32
	procSetupDiGetDeviceRegistryPropertyW.Call(devInfo, uintptr(unsafe.Pointer(data)), uintptr(property), 0, 0, 0, uintptr(unsafe.Pointer(&size)))
	if size == 0 {
		return nil
	}
	buf := make([]uint16, size/2+1)
	ok, _, _ := procSetupDiGetDeviceRegistryPropertyW.Call(devInfo, uintptr(unsafe.Pointer(data)), uintptr(property), 0, uintptr(unsafe.Pointer(&buf[0])), uintptr(size), uintptr(unsafe.Pointer(&size)))
	if ok == 0 {
		return nil
	}
	return buf
}

func deviceStringProperty(devInfo uintptr, data *spDevinfoData, property uint32) string {
	buf := getDeviceRegistryProperty(devInfo, data, property)
	if buf == nil {
		return ""
	}
	return windows.UTF16ToString(buf)
}

func deviceMultiStringProperty(devInfo uintptr, data *spDevinfoData, property uint32) []string {
	buf := getDeviceRegistryProperty(devInfo, data, property)
	if buf == nil {
		return nil
	}
	return decodeMultiString16(buf)
}

func decodeMultiString16(wide []uint16) []string {
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

func deviceInstanceID(devInfo uintptr, data *spDevinfoData) (string, bool) {
	buf := make([]uint16, 512)
	var required uint32
	ok, _, _ := procSetupDiGetDeviceInstanceIdW.Call(devInfo, uintptr(unsafe.Pointer(data)), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), uintptr(unsafe.Pointer(&required)))
	if ok == 0 {
		return "", false
	}
	return windows.UTF16ToString(buf), true
}

func extractVidPid(hwIDs []string) (uint16, uint16) {
	for _, hwid := range hwIDs {
		upper := strings.ToUpper(hwid)
		vid := extractHexAfter(upper, "VID_")
		pid := extractHexAfter(upper, "PID_")
		if vid != 0 || pid != 0 {
			return vid, pid
		}
	}
	return 0, 0
}

func extractHexAfter(s, prefix string) uint16 {
	pos := strings.Index(s, prefix)
	if pos < 0 {
		return 0
	}
	rest := s[pos+len(prefix):]
	end := 0
	for end < len(rest) && isHexDigit(rest[end]) {
		end++
	}
	v, err := strconv.ParseUint(rest[:end], 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func changeDeviceState(instancePath string, stateChange uint32) error {
	devInfo, _, callErr := procSetupDiGetClassDevsW.Call(0, 0, 0, digcfAllClasses|digcfPresent)
	if devInfo == invalidHandleValue || devInfo == 0 {
		return perrors.Platform("SetupDiGetClassDevsW failed", callErr)
	}
	defer procSetupDiDestroyDeviceInfoList.Call(devInfo)

	target := strings.ToUpper(instancePath)
	for index := uint32(0); ; index++ {
		data := spDevinfoData{cbSize: uint32(unsafe.Sizeof(spDevinfoData{}))}
		ok, _, _ := procSetupDiEnumDeviceInfo.Call(devInfo, uintptr(index), uintptr(unsafe.Pointer(&data)))
		if ok == 0 {
			break
		}

		id, found := deviceInstanceID(devInfo, &data)
		if !found || strings.ToUpper(id) != target {
			continue
		}

		params := spPropchangeParams{
			classInstallHeader: spClassInstallHeader{
				cbSize:          uint32(unsafe.Sizeof(spClassInstallHeader{})),
				installFunction: difPropertyChange,
			},
			stateChange: stateChange,
			scope:       dicsFlagGlobal,
		}

		ok1, _, err1 := procSetupDiSetClassInstallParamsW.Call(
			devInfo, uintptr(unsafe.Pointer(&data)),
			uintptr(unsafe.Pointer(&params.classInstallHeader)),
			uintptr(unsafe.Sizeof(params)),
		)
		if ok1 == 0 {
			return accessDeniedOr(err1, "SetupDiSetClassInstallParamsW")
		}

		ok2, _, err2 := procSetupDiCallClassInstaller.Call(difPropertyChange, devInfo, uintptr(unsafe.Pointer(&data)))
		if ok2 == 0 {
			return accessDeniedOr(err2, "SetupDiCallClassInstaller")
		}
		return nil
	}

	return perrors.DeviceNotFound("device not found in SetupDi: " + instancePath)
}

func accessDeniedOr(err error, call string) error {
	if errno, ok := err.(syscall.Errno); ok && errno == windows.ERROR_ACCESS_DENIED {
		return perrors.Platform("access denied; run padswitch as Administrator to change device state", err)
	}
	return perrors.Platform(call+" failed", err)
}
