// Package management implements the boot-device selection state machine.
package management

import (
	"context"

	"dracd/internal/bios"
	"dracd/internal/dracerr"
	"dracd/internal/job"
	"dracd/internal/node"
	"dracd/internal/wsman"
	"dracd/internal/xmlview"
)

const (
	bootConfigSettingURI = "DCIM_BootConfigSetting"
	bootSourceSettingURI = "DCIM_BootSourceSetting"
)

// IsNext mirrors DCIM_BootConfigSetting.IsNext.
type IsNext int

const (
	Persistent IsNext = 1
	NotNext    IsNext = 2
	OneTime    IsNext = 3
)

// Device is a logical boot device exposed to callers, independent of the
// RAC's internal instance-id substrings.
type Device string

const (
	DeviceDisk   Device = "disk"
	DevicePXE    Device = "pxe"
	DeviceCDROM  Device = "cdrom"
)

// supportedDevices maps a logical device to the substring the RAC's
// BootSourceSetting InstanceID carries for that device.
var supportedDevices = map[Device]string{
	DeviceDisk:  "HardDisk",
	DevicePXE:   "NIC",
	DeviceCDROM: "Optical",
}

func deviceForInstanceID(instanceID string) *Device {
	for device, substr := range supportedDevices {
		if wsman.MatchesLike(instanceID, "*"+substr+"*") {
			d := device
			return &d
		}
	}
	return nil
}

// WSManClient is the subset of wsman.Client this package needs.
type WSManClient interface {
	Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error)
	Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error)
}

// BootDeviceState is the result of GetBootDevice.
type BootDeviceState struct {
	Device     *Device // nil when the RAC reports an instance id this driver doesn't map
	Persistent bool
}

// GetBootDevice reads the effective next-boot device: the ONE_TIME entry
// wins over PERSISTENT when both are present.
func GetBootDevice(ctx context.Context, c WSManClient) (BootDeviceState, error) {
	configView, err := c.Enumerate(ctx, bootConfigSettingURI, "")
	if err != nil {
		return BootDeviceState{}, err
	}

	var oneTimeInstance, persistentInstance string
	for _, item := range configView.FindAll("Item") {
		instance := item.Find("InstanceID").TextOr("")
		switch atoiIsNext(item.Find("IsNext").TextOr("")) {
		case OneTime:
			oneTimeInstance = instance
		case Persistent:
			persistentInstance = instance
		}
	}

	var bootConfigInstance string
	persistent := false
	switch {
	case oneTimeInstance != "":
		bootConfigInstance = oneTimeInstance
		persistent = false
	case persistentInstance != "":
		bootConfigInstance = persistentInstance
		persistent = true
	default:
		return BootDeviceState{Device: nil, Persistent: false}, nil
	}

	sourceView, err := c.Enumerate(ctx, bootSourceSettingURI, "")
	if err != nil {
		return BootDeviceState{}, err
	}

	for _, item := range sourceView.FindAll("Item") {
		if item.Find("PendingAssignedSequence").TextOr("") != "0" {
			continue
		}
		if item.Find("BootSourceType").TextOr("") != bootConfigInstance {
			continue
		}
		device := deviceForInstanceID(item.Find("InstanceID").TextOr(""))
		return BootDeviceState{Device: device, Persistent: persistent}, nil
	}

	return BootDeviceState{Device: nil, Persistent: persistent}, nil
}

func atoiIsNext(s string) IsNext {
	switch s {
	case "1":
		return Persistent
	case "2":
		return NotNext
	case "3":
		return OneTime
	}
	return NotNext
}

// SetBootDevice stages the requested boot device/persistence, guarding
// against a conflicting pending job, and commits a lifecycle job. It is a
// no-op (zero WS-MAN invocations) when the requested state already matches
// the current state.
func SetBootDevice(ctx context.Context, c WSManClient, lockMgr node.LockManager, handle node.Handle, device Device, persistent bool) error {
	current, err := GetBootDevice(ctx, c)
	if err != nil {
		return err
	}
	if current.Device != nil && *current.Device == device && current.Persistent == persistent {
		return nil
	}

	lock, err := lockMgr.AcquireExclusive(ctx, handle.UUID())
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := job.CheckForConfigJob(ctx, c, bios.Target); err != nil {
		return err
	}

	substr, ok := supportedDevices[device]
	if !ok {
		return &dracerr.InvalidParameterValue{Messages: []string{"unsupported boot device"}}
	}

	sourceView, err := c.Enumerate(ctx, bootSourceSettingURI, "InstanceID like '%#"+substr+"%'")
	if err != nil {
		return err
	}

	items := sourceView.FindAll("Item")
	if len(items) == 0 {
		return &dracerr.OperationFailed{Message: "no boot source setting matched requested device"}
	}
	instanceID := items[0].Find("InstanceID").TextOr("")
	bootSourceType := items[0].Find("BootSourceType").TextOr("")

	selectorValue := bootSourceType
	if !persistent {
		selectorValue = "OneTime"
	}

	if _, err := c.Invoke(ctx, bootConfigSettingURI, "ChangeBootOrderByInstanceID",
		map[string]string{"InstanceID": selectorValue},
		map[string]any{"source": instanceID},
		0,
	); err != nil {
		return err
	}

	_, err = bios.CreateConfigJob(ctx, c, false)
	return err
}
