package raid

import (
	"context"
	"strconv"
	"strings"

	"dracd/internal/xmlview"
)

const (
	controllerViewURI  = "DCIM_ControllerView"
	virtualDiskViewURI = "DCIM_VirtualDiskView"
	physicalDiskViewURI = "DCIM_PhysicalDiskView"
	raidServiceURI      = "DCIM_RAIDService"
)

const bytesPerGB = 1 << 30

// WSManClient is the subset of wsman.Client this package needs.
type WSManClient interface {
	Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error)
	Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error)
}

func bytesToGB(bytesText string) int {
	n, err := strconv.ParseInt(bytesText, 10, 64)
	if err != nil {
		return 0
	}
	return int(n / bytesPerGB)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// controllerFromFQDD derives a disk's owning controller from its own FQDD,
// which is the only place the RAC's disk views actually carry it. A virtual
// disk's FQDD is "Disk.Virtual.N:<controller>" (segment index 1); a physical
// disk's is "Disk.Bay.N:Enclosure.M:<controller>" (segment index 2).
func controllerFromFQDD(fqdd string, segment int) string {
	parts := strings.Split(fqdd, ":")
	if segment >= len(parts) {
		return ""
	}
	return parts[segment]
}

// ListRAIDControllers enumerates DCIM_ControllerView.
func ListRAIDControllers(ctx context.Context, c WSManClient) ([]Controller, error) {
	view, err := c.Enumerate(ctx, controllerViewURI, "")
	if err != nil {
		return nil, err
	}

	var out []Controller
	for _, item := range view.FindAll("Item") {
		out = append(out, Controller{
			ID:    item.Find("FQDD").TextOr(""),
			Model: item.Find("ProductName").TextOr(""),
		})
	}
	return out, nil
}

// ListVirtualDisks enumerates DCIM_VirtualDiskView.
func ListVirtualDisks(ctx context.Context, c WSManClient) ([]VirtualDisk, error) {
	view, err := c.Enumerate(ctx, virtualDiskViewURI, "")
	if err != nil {
		return nil, err
	}

	var out []VirtualDisk
	for _, item := range view.FindAll("Item") {
		level, _ := DecodeLevel(atoiOrZero(item.Find("RAIDTypes").TextOr("")))
		fqdd := item.Find("FQDD").TextOr("")
		out = append(out, VirtualDisk{
			ID:         fqdd,
			Controller: controllerFromFQDD(fqdd, 1),
			SizeGB:     bytesToGB(item.Find("SizeInBytes").TextOr("")),
			RAIDLevel:  level,
			Name:       item.Find("Name").TextOr(""),
			State:      item.Find("PrimaryStatus").TextOr(""),
			RAIDState:  RAIDState(item.Find("RaidStatus").TextOr(string(RAIDStateUnknown))),
		})
	}
	return out, nil
}

// ListPhysicalDisks enumerates DCIM_PhysicalDiskView.
func ListPhysicalDisks(ctx context.Context, c WSManClient) ([]PhysicalDisk, error) {
	view, err := c.Enumerate(ctx, physicalDiskViewURI, "")
	if err != nil {
		return nil, err
	}

	var out []PhysicalDisk
	for _, item := range view.FindAll("Item") {
		fqdd := item.Find("FQDD").TextOr("")
		out = append(out, PhysicalDisk{
			ID:              fqdd,
			Controller:      controllerFromFQDD(fqdd, 2),
			DiskType:        mediaTypeToDiskType(item.Find("MediaType").TextOr("")),
			InterfaceType:   interfaceTypeFromText(item.Find("BusProtocol").TextOr("")),
			SizeGB:          bytesToGB(item.Find("SizeInBytes").TextOr("")),
			FreeSizeGB:      bytesToGB(item.Find("FreeSizeInBytes").TextOr("")),
			Vendor:          item.Find("Manufacturer").TextOr(""),
			Model:           item.Find("Model").TextOr(""),
			SerialNumber:    item.Find("SerialNumber").TextOr(""),
			FirmwareVersion: item.Find("Revision").TextOr(""),
			State:           DiskState(item.Find("PrimaryStatus").TextOr(string(DiskStateUnknown))),
			RAIDState:       RAIDState(item.Find("RaidStatus").TextOr(string(RAIDStateUnknown))),
		})
	}
	return out, nil
}

func mediaTypeToDiskType(text string) DiskType {
	if text == "1" || text == "SSD" {
		return DiskTypeSSD
	}
	return DiskTypeHDD
}

func interfaceTypeFromText(text string) InterfaceType {
	switch text {
	case "SCSI":
		return InterfaceSCSI
	case "PATA", "IDE":
		return InterfacePATA
	case "FIBRE":
		return InterfaceFibre
	case "USB":
		return InterfaceUSB
	case "SATA":
		return InterfaceSATA
	case "SAS":
		return InterfaceSAS
	default:
		return InterfaceUnknown
	}
}
