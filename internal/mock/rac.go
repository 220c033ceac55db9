// Package mock provides an in-memory fake RAC (the WS-MAN responder a real
// iDRAC endpoint would be) for integration tests that want to exercise the
// raid/job/reconciler packages end to end without a live wsman.Client. It
// implements the same narrow Enumerate/Invoke shape each package's client
// interface declares, as one stateful fixture so a test can drive a
// realistic create-virtual-disk-then-reconcile flow.
package mock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"dracd/internal/raid"
	"dracd/internal/xmlview"
)

// Controller is a simulated RAID controller.
type Controller struct {
	ID    string
	Model string
}

// PhysicalDisk is a simulated physical disk.
type PhysicalDisk struct {
	ID              string
	Controller      string
	DiskType        raid.DiskType
	InterfaceType   raid.InterfaceType
	SizeGB          int
	FreeSizeGB      int
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	State           raid.DiskState
	RAIDState       raid.RAIDState
}

// VirtualDisk is a simulated virtual disk.
type VirtualDisk struct {
	ID         string
	Controller string
	SizeGB     int
	RAIDLevel  string
	Name       string
	State      string
	RAIDState  raid.RAIDState
}

// Job is a simulated Lifecycle Controller job.
type Job struct {
	ID              string
	Name            string
	State           string
	Message         string
	PercentComplete int
}

// RAC is a stateful fake RAC. The zero value is not usable; construct with
// New. A RAC is safe for concurrent use from multiple goroutines, matching
// how the reconciler fans a tick out across a worker pool.
type RAC struct {
	mu            sync.Mutex
	Controllers   []Controller
	PhysicalDisks []PhysicalDisk
	VirtualDisks  []VirtualDisk
	Jobs          map[string]*Job
}

// New builds an empty RAC. Use the Seed* helpers or direct field access
// (while single-threaded, e.g. during test setup) to populate inventory.
func New() *RAC {
	return &RAC{Jobs: make(map[string]*Job)}
}

// SeedController appends a controller.
func (r *RAC) SeedController(id, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Controllers = append(r.Controllers, Controller{ID: id, Model: model})
}

// SeedReadyPhysicalDisk appends a physical disk in RAIDStateReady, the state
// the planner's disk-selection predicate requires.
func (r *RAC) SeedReadyPhysicalDisk(id, controller string, sizeGB int, ifType raid.InterfaceType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PhysicalDisks = append(r.PhysicalDisks, PhysicalDisk{
		ID:            id,
		Controller:    controller,
		DiskType:      raid.DiskTypeHDD,
		InterfaceType: ifType,
		SizeGB:        sizeGB,
		FreeSizeGB:    sizeGB,
		State:         raid.DiskStateOK,
		RAIDState:     raid.RAIDStateReady,
	})
}

// AdvanceJob moves a previously created job to a terminal state, simulating
// the RAC completing (or failing) an asynchronous config job between two
// reconciler ticks.
func (r *RAC) AdvanceJob(id, state, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.Jobs[id]; ok {
		j.State = state
		j.Message = message
	}
}

// Enumerate implements the wsman.Client shape the raid/job packages require.
func (r *RAC) Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := etree.NewDocument()
	items := doc.CreateElement("Items")

	switch resourceURI {
	case "DCIM_ControllerView":
		for _, c := range r.Controllers {
			item := items.CreateElement("Item")
			item.CreateElement("FQDD").SetText(c.ID)
			item.CreateElement("ProductName").SetText(c.Model)
		}
	case "DCIM_VirtualDiskView":
		for _, v := range r.VirtualDisks {
			item := items.CreateElement("Item")
			item.CreateElement("FQDD").SetText(fmt.Sprintf("%s:%s", v.ID, v.Controller))
			item.CreateElement("SizeInBytes").SetText(strconv.FormatInt(int64(v.SizeGB)<<30, 10))
			code, _ := raid.EncodeLevel(v.RAIDLevel)
			item.CreateElement("RAIDTypes").SetText(strconv.Itoa(code))
			item.CreateElement("Name").SetText(v.Name)
			item.CreateElement("PrimaryStatus").SetText(v.State)
			item.CreateElement("RaidStatus").SetText(string(v.RAIDState))
		}
	case "DCIM_PhysicalDiskView":
		for _, p := range r.PhysicalDisks {
			item := items.CreateElement("Item")
			item.CreateElement("FQDD").SetText(fmt.Sprintf("%s:Enclosure.Internal.0-1:%s", p.ID, p.Controller))
			item.CreateElement("MediaType").SetText(diskTypeToMediaType(p.DiskType))
			item.CreateElement("BusProtocol").SetText(interfaceTypeToBusProtocol(p.InterfaceType))
			item.CreateElement("SizeInBytes").SetText(strconv.FormatInt(int64(p.SizeGB)<<30, 10))
			item.CreateElement("FreeSizeInBytes").SetText(strconv.FormatInt(int64(p.FreeSizeGB)<<30, 10))
			item.CreateElement("Manufacturer").SetText(p.Vendor)
			item.CreateElement("Model").SetText(p.Model)
			item.CreateElement("SerialNumber").SetText(p.SerialNumber)
			item.CreateElement("Revision").SetText(p.FirmwareVersion)
			item.CreateElement("PrimaryStatus").SetText(string(p.State))
			item.CreateElement("RaidStatus").SetText(string(p.RAIDState))
		}
	case "DCIM_LifecycleJob":
		wantID := instanceIDFromFilter(filter)
		for _, j := range r.Jobs {
			if wantID != "" && j.ID != wantID {
				continue
			}
			item := items.CreateElement("Item")
			item.CreateElement("InstanceID").SetText(j.ID)
			item.CreateElement("Name").SetText(j.Name)
			item.CreateElement("JobStatus").SetText(j.State)
			item.CreateElement("Message").SetText(j.Message)
			item.CreateElement("PercentComplete").SetText(strconv.Itoa(j.PercentComplete))
		}
	}

	return xmlview.FromElement(doc.Root()), nil
}

// Invoke implements the wsman.Client shape the raid package requires. It
// mutates RAC state the way the corresponding real DCIM method would.
func (r *RAC) Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := etree.NewDocument()
	root := doc.CreateElement("Result")

	switch method {
	case "CreateVirtualDisk":
		target, _ := properties["Target"].(string)
		names, _ := properties["VDPropNameArray"].([]string)
		values, _ := properties["VDPropValueArray"].([]string)
		level, sizeMB := "", 0
		for i, n := range names {
			if i >= len(values) {
				break
			}
			switch n {
			case "RAIDLevel":
				code, _ := strconv.Atoi(values[i])
				level, _ = raid.DecodeLevel(code)
			case "Size":
				sizeMB, _ = strconv.Atoi(values[i])
			}
		}
		r.VirtualDisks = append(r.VirtualDisks, VirtualDisk{
			ID:         "Disk.Virtual." + strconv.Itoa(len(r.VirtualDisks)) + ":" + target,
			Controller: target,
			SizeGB:     sizeMB / 1024,
			RAIDLevel:  level,
			State:      "OK",
			RAIDState:  raid.RAIDStateOnline,
		})
		root.CreateElement("ReturnValue").SetText("0")

	case "DeleteVirtualDisk":
		target := selectors["Target"]
		kept := r.VirtualDisks[:0]
		for _, v := range r.VirtualDisks {
			if v.ID != target {
				kept = append(kept, v)
			}
		}
		r.VirtualDisks = kept
		root.CreateElement("ReturnValue").SetText("0")

	case "CreateTargetedConfigJob":
		id := "JID_" + uuid.NewString()
		r.Jobs[id] = &Job{ID: id, Name: "RAIDConfiguration:" + fmt.Sprint(properties["Target"]), State: "Scheduled"}
		root.CreateElement("ReturnValue").SetText("4096")
		sel := root.CreateElement("Selector")
		sel.CreateAttr("Name", "InstanceID")
		sel.SetText(id)

	case "DeletePendingConfiguration":
		root.CreateElement("ReturnValue").SetText("0")

	default:
		root.CreateElement("ReturnValue").SetText("0")
	}

	return xmlview.FromElement(doc.Root()), nil
}

func diskTypeToMediaType(t raid.DiskType) string {
	if t == raid.DiskTypeSSD {
		return "SSD"
	}
	return "HDD"
}

func interfaceTypeToBusProtocol(t raid.InterfaceType) string {
	switch t {
	case raid.InterfaceSAS:
		return "SAS"
	case raid.InterfaceSATA:
		return "SATA"
	case raid.InterfaceSCSI:
		return "SCSI"
	case raid.InterfacePATA:
		return "PATA"
	case raid.InterfaceFibre:
		return "FIBRE"
	case raid.InterfaceUSB:
		return "USB"
	default:
		return ""
	}
}

// instanceIDFromFilter extracts the InstanceID literal out of the CQL
// filters job.Get builds ("... where InstanceID = 'JID_x'"). Every other
// filter shape this fake sees (the empty string, from ListUnfinished) is
// treated as "no filter".
func instanceIDFromFilter(filter string) string {
	const marker = "InstanceID = '"
	idx := strings.Index(filter, marker)
	if idx < 0 {
		return ""
	}
	rest := filter[idx+len(marker):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
