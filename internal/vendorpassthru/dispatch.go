// Package vendorpassthru exposes the driver's operations as a fixed
// dispatch table keyed by (HTTP verb, method name), mirroring how a
// fleet-management conductor's vendor-passthru surface routes arbitrary
// out-of-band calls to a driver. Callers (such as cmd/dracd's HTTP binding)
// own the transport; this package owns none of it, only the typed routing a
// method name resolves to.
package vendorpassthru

import (
	"context"
	"fmt"

	"dracd/internal/bios"
	"dracd/internal/dracerr"
	"dracd/internal/job"
	"dracd/internal/node"
	"dracd/internal/raid"
	"dracd/internal/wsman"
)

// Verb is an HTTP method name, kept as a distinct type so the dispatch table
// key can't be confused with an arbitrary string.
type Verb string

const (
	VerbGET    Verb = "GET"
	VerbPOST   Verb = "POST"
	VerbDELETE Verb = "DELETE"
)

// Request carries everything a handler needs: the node's resolved handle,
// credentials already bound into a WS-MAN client, the lock service, and the
// caller-supplied kwargs (decoded from whatever wire format the REST layer
// uses — JSON body for POST, query parameters for GET/DELETE).
type Request struct {
	Handle  node.Handle
	Client  *wsman.Client
	LockMgr node.LockManager
	Args    map[string]any
}

// Handler runs one vendor-passthru method and returns a value the caller
// JSON-encodes, or an error from the dracerr taxonomy.
type Handler func(ctx context.Context, req Request) (any, error)

type route struct {
	verb   Verb
	method string
}

// table is the fixed (verb, method) → handler mapping the vendor-passthru
// surface exposes. Every entry here is synchronous.
var table = map[route]Handler{
	{VerbGET, "get_bios_config"}:            handleGetBiosConfig,
	{VerbPOST, "set_bios_config"}:           handleSetBiosConfig,
	{VerbPOST, "commit_bios_config"}:        handleCommitBiosConfig,
	{VerbDELETE, "abandon_bios_config"}:     handleAbandonBiosConfig,
	{VerbGET, "list_raid_controllers"}:      handleListRAIDControllers,
	{VerbGET, "list_physical_disks"}:        handleListPhysicalDisks,
	{VerbGET, "list_virtual_disks"}:         handleListVirtualDisks,
	{VerbPOST, "create_virtual_disk"}:       handleCreateVirtualDisk,
	{VerbPOST, "delete_virtual_disk"}:       handleDeleteVirtualDisk,
	{VerbPOST, "apply_pending_raid_config"}: handleApplyPendingRAIDConfig,
	{VerbPOST, "delete_pending_raid_config"}: handleDeletePendingRAIDConfig,
	{VerbGET, "get_job"}:                    handleGetJob,
	{VerbGET, "list_unfinished_jobs"}:       handleListUnfinishedJobs,
	{VerbPOST, "create_raid_configuration"}: handleCreateRAIDConfiguration,
}

// Dispatch resolves (verb, method) and runs the matching handler.
// UnexpectedReturnValue-shaped surprises aside, an unknown route is itself
// an OperationFailed: the conductor asked for something this driver does
// not expose.
func Dispatch(ctx context.Context, verb Verb, method string, req Request) (any, error) {
	h, ok := table[route{verb, method}]
	if !ok {
		return nil, &dracerr.OperationFailed{Message: fmt.Sprintf("no vendor passthru method %s %s", verb, method)}
	}
	return h(ctx, req)
}

func handleGetBiosConfig(ctx context.Context, req Request) (any, error) {
	return bios.GetConfig(ctx, req.Client)
}

func handleSetBiosConfig(ctx context.Context, req Request) (any, error) {
	requested := make(map[string]string, len(req.Args))
	for k, v := range req.Args {
		if s, ok := v.(string); ok {
			requested[k] = s
		}
	}
	reboot, err := bios.SetConfig(ctx, req.Client, req.LockMgr, req.Handle, requested)
	return map[string]any{"reboot_required": reboot}, err
}

func handleCommitBiosConfig(ctx context.Context, req Request) (any, error) {
	reboot, _ := req.Args["reboot"].(bool)
	jobID, err := bios.CommitConfig(ctx, req.Client, reboot)
	return map[string]any{"job_id": jobID}, err
}

func handleAbandonBiosConfig(ctx context.Context, req Request) (any, error) {
	return nil, bios.AbandonConfig(ctx, req.Client)
}

func handleListRAIDControllers(ctx context.Context, req Request) (any, error) {
	return raid.ListRAIDControllers(ctx, req.Client)
}

func handleListPhysicalDisks(ctx context.Context, req Request) (any, error) {
	return raid.ListPhysicalDisks(ctx, req.Client)
}

func handleListVirtualDisks(ctx context.Context, req Request) (any, error) {
	return raid.ListVirtualDisks(ctx, req.Client)
}

func handleCreateVirtualDisk(ctx context.Context, req Request) (any, error) {
	var ipv dracerr.InvalidParameterValue

	controller, _ := req.Args["raid_controller"].(string)
	if controller == "" {
		ipv.Add("raid_controller is required")
	}
	sizeMB, _ := req.Args["size_mb"].(float64)
	if sizeMB <= 0 {
		ipv.Add("size_mb is required")
	}
	raidLevel, _ := req.Args["raid_level"].(string)
	if raidLevel == "" {
		ipv.Add("raid_level is required")
	}

	var disks []string
	if raw, ok := req.Args["physical_disks"].([]any); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok {
				disks = append(disks, s)
			}
		}
	}
	if len(disks) == 0 {
		ipv.Add("physical_disks is required")
	}
	if err := ipv.ErrIfAny(); err != nil {
		return nil, err
	}

	vdReq := raid.CreateVirtualDiskRequest{
		RaidController: controller,
		PhysicalDisks:  disks,
		SizeMB:         int(sizeMB),
		RaidLevel:      raidLevel,
	}
	if name, ok := req.Args["disk_name"].(string); ok {
		vdReq.DiskName = name
	}
	if sd, ok := req.Args["span_depth"].(float64); ok {
		v := int(sd)
		vdReq.SpanDepth = &v
	}
	if sl, ok := req.Args["span_length"].(float64); ok {
		v := int(sl)
		vdReq.SpanLength = &v
	}

	return nil, raid.CreateVirtualDisk(ctx, req.Client, vdReq)
}

func handleDeleteVirtualDisk(ctx context.Context, req Request) (any, error) {
	fqdd, _ := req.Args["virtual_disk"].(string)
	return nil, raid.DeleteVirtualDisk(ctx, req.Client, fqdd)
}

func handleApplyPendingRAIDConfig(ctx context.Context, req Request) (any, error) {
	controller, _ := req.Args["raid_controller"].(string)
	reboot, _ := req.Args["reboot"].(bool)
	jobID, err := raid.ApplyPendingConfig(ctx, req.Client, controller, reboot)
	return map[string]any{"job_id": jobID}, err
}

func handleDeletePendingRAIDConfig(ctx context.Context, req Request) (any, error) {
	controller, _ := req.Args["raid_controller"].(string)
	return nil, raid.DeletePendingConfig(ctx, req.Client, controller)
}

func handleGetJob(ctx context.Context, req Request) (any, error) {
	jobID, _ := req.Args["job_id"].(string)
	return job.Get(ctx, req.Client, jobID)
}

func handleListUnfinishedJobs(ctx context.Context, req Request) (any, error) {
	return job.ListUnfinished(ctx, req.Client)
}

func handleCreateRAIDConfiguration(ctx context.Context, req Request) (any, error) {
	createRoot, _ := req.Args["create_root_volume"].(bool)
	createNonRoot, _ := req.Args["create_nonroot_volumes"].(bool)
	reboot, _ := req.Args["reboot"].(bool)
	return nil, raid.CreateConfiguration(ctx, req.Client, req.LockMgr, req.Handle, createRoot, createNonRoot, reboot)
}
