package raid

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"dracd/internal/dracerr"
	"dracd/internal/node"
)

// integratedControllerFQDD is the literal every logical disk's controller
// field is overwritten to during create_configuration planning. This is a
// known quirk that collapses the per-disk CreateVirtualDisk target onto a
// single FQDD regardless of which controller the disk actually lives on.
// It does not affect which controllers apply_pending_config is issued
// against — that grouping uses the logical disk's original, pre-overwrite
// controller.
const integratedControllerFQDD = "RAID.Integrated.1-1"

// CreateVirtualDiskRequest is the kwargs payload of create_virtual_disk.
type CreateVirtualDiskRequest struct {
	RaidController string
	PhysicalDisks  []string
	SizeMB         int
	RaidLevel      string
	DiskName       string
	SpanDepth      *int
	SpanLength     *int
}

func validateCreateVirtualDiskRequest(req CreateVirtualDiskRequest) error {
	var ipv dracerr.InvalidParameterValue
	if req.RaidController == "" {
		ipv.Add("raid_controller is required")
	}
	if len(req.PhysicalDisks) == 0 {
		ipv.Add("physical_disks is required")
	}
	if req.SizeMB <= 0 {
		ipv.Add("size_mb is required")
	}
	if req.RaidLevel == "" {
		ipv.Add("raid_level is required")
	} else if _, ok := EncodeLevel(req.RaidLevel); !ok {
		ipv.Add("raid_level %q is not a supported level", req.RaidLevel)
	}
	return ipv.ErrIfAny()
}

// CreateVirtualDisk invokes CreateVirtualDisk on DCIM_RAIDService. Required
// arguments are validated and accumulated into a single InvalidParameterValue
// before anything is sent over the wire.
func CreateVirtualDisk(ctx context.Context, c WSManClient, req CreateVirtualDiskRequest) error {
	if err := validateCreateVirtualDiskRequest(req); err != nil {
		return err
	}

	code, _ := EncodeLevel(req.RaidLevel)

	names := []string{"RAIDLevel", "Size"}
	values := []string{strconv.Itoa(code), strconv.Itoa(req.SizeMB)}

	if req.DiskName != "" {
		names = append(names, "VirtualDiskName")
		values = append(values, req.DiskName)
	}
	if req.SpanDepth != nil {
		names = append(names, "SpanDepth")
		values = append(values, strconv.Itoa(*req.SpanDepth))
	}
	if req.SpanLength != nil {
		names = append(names, "SpanLength")
		values = append(values, strconv.Itoa(*req.SpanLength))
	}

	_, err := c.Invoke(ctx, raidServiceURI, "CreateVirtualDisk", nil, map[string]any{
		"Target":           req.RaidController,
		"PDArray":          req.PhysicalDisks,
		"VDPropNameArray":  names,
		"VDPropValueArray": values,
	}, 0)
	return err
}

// DeleteVirtualDisk invokes DeleteVirtualDisk against a single virtual disk
// FQDD.
func DeleteVirtualDisk(ctx context.Context, c WSManClient, virtualDiskFQDD string) error {
	_, err := c.Invoke(ctx, raidServiceURI, "DeleteVirtualDisk", map[string]string{"Target": virtualDiskFQDD}, nil, 0)
	return err
}

// ApplyPendingConfig commits a controller's staged pending edits as a
// lifecycle job and returns the new job id.
func ApplyPendingConfig(ctx context.Context, c WSManClient, raidController string, reboot bool) (string, error) {
	properties := map[string]any{
		"Target":             raidController,
		"ScheduledStartTime": "TIME_NOW",
	}
	if reboot {
		properties["RebootJobType"] = 3
	}

	view, err := c.Invoke(ctx, raidServiceURI, "CreateTargetedConfigJob", nil, properties, 4096)
	if err != nil {
		return "", err
	}

	for _, sel := range view.FindAll("Selector") {
		if sel.Attr("Name") == "InstanceID" {
			return sel.TextOr(""), nil
		}
	}
	return "", &dracerr.OperationFailed{Message: "CreateTargetedConfigJob response carries no InstanceID selector"}
}

// DeletePendingConfig discards a controller's staged pending edits.
func DeletePendingConfig(ctx context.Context, c WSManClient, raidController string) error {
	_, err := c.Invoke(ctx, raidServiceURI, "DeletePendingConfiguration", map[string]string{"Target": raidController}, nil, 0)
	return err
}

// CreateConfiguration runs the declarative planner against
// node.extra["target_raid_configuration"]. Planning failures that indicate
// a RAC-side problem (ClientError, OperationFailed) put the node into
// maintenance with last_error recorded before the error is returned to the
// caller.
func CreateConfiguration(ctx context.Context, c WSManClient, lockMgr node.LockManager, handle node.Handle, createRootVolume, createNonRootVolumes, reboot bool) error {
	err := createConfiguration(ctx, c, lockMgr, handle, createRootVolume, createNonRootVolumes, reboot)
	if err == nil {
		return nil
	}

	var clientErr *dracerr.ClientError
	var opErr *dracerr.OperationFailed
	if errors.As(err, &clientErr) || errors.As(err, &opErr) {
		handle.SetMaintenance(true)
		handle.SetLastError(err.Error())
		if saveErr := handle.Save(ctx); saveErr != nil {
			log.Error().Err(saveErr).Str("node", handle.UUID()).Msg("failed to persist maintenance state after raid planning failure")
		}
	}
	return err
}

func createConfiguration(ctx context.Context, c WSManClient, lockMgr node.LockManager, handle node.Handle, createRootVolume, createNonRootVolumes, reboot bool) error {
	target, ok, err := parseTargetRAIDConfiguration(handle.Extra())
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Str("node", handle.UUID()).Msg("no target_raid_configuration on node, nothing to plan")
		return nil
	}

	var selected []LogicalDiskTarget
	var originalControllers []string
	for _, ld := range target.LogicalDisks {
		switch {
		case ld.IsRootVolume && createRootVolume:
			selected = append(selected, ld)
			originalControllers = append(originalControllers, ld.Controller)
		case !ld.IsRootVolume && createNonRootVolumes:
			selected = append(selected, ld)
			originalControllers = append(originalControllers, ld.Controller)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	lock, err := lockMgr.AcquireExclusive(ctx, handle.UUID())
	if err != nil {
		return err
	}
	defer lock.Release()

	physicalDisks, err := ListPhysicalDisks(ctx, c)
	if err != nil {
		return err
	}

	used := make(map[string]bool)
	for _, ld := range selected {
		for _, id := range ld.PhysicalDisks {
			used[id] = true
		}
	}

	resolved := make([]LogicalDiskTarget, len(selected))
	for i, ld := range selected {
		assigned, err := assignPhysicalDisks(ld, physicalDisks, used)
		if err != nil {
			return err
		}

		sizeMB := ld.SizeMB
		if sizeMB == 0 {
			// size_gb is kept as a fallback input even though size_mb is
			// the authoritative field once computed.
			sizeMB = ld.SizeGB * 1024
		}

		spanLength, spanDepth, err := CalculateSpans(ld.RAIDLevel, len(assigned))
		if err != nil {
			return err
		}

		next := ld
		next.PhysicalDisks = assigned
		next.SizeMB = sizeMB
		next.SpanLength = spanLength
		next.SpanDepth = spanDepth
		next.Controller = integratedControllerFQDD
		resolved[i] = next
	}

	for _, ld := range resolved {
		spanDepth, spanLength := ld.SpanDepth, ld.SpanLength
		if err := CreateVirtualDisk(ctx, c, CreateVirtualDiskRequest{
			RaidController: ld.Controller,
			PhysicalDisks:  ld.PhysicalDisks,
			SizeMB:         ld.SizeMB,
			RaidLevel:      ld.RAIDLevel,
			DiskName:       ld.DiskName,
			SpanDepth:      &spanDepth,
			SpanLength:     &spanLength,
		}); err != nil {
			return err
		}
	}

	var controllers []string
	seen := make(map[string]bool)
	for _, ctl := range originalControllers {
		if !seen[ctl] {
			seen[ctl] = true
			controllers = append(controllers, ctl)
		}
	}

	info := handle.DriverInternalInfo()
	existingIDs, _ := info["raid_config_job_ids"].([]string)
	jobIDs := append([]string(nil), existingIDs...)

	for i, controller := range controllers {
		isLast := i == len(controllers)-1
		jobID, err := ApplyPendingConfig(ctx, c, controller, reboot && isLast)
		if err != nil {
			return err
		}
		jobIDs = append(jobIDs, jobID)
	}

	next := make(map[string]any, len(info)+1)
	for k, v := range info {
		next[k] = v
	}
	next["raid_config_job_ids"] = jobIDs
	handle.SetDriverInternalInfo(next)
	return handle.Save(ctx)
}

// assignPhysicalDisks resolves a logical disk's physical_disks list:
// explicit assignments are used as-is; otherwise the first
// number_of_physical_disks unused, ready, controller-matching disks
// (filtered further by interface/disk type when specified) are selected.
func assignPhysicalDisks(ld LogicalDiskTarget, inventory []PhysicalDisk, used map[string]bool) ([]string, error) {
	if len(ld.PhysicalDisks) > 0 {
		return ld.PhysicalDisks, nil
	}

	need := ld.NumberOfPhysicalDisks
	var candidates []string
	for _, pd := range inventory {
		if len(candidates) == need {
			break
		}
		if used[pd.ID] {
			continue
		}
		if pd.RAIDState != RAIDStateReady {
			continue
		}
		if pd.Controller != ld.Controller {
			continue
		}
		if ld.InterfaceType != nil && pd.InterfaceType != *ld.InterfaceType {
			continue
		}
		if ld.DiskType != nil && pd.DiskType != *ld.DiskType {
			continue
		}
		candidates = append(candidates, pd.ID)
	}

	if len(candidates) < need {
		return nil, &dracerr.InvalidRaidConfiguration{
			Reason: fmt.Sprintf("controller %s: need %d eligible physical disks, found %d", ld.Controller, need, len(candidates)),
		}
	}

	for _, id := range candidates {
		used[id] = true
	}
	return candidates, nil
}

// parseTargetRAIDConfiguration decodes node.extra["target_raid_configuration"].
// The conductor hands driver extras through as a generic map[string]any
// (typically unmarshaled from JSON), so both that shape and a pre-built
// *TargetRAIDConfiguration (used directly in tests) are accepted.
func parseTargetRAIDConfiguration(extra map[string]any) (*TargetRAIDConfiguration, bool, error) {
	raw, ok := extra["target_raid_configuration"]
	if !ok || raw == nil {
		return nil, false, nil
	}

	if cfg, ok := raw.(*TargetRAIDConfiguration); ok {
		return cfg, true, nil
	}
	if cfg, ok := raw.(TargetRAIDConfiguration); ok {
		return &cfg, true, nil
	}

	asMap, ok := raw.(map[string]any)
	if !ok {
		return nil, false, &dracerr.InvalidRaidConfiguration{Reason: "target_raid_configuration has an unrecognized shape"}
	}

	rawDisks, _ := asMap["logical_disks"].([]any)
	cfg := &TargetRAIDConfiguration{LogicalDisks: make([]LogicalDiskTarget, 0, len(rawDisks))}
	for _, rd := range rawDisks {
		m, ok := rd.(map[string]any)
		if !ok {
			continue
		}
		cfg.LogicalDisks = append(cfg.LogicalDisks, logicalDiskTargetFromMap(m))
	}
	return cfg, true, nil
}

func logicalDiskTargetFromMap(m map[string]any) LogicalDiskTarget {
	ld := LogicalDiskTarget{
		Controller:            stringField(m, "controller"),
		SizeGB:                intField(m, "size_gb"),
		SizeMB:                intField(m, "size_mb"),
		RAIDLevel:             stringField(m, "raid_level"),
		NumberOfPhysicalDisks: intField(m, "number_of_physical_disks"),
		VolumeName:            stringField(m, "volume_name"),
		IsRootVolume:          boolField(m, "is_root_volume"),
		DiskName:              stringField(m, "disk_name"),
	}

	if raw, ok := m["physical_disks"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ld.PhysicalDisks = append(ld.PhysicalDisks, s)
			}
		}
	}
	if s := stringField(m, "disk_type"); s != "" {
		dt := DiskType(s)
		ld.DiskType = &dt
	}
	if s := stringField(m, "interface_type"); s != "" {
		it := InterfaceType(s)
		ld.InterfaceType = &it
	}
	return ld
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func boolField(m map[string]any, key string) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return false
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
