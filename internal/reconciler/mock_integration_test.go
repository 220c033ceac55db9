package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dracd/internal/mock"
	"dracd/internal/node"
	"dracd/internal/raid"
)

// TestTickAgainstFakeRACEndToEnd drives the reconciler against the
// in-memory mock RAC rather than a hand-rolled per-test fakeClient,
// exercising the same create-virtual-disk -> apply -> poll -> complete
// sequence a real node would go through.
func TestTickAgainstFakeRACEndToEnd(t *testing.T) {
	ctx := context.Background()
	rac := mock.New()
	rac.SeedController("RAID.Integrated.1-1", "PERC H730")
	rac.SeedReadyPhysicalDisk("Disk.Bay.0", "RAID.Integrated.1-1", 500, raid.InterfaceSAS)
	rac.SeedReadyPhysicalDisk("Disk.Bay.1", "RAID.Integrated.1-1", 500, raid.InterfaceSAS)

	require.NoError(t, raid.CreateVirtualDisk(ctx, rac, raid.CreateVirtualDiskRequest{
		RaidController: "RAID.Integrated.1-1",
		PhysicalDisks:  []string{"Disk.Bay.0", "Disk.Bay.1"},
		SizeMB:         512000,
		RaidLevel:      "1",
	}))

	jobID, err := raid.ApplyPendingConfig(ctx, rac, "RAID.Integrated.1-1", true)
	require.NoError(t, err)

	handle := &fakeHandle{
		uuid:       "node-1",
		driverInfo: map[string]any{"raid_config_job_ids": []string{jobID}},
		properties: map[string]any{},
	}
	lister := fakeLister{
		summaries: []node.Summary{{UUID: "node-1", DriverName: "idrac", RAIDConfigJobIDs: []string{jobID}}},
		handles:   map[string]*fakeHandle{"node-1": handle},
	}

	r := New(Config{}, lister, fakeLockManager{}, func(node.Credentials) Client { return rac }, nil)

	r.Tick(ctx)
	ids, _ := handle.driverInfo["raid_config_job_ids"].([]string)
	require.Equal(t, []string{jobID}, ids, "job still Scheduled, reconciler should leave it")

	rac.AdvanceJob(jobID, "Completed", "")
	r.Tick(ctx)

	ids, _ = handle.driverInfo["raid_config_job_ids"].([]string)
	require.Empty(t, ids)
	disks, ok := handle.properties["logical_disks"].([]raid.VirtualDisk)
	require.True(t, ok)
	require.Len(t, disks, 1)
}
