package vendorpassthru

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dracd/internal/dracerr"
)

func TestDispatchUnknownRouteIsOperationFailed(t *testing.T) {
	_, err := Dispatch(context.Background(), VerbGET, "no_such_method", Request{})
	var opErr *dracerr.OperationFailed
	require.ErrorAs(t, err, &opErr)
}

func TestDispatchVerbMismatchIsUnknownRoute(t *testing.T) {
	// list_raid_controllers is GET-only; POSTing to it should not resolve.
	_, err := Dispatch(context.Background(), VerbPOST, "list_raid_controllers", Request{})
	require.Error(t, err)
}

func TestEveryVendorPassthruRouteIsRegistered(t *testing.T) {
	routes := []route{
		{VerbGET, "get_bios_config"},
		{VerbPOST, "set_bios_config"},
		{VerbPOST, "commit_bios_config"},
		{VerbDELETE, "abandon_bios_config"},
		{VerbGET, "list_raid_controllers"},
		{VerbGET, "list_physical_disks"},
		{VerbGET, "list_virtual_disks"},
		{VerbPOST, "create_virtual_disk"},
		{VerbPOST, "delete_virtual_disk"},
		{VerbPOST, "apply_pending_raid_config"},
		{VerbPOST, "delete_pending_raid_config"},
		{VerbGET, "get_job"},
		{VerbGET, "list_unfinished_jobs"},
		{VerbPOST, "create_raid_configuration"},
	}
	for _, r := range routes {
		_, ok := table[r]
		require.Truef(t, ok, "missing route %s %s", r.verb, r.method)
	}
	require.Len(t, table, len(routes))
}

func TestCreateVirtualDiskHandlerValidatesRequiredArgs(t *testing.T) {
	_, err := handleCreateVirtualDisk(context.Background(), Request{Args: map[string]any{}})
	var ipv *dracerr.InvalidParameterValue
	require.ErrorAs(t, err, &ipv)
	require.GreaterOrEqual(t, len(ipv.Messages), 4)
}
