package dracerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ClientError{Op: "enumerate", Cause: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "enumerate")
	require.Contains(t, err.Error(), "connection refused")
}

func TestInvalidParameterValueAccumulates(t *testing.T) {
	var ipv InvalidParameterValue
	require.Nil(t, ipv.ErrIfAny())

	ipv.Add("missing key %s", "raid_controller")
	ipv.Add("bad value for %s", "size_mb")

	err := ipv.ErrIfAny()
	require.Error(t, err)
	require.Contains(t, err.Error(), "raid_controller")
	require.Contains(t, err.Error(), "size_mb")
}

func TestPendingConfigJobExistsMessage(t *testing.T) {
	err := &PendingConfigJobExists{JobID: "JID_123", Target: "BIOS.Setup.1-1"}
	require.Equal(t, "config job JID_123 already targets BIOS.Setup.1-1", err.Error())
}
