package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dracd/internal/dracerr"
	"dracd/internal/xmlview"
)

type fakeEnumerator struct {
	view xmlview.View
	err  error
}

func (f fakeEnumerator) Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
	return f.view, f.err
}

func mustParse(t *testing.T, xml string) xmlview.View {
	t.Helper()
	v, err := xmlview.Parse([]byte(xml))
	require.NoError(t, err)
	return v
}

func TestGetFound(t *testing.T) {
	v := mustParse(t, `<Items><Item>
		<n1:InstanceID xmlns:n1="x">JID_123</n1:InstanceID>
		<n1:Name xmlns:n1="x">RAID.Integrated.1-1</n1:Name>
		<n1:JobStatus xmlns:n1="x">Completed</n1:JobStatus>
	</Item></Items>`)

	j, err := Get(context.Background(), fakeEnumerator{view: v}, "JID_123")
	require.NoError(t, err)
	require.Equal(t, "JID_123", j.ID)
	require.Equal(t, StateCompleted, j.State)
}

func TestGetNotFound(t *testing.T) {
	v := mustParse(t, `<Items></Items>`)

	_, err := Get(context.Background(), fakeEnumerator{view: v}, "JID_999")
	require.Error(t, err)
	var notFound *dracerr.LifecycleJobNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestListUnfinishedExcludesTerminalAndClearAll(t *testing.T) {
	v := mustParse(t, `<Items>
		<Item>
			<n1:InstanceID xmlns:n1="x">JID_1</n1:InstanceID>
			<n1:Name xmlns:n1="x">BIOS.Setup.1-1</n1:Name>
			<n1:JobStatus xmlns:n1="x">Running</n1:JobStatus>
		</Item>
		<Item>
			<n1:InstanceID xmlns:n1="x">JID_2</n1:InstanceID>
			<n1:Name xmlns:n1="x">RAID.Integrated.1-1</n1:Name>
			<n1:JobStatus xmlns:n1="x">Completed</n1:JobStatus>
		</Item>
		<Item>
			<n1:InstanceID xmlns:n1="x">JID_3</n1:InstanceID>
			<n1:Name xmlns:n1="x">CLEARALL</n1:Name>
			<n1:JobStatus xmlns:n1="x">Scheduled</n1:JobStatus>
		</Item>
	</Items>`)

	summaries, err := ListUnfinished(context.Background(), fakeEnumerator{view: v})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "JID_1", summaries[0].ID)
}

func TestCheckForConfigJobTripsOnUnresolvedMatch(t *testing.T) {
	v := mustParse(t, `<Items>
		<Item>
			<n1:InstanceID xmlns:n1="x">JID_7</n1:InstanceID>
			<n1:Name xmlns:n1="x">BIOS.Setup.1-1</n1:Name>
			<n1:JobStatus xmlns:n1="x">Scheduled</n1:JobStatus>
		</Item>
	</Items>`)

	err := CheckForConfigJob(context.Background(), fakeEnumerator{view: v}, "BIOS.Setup.1-1")
	require.Error(t, err)
	var pending *dracerr.PendingConfigJobExists
	require.ErrorAs(t, err, &pending)
	require.Equal(t, "JID_7", pending.JobID)
	require.Equal(t, "BIOS.Setup.1-1", pending.Target)
}

func TestCheckForConfigJobIgnoresResolvedMatch(t *testing.T) {
	v := mustParse(t, `<Items>
		<Item>
			<n1:InstanceID xmlns:n1="x">JID_8</n1:InstanceID>
			<n1:Name xmlns:n1="x">BIOS.Setup.1-1</n1:Name>
			<n1:JobStatus xmlns:n1="x">Completed</n1:JobStatus>
		</Item>
	</Items>`)

	err := CheckForConfigJob(context.Background(), fakeEnumerator{view: v}, "BIOS.Setup.1-1")
	require.NoError(t, err)
}

func TestStatusResolvedIsCaseInsensitive(t *testing.T) {
	require.True(t, StatusResolved("Completed"))
	require.True(t, StatusResolved("FAILED"))
	require.False(t, StatusResolved("Running"))
	require.False(t, StatusResolved("Reboot Pending"))
}
