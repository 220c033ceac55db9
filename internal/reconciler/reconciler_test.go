package reconciler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"dracd/internal/dracerr"
	"dracd/internal/node"
	"dracd/internal/xmlview"
)

type fakeClient struct {
	jobView xmlview.View
	vdView  xmlview.View
}

func (c fakeClient) Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
	if resourceURI == "DCIM_VirtualDiskView" {
		return c.vdView, nil
	}
	return c.jobView, nil
}

func (c fakeClient) Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
	panic("reconciler never invokes mutating WS-MAN calls")
}

func mustParse(t *testing.T, xml string) xmlview.View {
	t.Helper()
	v, err := xmlview.Parse([]byte(xml))
	require.NoError(t, err)
	return v
}

type fakeHandle struct {
	uuid        string
	creds       node.Credentials
	properties  map[string]any
	driverInfo  map[string]any
	maintenance bool
	lastError   string
	saved       int
}

func (h *fakeHandle) UUID() string                         { return h.uuid }
func (h *fakeHandle) Credentials() node.Credentials         { return h.creds }
func (h *fakeHandle) Properties() map[string]any            { return h.properties }
func (h *fakeHandle) SetProperties(m map[string]any)        { h.properties = m }
func (h *fakeHandle) DriverInternalInfo() map[string]any    { return h.driverInfo }
func (h *fakeHandle) SetDriverInternalInfo(m map[string]any) { h.driverInfo = m }
func (h *fakeHandle) Extra() map[string]any                 { return nil }
func (h *fakeHandle) Maintenance() bool                     { return h.maintenance }
func (h *fakeHandle) SetMaintenance(b bool)                 { h.maintenance = b }
func (h *fakeHandle) LastError() string                     { return h.lastError }
func (h *fakeHandle) SetLastError(s string)                 { h.lastError = s }
func (h *fakeHandle) DriverName() string                    { return "idrac" }
func (h *fakeHandle) Save(ctx context.Context) error         { h.saved++; return nil }

type fakeLister struct {
	summaries []node.Summary
	handles   map[string]*fakeHandle
}

func (l fakeLister) ListUnreservedActive(ctx context.Context) ([]node.Summary, error) {
	return l.summaries, nil
}

func (l fakeLister) Get(ctx context.Context, uuid string) (node.Handle, error) {
	return l.handles[uuid], nil
}

type fakeLockManager struct {
	deny map[string]error
}

func (m fakeLockManager) AcquireExclusive(ctx context.Context, uuid string) (node.Lock, error) {
	if err, blocked := m.deny[uuid]; blocked {
		return nil, err
	}
	return fakeLock{}, nil
}

func (m fakeLockManager) AcquireShared(ctx context.Context, uuid string) (node.Lock, error) {
	return fakeLock{}, nil
}

type fakeLock struct{}

func (fakeLock) Release() {}

func TestTickCompletedJobRemovesIDAndRefreshesInventory(t *testing.T) {
	handle := &fakeHandle{
		uuid:       "node-1",
		driverInfo: map[string]any{"raid_config_job_ids": []string{"JID_1"}},
		properties: map[string]any{},
	}
	lister := fakeLister{
		summaries: []node.Summary{{UUID: "node-1", DriverName: "idrac", RAIDConfigJobIDs: []string{"JID_1"}}},
		handles:   map[string]*fakeHandle{"node-1": handle},
	}

	client := fakeClient{
		jobView: mustParse(t, `<Items><Item>
			<n1:InstanceID xmlns:n1="x">JID_1</n1:InstanceID>
			<n1:JobStatus xmlns:n1="x">Completed</n1:JobStatus>
		</Item></Items>`),
		vdView: mustParse(t, `<Items><Item>
			<n1:FQDD xmlns:n1="x">Disk.Virtual.0:RAID.Integrated.1-1</n1:FQDD>
			<n1:SizeInBytes xmlns:n1="x">0</n1:SizeInBytes>
			<n1:RAIDTypes xmlns:n1="x">4</n1:RAIDTypes>
		</Item></Items>`),
	}

	r := New(Config{}, lister, fakeLockManager{}, func(node.Credentials) Client { return client }, nil)
	r.Tick(context.Background())

	ids, _ := handle.driverInfo["raid_config_job_ids"].([]string)
	require.Empty(t, ids)
	require.NotNil(t, handle.properties["logical_disks"])
	require.Equal(t, 1, handle.saved)
}

func TestTickFailedJobSetsMaintenanceAndKeepsID(t *testing.T) {
	handle := &fakeHandle{
		uuid:       "node-1",
		driverInfo: map[string]any{"raid_config_job_ids": []string{"JID_1"}},
	}
	lister := fakeLister{
		summaries: []node.Summary{{UUID: "node-1", DriverName: "idrac", RAIDConfigJobIDs: []string{"JID_1"}}},
		handles:   map[string]*fakeHandle{"node-1": handle},
	}

	client := fakeClient{
		jobView: mustParse(t, `<Items><Item>
			<n1:InstanceID xmlns:n1="x">JID_1</n1:InstanceID>
			<n1:JobStatus xmlns:n1="x">Failed</n1:JobStatus>
			<n1:Message xmlns:n1="x">disk not responding</n1:Message>
		</Item></Items>`),
	}

	r := New(Config{}, lister, fakeLockManager{}, func(node.Credentials) Client { return client }, nil)
	r.Tick(context.Background())

	require.True(t, handle.maintenance)
	require.Equal(t, "disk not responding", handle.lastError)

	ids, _ := handle.driverInfo["raid_config_job_ids"].([]string)
	require.Equal(t, []string{"JID_1"}, ids) // not removed, per the preserved quirk
	require.Equal(t, 1, handle.saved)
}

func TestTickSkipsNodeWhoseLockIsUnavailable(t *testing.T) {
	handle := &fakeHandle{
		uuid:       "node-1",
		driverInfo: map[string]any{"raid_config_job_ids": []string{"JID_1"}},
	}
	lister := fakeLister{
		summaries: []node.Summary{{UUID: "node-1", DriverName: "idrac", RAIDConfigJobIDs: []string{"JID_1"}}},
		handles:   map[string]*fakeHandle{"node-1": handle},
	}
	locks := fakeLockManager{deny: map[string]error{"node-1": &dracerr.NodeLocked{UUID: "node-1"}}}

	r := New(Config{}, lister, locks, func(node.Credentials) Client { return fakeClient{} }, nil)
	r.Tick(context.Background())

	require.Equal(t, 0, handle.saved)
	ids, _ := handle.driverInfo["raid_config_job_ids"].([]string)
	require.Equal(t, []string{"JID_1"}, ids)
}

func TestTickSkipsNodesNotOwnedByDriverPrefix(t *testing.T) {
	handle := &fakeHandle{uuid: "node-1", driverInfo: map[string]any{"raid_config_job_ids": []string{"JID_1"}}}
	lister := fakeLister{
		summaries: []node.Summary{{UUID: "node-1", DriverName: "other-vendor", RAIDConfigJobIDs: []string{"JID_1"}}},
		handles:   map[string]*fakeHandle{"node-1": handle},
	}

	r := New(Config{DriverNamePrefix: "idrac"}, lister, fakeLockManager{}, func(node.Credentials) Client { return fakeClient{} }, nil)
	r.Tick(context.Background())

	require.Equal(t, 0, handle.saved)
}

func TestMetricsRegisterWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)
	m.IncSkipped()
	m.IncOutcome("completed")
}
