package bios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dracd/internal/dracerr"
	"dracd/internal/node"
	"dracd/internal/xmlview"
)

type fakeClient struct {
	enumerate func(ctx context.Context, resourceURI, filter string) (xmlview.View, error)
	invoke    func(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error)
	invoked   []string
}

func (f *fakeClient) Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
	return f.enumerate(ctx, resourceURI, filter)
}

func (f *fakeClient) Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
	f.invoked = append(f.invoked, method)
	return f.invoke(ctx, resourceURI, method, selectors, properties, expectedReturn)
}

func emptyView(t *testing.T) xmlview.View {
	t.Helper()
	v, err := xmlview.Parse([]byte(`<Items></Items>`))
	require.NoError(t, err)
	return v
}

func TestGetConfigCollidingAttributesFails(t *testing.T) {
	item := func(name string) string {
		return `<Item><n1:AttributeName xmlns:n1="x">` + name + `</n1:AttributeName><n1:IsReadOnly xmlns:n1="x">false</n1:IsReadOnly></Item>`
	}

	c := &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			switch resourceURI {
			case biosEnumerationURI:
				return mustParse(t, `<Items>`+item("BootMode")+`</Items>`), nil
			case biosStringURI:
				return mustParse(t, `<Items>`+item("BootMode")+`</Items>`), nil
			default:
				return emptyView(t), nil
			}
		},
	}

	_, err := GetConfig(context.Background(), c)
	require.Error(t, err)
	var opFailed *dracerr.OperationFailed
	require.ErrorAs(t, err, &opFailed)
	require.Equal(t, "Colliding attributes", opFailed.Message)
}

func TestGetConfigMissingNameFails(t *testing.T) {
	c := &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			if resourceURI == biosEnumerationURI {
				return mustParse(t, `<Items><Item><n1:IsReadOnly xmlns:n1="x">false</n1:IsReadOnly></Item></Items>`), nil
			}
			return emptyView(t), nil
		},
	}

	_, err := GetConfig(context.Background(), c)
	require.Error(t, err)
	var opFailed *dracerr.OperationFailed
	require.ErrorAs(t, err, &opFailed)
	require.Equal(t, "Item has no name", opFailed.Message)
}

func mustParse(t *testing.T, xml string) xmlview.View {
	t.Helper()
	v, err := xmlview.Parse([]byte(xml))
	require.NoError(t, err)
	return v
}

type fakeLockManager struct{}

func (fakeLockManager) AcquireExclusive(ctx context.Context, uuid string) (node.Lock, error) {
	return fakeLock{}, nil
}
func (fakeLockManager) AcquireShared(ctx context.Context, uuid string) (node.Lock, error) {
	return fakeLock{}, nil
}

type fakeLock struct{}

func (fakeLock) Release() {}

type fakeHandle struct{ node.Handle }

func (fakeHandle) UUID() string { return "node-1" }

func enumerationClient(t *testing.T, currentValue, possibleValues string) *fakeClient {
	t.Helper()
	return &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			if resourceURI == biosEnumerationURI {
				xml := `<Items><Item>
					<n1:AttributeName xmlns:n1="x">BootMode</n1:AttributeName>
					<n1:CurrentValue xmlns:n1="x">` + currentValue + `</n1:CurrentValue>
					<n1:IsReadOnly xmlns:n1="x">false</n1:IsReadOnly>` + possibleValues + `
				</Item></Items>`
				return mustParse(t, xml), nil
			}
			if resourceURI == "DCIM_LifecycleJob" {
				return mustParse(t, `<Items></Items>`), nil
			}
			return emptyView(t), nil
		},
	}
}

func TestSetConfigDryRunReturnsFalseAndNoInvocation(t *testing.T) {
	c := enumerationClient(t, "Uefi", `<n1:PossibleValues xmlns:n1="x">Bios</n1:PossibleValues><n1:PossibleValues xmlns:n1="x">Uefi</n1:PossibleValues>`)

	reboot, err := SetConfig(context.Background(), c, fakeLockManager{}, fakeHandle{}, map[string]string{"BootMode": "Uefi"})
	require.NoError(t, err)
	require.False(t, reboot)
	require.Empty(t, c.invoked)
}

func TestSetConfigEnumRejectValueNotPossible(t *testing.T) {
	c := enumerationClient(t, "Uefi", `<n1:PossibleValues xmlns:n1="x">Bios</n1:PossibleValues><n1:PossibleValues xmlns:n1="x">Uefi</n1:PossibleValues>`)

	_, err := SetConfig(context.Background(), c, fakeLockManager{}, fakeHandle{}, map[string]string{"BootMode": "Legacy"})
	require.Error(t, err)
	var opFailed *dracerr.OperationFailed
	require.ErrorAs(t, err, &opFailed)
	require.Empty(t, c.invoked)
}

func TestSetConfigIssuesSetAttributesAndReportsReboot(t *testing.T) {
	c := enumerationClient(t, "Bios", `<n1:PossibleValues xmlns:n1="x">Bios</n1:PossibleValues><n1:PossibleValues xmlns:n1="x">Uefi</n1:PossibleValues>`)
	c.invoke = func(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
		return mustParse(t, `<Out><n1:RebootRequired xmlns:n1="x">Yes</n1:RebootRequired></Out>`), nil
	}

	reboot, err := SetConfig(context.Background(), c, fakeLockManager{}, fakeHandle{}, map[string]string{"BootMode": "Uefi"})
	require.NoError(t, err)
	require.True(t, reboot)
	require.Equal(t, []string{"SetAttributes"}, c.invoked)
}

func TestSetConfigGuardsAgainstPendingJob(t *testing.T) {
	c := &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			if resourceURI == "DCIM_LifecycleJob" {
				return mustParse(t, `<Items><Item>
					<n1:InstanceID xmlns:n1="x">JID_1</n1:InstanceID>
					<n1:Name xmlns:n1="x">BIOS.Setup.1-1</n1:Name>
					<n1:JobStatus xmlns:n1="x">Scheduled</n1:JobStatus>
				</Item></Items>`), nil
			}
			return emptyView(t), nil
		},
	}

	_, err := SetConfig(context.Background(), c, fakeLockManager{}, fakeHandle{}, map[string]string{"BootMode": "Uefi"})
	require.Error(t, err)
	var pending *dracerr.PendingConfigJobExists
	require.ErrorAs(t, err, &pending)
}

func TestCommitConfigCreatesTargetedJob(t *testing.T) {
	c := &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			return emptyView(t), nil
		},
		invoke: func(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
			require.Equal(t, "CreateTargetedConfigJob", method)
			require.Equal(t, 4096, expectedReturn)
			require.Equal(t, 3, properties["RebootJobType"])
			return mustParse(t, `<Out><wsman:Selector xmlns:wsman="x">JID_99</wsman:Selector></Out>`), nil
		},
	}

	jobID, err := CommitConfig(context.Background(), c, true)
	require.NoError(t, err)
	require.Equal(t, "JID_99", jobID)
}

func TestAbandonConfigInvokesDeletePendingConfiguration(t *testing.T) {
	c := &fakeClient{
		invoke: func(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error) {
			require.Equal(t, "DeletePendingConfiguration", method)
			require.Equal(t, Target, selectors["Target"])
			return mustParse(t, `<Out><n1:ReturnValue xmlns:n1="x">0</n1:ReturnValue></Out>`), nil
		},
	}

	err := AbandonConfig(context.Background(), c)
	require.NoError(t, err)
}

func TestAssetTagRegexWorkaroundSubstitutesMaxLength(t *testing.T) {
	c := &fakeClient{
		enumerate: func(ctx context.Context, resourceURI, filter string) (xmlview.View, error) {
			if resourceURI == biosStringURI {
				xml := `<Items><Item>
					<n1:AttributeName xmlns:n1="x">AssetTag</n1:AttributeName>
					<n1:IsReadOnly xmlns:n1="x">false</n1:IsReadOnly>
					<n1:MinLength xmlns:n1="x">0</n1:MinLength>
					<n1:MaxLength xmlns:n1="x">10</n1:MaxLength>
					<n1:ValueExpression xmlns:n1="x">^.{0,MAX_ASSET_TAG_LEN}$</n1:ValueExpression>
				</Item></Items>`
				return mustParse(t, xml), nil
			}
			return emptyView(t), nil
		},
	}

	attrs, err := GetConfig(context.Background(), c)
	require.NoError(t, err)
	attr := attrs["AssetTag"].(StringAttribute)
	require.NotNil(t, attr.Regex)
	require.Equal(t, "^.{0,10}$", *attr.Regex)
}
