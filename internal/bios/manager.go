package bios

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"dracd/internal/dracerr"
	"dracd/internal/job"
	"dracd/internal/node"
	"dracd/internal/xmlview"
)

const (
	biosEnumerationURI = "DCIM_BIOSEnumeration"
	biosStringURI       = "DCIM_BIOSString"
	biosIntegerURI      = "DCIM_BIOSInteger"
	biosServiceURI      = "DCIM_BIOSService"

	// Target is the lifecycle-controller target name for every BIOS
	// config job, and the string check_for_config_job searches for.
	Target = "BIOS.Setup.1-1"

	assetTagAttrName   = "AssetTag"
	assetTagLenLiteral = "MAX_ASSET_TAG_LEN"
)

// WSManClient is the subset of wsman.Client the bios package needs.
type WSManClient interface {
	Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error)
	Invoke(ctx context.Context, resourceURI, method string, selectors map[string]string, properties map[string]any, expectedReturn int) (xmlview.View, error)
}

func readOnlyFromText(s string) bool { return s == "true" }

func parseEnumerationItem(item xmlview.View) (EnumerationAttribute, error) {
	name := item.Find("AttributeName").TextOr("")
	if name == "" {
		return EnumerationAttribute{}, &dracerr.OperationFailed{Message: "Item has no name"}
	}

	var possible []string
	for _, pv := range item.FindAll("PossibleValues") {
		if t := pv.Text(); t != nil {
			possible = append(possible, *t)
		}
	}

	return EnumerationAttribute{
		Header: Header{
			Name:         name,
			CurrentValue: valueOrNil(item.Find("CurrentValue")),
			PendingValue: valueOrNil(item.Find("PendingValue")),
			ReadOnly:     readOnlyFromText(item.Find("IsReadOnly").TextOr("")),
		},
		PossibleValues: sortStrings(possible),
	}, nil
}

func parseStringItem(item xmlview.View) (StringAttribute, error) {
	name := item.Find("AttributeName").TextOr("")
	if name == "" {
		return StringAttribute{}, &dracerr.OperationFailed{Message: "Item has no name"}
	}

	minLen := atoiOrZero(item.Find("MinLength").TextOr(""))
	maxLen := atoiOrZero(item.Find("MaxLength").TextOr(""))

	var regex *string
	if r := item.Find("ValueExpression").Text(); r != nil {
		pattern := *r
		// AssetTag's regex literally embeds the token MAX_ASSET_TAG_LEN;
		// substitute it with the numeric MaxLength before use, a
		// workaround for a firmware quirk.
		if name == assetTagAttrName && strings.Contains(pattern, assetTagLenLiteral) {
			pattern = strings.ReplaceAll(pattern, assetTagLenLiteral, fmt.Sprintf("%d", maxLen))
		}
		regex = &pattern
	}

	return StringAttribute{
		Header: Header{
			Name:         name,
			CurrentValue: valueOrNil(item.Find("CurrentValue")),
			PendingValue: valueOrNil(item.Find("PendingValue")),
			ReadOnly:     readOnlyFromText(item.Find("IsReadOnly").TextOr("")),
		},
		MinLength: minLen,
		MaxLength: maxLen,
		Regex:     regex,
	}, nil
}

func parseIntegerItem(item xmlview.View) (IntegerAttribute, error) {
	name := item.Find("AttributeName").TextOr("")
	if name == "" {
		return IntegerAttribute{}, &dracerr.OperationFailed{Message: "Item has no name"}
	}

	return IntegerAttribute{
		Header: Header{
			Name:         name,
			CurrentValue: intValueOrNil(item.Find("CurrentValue")),
			PendingValue: intValueOrNil(item.Find("PendingValue")),
			ReadOnly:     readOnlyFromText(item.Find("IsReadOnly").TextOr("")),
		},
		LowerBound: atoiOrZero(item.Find("LowerBound").TextOr("")),
		UpperBound: atoiOrZero(item.Find("UpperBound").TextOr("")),
	}, nil
}

func valueOrNil(v xmlview.View) Value {
	t := v.Text()
	if t == nil {
		return nil
	}
	return *t
}

func intValueOrNil(v xmlview.View) Value {
	t := v.Text()
	if t == nil {
		return nil
	}
	n, err := parseInt(*t)
	if err != nil {
		return *t
	}
	return n
}

func atoiOrZero(s string) int {
	n, err := parseInt(s)
	if err != nil {
		return 0
	}
	return n
}

// GetConfig issues three enumerations (enumeration, string, integer
// namespaces) and merges the results into a single name-keyed map,
// rejecting cross-namespace name collisions as a hard error.
func GetConfig(ctx context.Context, c WSManClient) (map[string]Attribute, error) {
	out := make(map[string]Attribute)

	if err := collect(ctx, c, biosEnumerationURI, out, func(item xmlview.View) (Attribute, error) {
		return parseEnumerationItem(item)
	}); err != nil {
		return nil, err
	}
	if err := collect(ctx, c, biosStringURI, out, func(item xmlview.View) (Attribute, error) {
		return parseStringItem(item)
	}); err != nil {
		return nil, err
	}
	if err := collect(ctx, c, biosIntegerURI, out, func(item xmlview.View) (Attribute, error) {
		return parseIntegerItem(item)
	}); err != nil {
		return nil, err
	}

	return out, nil
}

func collect(ctx context.Context, c WSManClient, resourceURI string, out map[string]Attribute, parse func(xmlview.View) (Attribute, error)) error {
	view, err := c.Enumerate(ctx, resourceURI, "")
	if err != nil {
		return err
	}

	for _, item := range view.FindAll("Item") {
		attr, err := parse(item)
		if err != nil {
			return err
		}
		name := Name(attr)
		if _, exists := out[name]; exists {
			return &dracerr.OperationFailed{Message: "Colliding attributes"}
		}
		out[name] = attr
	}
	return nil
}

// SetConfig stages pending values for the given name/value pairs and
// returns whether a reboot (lifecycle commit job) is required. It never
// issues SetAttributes when no settable attribute remains.
func SetConfig(ctx context.Context, c WSManClient, lockMgr node.LockManager, handle node.Handle, requested map[string]string) (bool, error) {
	lock, err := lockMgr.AcquireExclusive(ctx, handle.UUID())
	if err != nil {
		return false, err
	}
	defer lock.Release()

	if err := job.CheckForConfigJob(ctx, c, Target); err != nil {
		return false, err
	}

	current, err := GetConfig(ctx, c)
	if err != nil {
		return false, err
	}

	var invalidMessages []string
	var readOnlyNames []string
	names := make([]string, 0, len(requested))
	values := make([]string, 0, len(requested))

	for name, candidate := range requested {
		attr, known := current[name]
		if !known {
			log.Info().Str("component", "bios").Str("attribute", name).Msg("ignoring unknown attribute in set_config request")
			continue
		}

		if stringifyValue(CurrentValue(attr)) == candidate {
			continue // unchanged
		}

		if ReadOnly(attr) {
			readOnlyNames = append(readOnlyNames, name)
			continue
		}

		if ok, reason := attr.Validate(candidate); !ok {
			invalidMessages = append(invalidMessages, fmt.Sprintf("%s: %s", name, reason))
			continue
		}

		names = append(names, name)
		values = append(values, candidate)
	}

	if len(invalidMessages) > 0 {
		return false, &dracerr.OperationFailed{Message: fmt.Sprintf("invalid attribute values: %s", strings.Join(invalidMessages, "; "))}
	}

	if len(readOnlyNames) > 0 {
		return false, &dracerr.OperationFailed{Message: fmt.Sprintf("read-only attributes cannot be set: %s", strings.Join(readOnlyNames, ", "))}
	}

	if len(names) == 0 {
		return false, nil
	}

	view, err := c.Invoke(ctx, biosServiceURI, "SetAttributes", nil, map[string]any{
		"AttributeName":  names,
		"AttributeValue": values,
	}, 0)
	if err != nil {
		return false, err
	}

	for _, reboot := range view.FindAll("RebootRequired") {
		if reboot.TextOr("") == "Yes" {
			return true, nil
		}
	}
	return false, nil
}

func stringifyValue(v Value) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// CommitConfig guards against a conflicting pending job, then creates a
// targeted lifecycle-controller job to apply staged pending values.
func CommitConfig(ctx context.Context, c WSManClient, reboot bool) (string, error) {
	if err := job.CheckForConfigJob(ctx, c, Target); err != nil {
		return "", err
	}
	return CreateConfigJob(ctx, c, reboot)
}

// CreateConfigJob invokes CreateTargetedConfigJob against BIOS.Setup.1-1.
// It is exported because boot-device management creates the exact same
// kind of job after staging a boot-order change.
func CreateConfigJob(ctx context.Context, c WSManClient, reboot bool) (string, error) {
	properties := map[string]any{
		"Target":             Target,
		"ScheduledStartTime": "TIME_NOW",
	}
	if reboot {
		properties["RebootJobType"] = 3
	}

	view, err := c.Invoke(ctx, biosServiceURI, "CreateTargetedConfigJob", nil, properties, 4096)
	if err != nil {
		return "", err
	}
	return view.Find("Selector").TextOr(""), nil
}

// AbandonConfig deletes any staged pending BIOS configuration.
func AbandonConfig(ctx context.Context, c WSManClient) error {
	_, err := c.Invoke(ctx, biosServiceURI, "DeletePendingConfiguration", map[string]string{"Target": Target}, nil, 0)
	return err
}
