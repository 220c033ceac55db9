// Package job queries Lifecycle Controller jobs.
package job

import (
	"context"
	"strings"

	"dracd/internal/dracerr"
	"dracd/internal/wsman"
	"dracd/internal/xmlview"
)

const resourceURI = "DCIM_LifecycleJob"

// Lifecycle job states; terminalStates below marks the terminal ones.
// "CLEARALL" is a housekeeping job name, never a real target, and is always
// excluded from "unfinished" results.
const (
	StateScheduled         = "Scheduled"
	StateRunning           = "Running"
	StateRebootPending     = "Reboot Pending"
	StateRebootCompleted   = "Reboot Completed"
	StateCompleted         = "Completed"
	StateCompletedWithErrs = "Completed with Errors"
	StateFailed            = "Failed"

	clearAllJobName = "CLEARALL"
)

var terminalStates = map[string]bool{
	StateRebootCompleted:   true,
	StateCompleted:         true,
	StateCompletedWithErrs: true,
	StateFailed:            true,
}

// Job is a Lifecycle Controller job record.
type Job struct {
	ID              string
	Name            string
	State           string
	Message         string
	PercentComplete int
	StartTime       string
	UntilTime       string
}

// Unfinished reports whether the job is still in progress: its state is not
// terminal and its name is not the CLEARALL housekeeping entry.
func (j Job) Unfinished() bool {
	if j.Name == clearAllJobName {
		return false
	}
	return !terminalStates[j.State]
}

// Summary is the reduced projection returned by ListUnfinished.
type Summary struct {
	ID              string
	Name            string
	PercentComplete int
}

// Enumerator is the subset of wsman.Client this package needs; it lets
// callers inject the transport for tests and keeps this package decoupled
// from the wsman package's construction details.
type Enumerator interface {
	Enumerate(ctx context.Context, resourceURI, filter string) (xmlview.View, error)
}

func parseJob(item xmlview.View) Job {
	return Job{
		ID:              item.Find("InstanceID").TextOr(""),
		Name:            item.Find("Name").TextOr(""),
		State:           item.Find("JobStatus").TextOr(""),
		Message:         item.Find("Message").TextOr(""),
		PercentComplete: atoiOrZero(item.Find("PercentComplete").TextOr("")),
		StartTime:       item.Find("JobStartTime").TextOr(""),
		UntilTime:       item.Find("JobUntilTime").TextOr(""),
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Get queries a single job by instance id. Missing jobs fail with
// LifecycleJobNotFound.
func Get(ctx context.Context, c Enumerator, jobID string) (Job, error) {
	filter := "select * from DCIM_LifecycleJob where InstanceID = '" + jobID + "'"
	view, err := c.Enumerate(ctx, resourceURI, filter)
	if err != nil {
		return Job{}, err
	}

	items := view.FindAll("Item")
	if len(items) == 0 {
		return Job{}, &dracerr.LifecycleJobNotFound{JobID: jobID}
	}

	return parseJob(items[0]), nil
}

// ListUnfinished enumerates every job whose state is not terminal and whose
// name is not CLEARALL, returning the reduced Summary projection.
func ListUnfinished(ctx context.Context, c Enumerator) ([]Summary, error) {
	view, err := c.Enumerate(ctx, resourceURI, "")
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, item := range view.FindAll("Item") {
		j := parseJob(item)
		if j.Unfinished() {
			out = append(out, Summary{ID: j.ID, Name: j.Name, PercentComplete: j.PercentComplete})
		}
	}
	return out, nil
}

// CheckForConfigJob enumerates every lifecycle job and fails with
// PendingConfigJobExists if any job whose Name contains targetSubstring is
// not yet resolved (JobStatus.lower() not in {completed, failed}). It is
// shared by the BIOS attribute manager (target "BIOS.Setup.1-1") and
// boot-device management (same target, since boot order changes are
// themselves BIOS.Setup.1-1 jobs).
func CheckForConfigJob(ctx context.Context, c Enumerator, targetSubstring string) error {
	view, err := c.Enumerate(ctx, resourceURI, "")
	if err != nil {
		return err
	}

	for _, item := range view.FindAll("Item") {
		j := parseJob(item)
		if !wsman.MatchesLike(j.Name, "*"+targetSubstring+"*") {
			continue
		}
		if !StatusResolved(j.State) {
			return &dracerr.PendingConfigJobExists{JobID: j.ID, Target: targetSubstring}
		}
	}
	return nil
}

// StatusResolved reports whether the lowercased JobStatus text is one of the
// states CheckForConfigJob treats as resolved: a pending job guard only
// trips for jobs whose status is neither "completed" nor "failed", using a
// case-insensitive comparison.
func StatusResolved(status string) bool {
	lower := strings.ToLower(status)
	return lower == "completed" || lower == "failed"
}
