// Package reconciler periodically polls outstanding RAID configuration jobs
// and transitions node state on completion or failure.
package reconciler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dracd/internal/dracerr"
	"dracd/internal/job"
	"dracd/internal/node"
	"dracd/internal/raid"
)

// WSManClientFactory builds a transport for a single node's credentials. The
// reconciler never holds a long-lived client: each tick, each node gets a
// fresh one scoped to that node's address.
type WSManClientFactory func(creds node.Credentials) Client

// Client is the subset of wsman.Client the reconciler and raid inventory
// need.
type Client interface {
	job.Enumerator
	raid.WSManClient
}

// Config controls the reconciler's tick cadence and fan-out width.
type Config struct {
	// Interval is how often the reconciler scans nodes. Defaults to 120s,
	// matching the job-status polling interval operators expect.
	Interval time.Duration

	// Workers bounds how many nodes are reconciled concurrently per tick.
	Workers int

	// DriverNamePrefix is compared against each node's driver name to
	// decide whether this reconciler owns it; nodes whose driver name
	// lacks the prefix are skipped. An empty prefix accepts every driver.
	DriverNamePrefix string
}

// Reconciler owns the periodic ticker that drives RAID job polling.
type Reconciler struct {
	cfg       Config
	lister    node.Lister
	lockMgr   node.LockManager
	newClient WSManClientFactory
	metrics   *Metrics
}

// New constructs a Reconciler. cfg.Interval and cfg.Workers are defaulted
// when zero.
func New(cfg Config, lister node.Lister, lockMgr node.LockManager, newClient WSManClientFactory, metrics *Metrics) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 120 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Reconciler{cfg: cfg, lister: lister, lockMgr: lockMgr, newClient: newClient, metrics: metrics}
}

// Run blocks until ctx is cancelled, firing Tick on cfg.Interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs a single reconciliation sweep across eligible nodes, fanning
// out across a bounded worker pool. Per-node errors are logged and do not
// abort the tick; only NodeLocked/NodeNotFound are expected and silent.
func (r *Reconciler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveTickDuration(time.Since(start))
		}
	}()

	summaries, err := r.lister.ListUnreservedActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciler: failed to list candidate nodes")
		return
	}

	eligible := make([]node.Summary, 0, len(summaries))
	for _, s := range summaries {
		if !r.ownsDriver(s.DriverName) {
			continue
		}
		if len(s.RAIDConfigJobIDs) == 0 {
			continue
		}
		eligible = append(eligible, s)
	}

	if len(eligible) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.Workers)

	for _, summary := range eligible {
		summary := summary
		group.Go(func() error {
			r.reconcileNode(groupCtx, summary)
			return nil
		})
	}
	_ = group.Wait() // per-node errors are handled and logged inside reconcileNode
}

func (r *Reconciler) ownsDriver(driverName string) bool {
	if r.cfg.DriverNamePrefix == "" {
		return true
	}
	return strings.HasPrefix(driverName, r.cfg.DriverNamePrefix)
}

func (r *Reconciler) reconcileNode(ctx context.Context, summary node.Summary) {
	lock, err := r.lockMgr.AcquireExclusive(ctx, summary.UUID)
	if err != nil {
		var locked *dracerr.NodeLocked
		var notFound *dracerr.NodeNotFound
		if errors.As(err, &locked) || errors.As(err, &notFound) {
			log.Info().Str("node", summary.UUID).Msg("reconciler: skipping node, lock unavailable")
			if r.metrics != nil {
				r.metrics.IncSkipped()
			}
			return
		}
		log.Error().Err(err).Str("node", summary.UUID).Msg("reconciler: failed to acquire lock")
		return
	}
	defer lock.Release()

	handle, err := r.lister.Get(ctx, summary.UUID)
	if err != nil {
		log.Error().Err(err).Str("node", summary.UUID).Msg("reconciler: failed to load node handle")
		return
	}

	client := r.newClient(handle.Credentials())

	jobIDs := handle.DriverInternalInfo()["raid_config_job_ids"]
	ids, _ := jobIDs.([]string)

	remaining := make([]string, 0, len(ids))
	dirty := false
	for _, jobID := range ids {
		j, err := job.Get(ctx, client, jobID)
		if err != nil {
			log.Error().Err(err).Str("node", summary.UUID).Str("job", jobID).Msg("reconciler: failed to query job")
			remaining = append(remaining, jobID)
			continue
		}

		switch j.State {
		case job.StateCompleted:
			r.onCompleted(ctx, handle, client, summary.UUID, jobID)
			dirty = true
			// id is dropped: not appended to remaining.
		case job.StateFailed:
			r.onFailed(handle, summary.UUID, jobID, j.Message)
			dirty = true
			// The id is NOT removed here, so the next tick re-observes
			// and re-logs the failure rather than silently dropping it.
			remaining = append(remaining, jobID)
		default:
			remaining = append(remaining, jobID)
		}
	}

	if !dirty {
		return
	}

	info := copyMap(handle.DriverInternalInfo())
	info["raid_config_job_ids"] = remaining
	handle.SetDriverInternalInfo(info)
	if err := handle.Save(ctx); err != nil {
		log.Error().Err(err).Str("node", summary.UUID).Msg("reconciler: failed to persist reconciled state")
	}
}

func (r *Reconciler) onCompleted(ctx context.Context, handle node.Handle, client raid.WSManClient, uuid, jobID string) {
	disks, err := raid.ListVirtualDisks(ctx, client)
	if err != nil {
		log.Error().Err(err).Str("node", uuid).Str("job", jobID).Msg("reconciler: failed to refresh logical disk inventory")
		if r.metrics != nil {
			r.metrics.IncOutcome("completed_refresh_failed")
		}
		return
	}

	props := copyMap(handle.Properties())
	props["logical_disks"] = disks
	handle.SetProperties(props)
	if r.metrics != nil {
		r.metrics.IncOutcome("completed")
	}
}

func (r *Reconciler) onFailed(handle node.Handle, uuid, jobID, message string) {
	handle.SetMaintenance(true)
	handle.SetLastError(message)
	log.Warn().Str("node", uuid).Str("job", jobID).Str("message", message).Msg("reconciler: raid job failed, node entering maintenance")
	if r.metrics != nil {
		r.metrics.IncOutcome("failed")
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

