// Package config loads process configuration: environment-variable driven,
// with sane defaults, no external config service required.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config is dracd's process configuration.
type Config struct {
	// QueryRaidJobStatusInterval is how often the reconciler sweeps
	// outstanding RAID configuration jobs. Env DRACD_RAID_JOB_POLL_INTERVAL.
	QueryRaidJobStatusInterval time.Duration

	// ListenAddr is the vendor-passthru HTTP surface's bind address.
	ListenAddr string

	// MetricsAddr is the Prometheus /metrics bind address.
	MetricsAddr string

	// WSManTimeout bounds a single WS-MAN Enumerate/Invoke round trip.
	WSManTimeout time.Duration

	// WSManInsecureSkipVerify skips TLS verification against the RAC's
	// certificate. DRAC endpoints almost universally present self-signed
	// certificates, so this defaults to true for lab/default deployments.
	WSManInsecureSkipVerify bool

	// ReconcilerWorkers bounds the reconciler's per-tick worker pool.
	ReconcilerWorkers int
}

const (
	defaultQueryRaidJobStatusInterval = 120 * time.Second
	defaultListenAddr                 = ":6385"
	defaultMetricsAddr                = ":9105"
	defaultWSManTimeout                = 60 * time.Second
	defaultReconcilerWorkers          = 8
)

// Load builds a Config from defaults overridden by environment variables.
// Unlike a file-backed loader, there is no config file to fail to parse:
// a malformed env var is logged and ignored, falling back to the default.
func Load() *Config {
	cfg := &Config{
		QueryRaidJobStatusInterval: defaultQueryRaidJobStatusInterval,
		ListenAddr:                 defaultListenAddr,
		MetricsAddr:                defaultMetricsAddr,
		WSManTimeout:               defaultWSManTimeout,
		WSManInsecureSkipVerify:    true,
		ReconcilerWorkers:          defaultReconcilerWorkers,
	}

	if v := envTrim("DRACD_RAID_JOB_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			log.Warn().Str("value", v).Err(err).Msg("invalid DRACD_RAID_JOB_POLL_INTERVAL, using default")
		} else if d <= 0 {
			log.Warn().Dur("value", d).Msg("DRACD_RAID_JOB_POLL_INTERVAL must be positive, using default")
		} else {
			cfg.QueryRaidJobStatusInterval = d
		}
	}

	if v := envTrim("DRACD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v := envTrim("DRACD_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if v := envTrim("DRACD_WSMAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			log.Warn().Str("value", v).Err(err).Msg("invalid DRACD_WSMAN_TIMEOUT, using default")
		} else if d <= 0 {
			log.Warn().Dur("value", d).Msg("DRACD_WSMAN_TIMEOUT must be positive, using default")
		} else {
			cfg.WSManTimeout = d
		}
	}

	if v := envTrim("DRACD_WSMAN_INSECURE_SKIP_VERIFY"); v != "" {
		parsed, err := parseBool(v)
		if err != nil {
			log.Warn().Str("value", v).Err(err).Msg("invalid DRACD_WSMAN_INSECURE_SKIP_VERIFY, using default")
		} else {
			cfg.WSManInsecureSkipVerify = parsed
		}
	}

	if v := envTrim("DRACD_RECONCILER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Warn().Str("value", v).Msg("invalid DRACD_RECONCILER_WORKERS, using default")
		} else {
			cfg.ReconcilerWorkers = n
		}
	}

	log.Info().
		Dur("query_raid_job_status_interval", cfg.QueryRaidJobStatusInterval).
		Str("listen_addr", cfg.ListenAddr).
		Str("metrics_addr", cfg.MetricsAddr).
		Dur("wsman_timeout", cfg.WSManTimeout).
		Bool("wsman_insecure_skip_verify", cfg.WSManInsecureSkipVerify).
		Int("reconciler_workers", cfg.ReconcilerWorkers).
		Msg("configuration loaded")

	return cfg
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", raw)
	}
}

func envTrim(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
