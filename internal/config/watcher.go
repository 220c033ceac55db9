package config

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Watcher reloads a subset of Config from an env file on change. It is
// intentionally simple: dracd has no multi-writer config file to protect
// against, just an optional dracd.env an operator may edit in place.
//
// A reloaded poll interval is written to the shared Config only; a
// reconciler that was already constructed from that Config keeps the
// interval it started with. The log level takes effect immediately.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	cfg     *Config
	stopped chan struct{}
}

// NewWatcher starts watching path for writes. path may not exist yet; the
// watcher tolerates a missing file and simply never fires.
func NewWatcher(path string, cfg *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := dirOf(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{path: path, fsw: fsw, cfg: cfg, stopped: make(chan struct{})}, nil
}

// Run blocks, applying reloads as they arrive, until Stop is called.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path || !(ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher: fsnotify error")
		case <-w.stopped:
			return
		}
	}
}

// Stop tears down the underlying fsnotify watch.
func (w *Watcher) Stop() {
	close(w.stopped)
	w.fsw.Close()
}

func (w *Watcher) reload() {
	f, err := os.Open(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("config watcher: failed to open env file")
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "DRACD_RAID_JOB_POLL_INTERVAL":
			if d, err := time.ParseDuration(value); err == nil && d > 0 {
				w.cfg.QueryRaidJobStatusInterval = d
				log.Info().Dur("value", d).Msg("config watcher: reloaded query_raid_job_status_interval")
			}
		case "DRACD_LOG_LEVEL":
			if lvl, err := zerolog.ParseLevel(value); err == nil {
				zerolog.SetGlobalLevel(lvl)
				log.Info().Str("value", value).Msg("config watcher: reloaded log level")
			}
		}
	}
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
