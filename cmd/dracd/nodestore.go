package main

import (
	"context"
	"sync"

	"dracd/internal/dracerr"
	"dracd/internal/node"
)

// memStore is a minimal in-process implementation of node.Lister and
// node.LockManager. In a real deployment these collaborators are owned by
// an external fleet-management conductor; memStore exists so this binary
// is runnable standalone, with nodes registered via AddNode instead of
// discovered from a fleet database.
type memStore struct {
	mu    sync.Mutex
	nodes map[string]*memHandle
	locks map[string]bool
}

func newMemStore() *memStore {
	return &memStore{nodes: make(map[string]*memHandle), locks: make(map[string]bool)}
}

// AddNode registers a node the store will serve. Safe to call at any time;
// typically used once at startup from a configuration file or environment.
func (s *memStore) AddNode(h *memHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[h.uuid] = h
}

func (s *memStore) ListUnreservedActive(ctx context.Context) ([]node.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]node.Summary, 0, len(s.nodes))
	for _, h := range s.nodes {
		h.mu.Lock()
		if h.reserved || h.maintenance {
			h.mu.Unlock()
			continue
		}
		ids, _ := h.driverInfo["raid_config_job_ids"].([]string)
		out = append(out, node.Summary{
			UUID:             h.uuid,
			DriverName:       h.driverName,
			RAIDConfigJobIDs: append([]string(nil), ids...),
			Reserved:         h.reserved,
			Maintenance:      h.maintenance,
		})
		h.mu.Unlock()
	}
	return out, nil
}

func (s *memStore) Get(ctx context.Context, uuid string) (node.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.nodes[uuid]
	if !ok {
		return nil, &dracerr.NodeNotFound{UUID: uuid}
	}
	return h, nil
}

func (s *memStore) AcquireExclusive(ctx context.Context, uuid string) (node.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[uuid]; !ok {
		return nil, &dracerr.NodeNotFound{UUID: uuid}
	}
	if s.locks[uuid] {
		return nil, &dracerr.NodeLocked{UUID: uuid}
	}
	s.locks[uuid] = true
	return &memLock{store: s, uuid: uuid}, nil
}

// AcquireShared is treated identically to AcquireExclusive: this standalone
// store serves one request at a time per node, since it has no concept of
// read-only concurrent access.
func (s *memStore) AcquireShared(ctx context.Context, uuid string) (node.Lock, error) {
	return s.AcquireExclusive(ctx, uuid)
}

type memLock struct {
	store *memStore
	uuid  string
	once  sync.Once
}

func (l *memLock) Release() {
	l.once.Do(func() {
		l.store.mu.Lock()
		defer l.store.mu.Unlock()
		delete(l.store.locks, l.uuid)
	})
}

// memHandle is the in-process node.Handle backing memStore.
type memHandle struct {
	mu sync.Mutex

	uuid       string
	driverName string
	creds      node.Credentials
	properties map[string]any
	driverInfo map[string]any
	extra      map[string]any
	reserved   bool
	maintenance bool
	lastError  string
}

func newMemHandle(uuid, driverName string, creds node.Credentials) *memHandle {
	return &memHandle{
		uuid:       uuid,
		driverName: driverName,
		creds:      creds,
		properties: map[string]any{},
		driverInfo: map[string]any{},
		extra:      map[string]any{},
	}
}

func (h *memHandle) UUID() string                 { h.mu.Lock(); defer h.mu.Unlock(); return h.uuid }
func (h *memHandle) Credentials() node.Credentials { h.mu.Lock(); defer h.mu.Unlock(); return h.creds }
func (h *memHandle) DriverName() string           { h.mu.Lock(); defer h.mu.Unlock(); return h.driverName }

func (h *memHandle) Properties() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.properties
}

func (h *memHandle) SetProperties(m map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.properties = m
}

func (h *memHandle) DriverInternalInfo() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.driverInfo
}

func (h *memHandle) SetDriverInternalInfo(m map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.driverInfo = m
}

func (h *memHandle) Extra() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.extra
}

func (h *memHandle) Maintenance() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maintenance
}

func (h *memHandle) SetMaintenance(b bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maintenance = b
}

func (h *memHandle) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

func (h *memHandle) SetLastError(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = s
}

// Save is a no-op beyond what the setters already did: this store's
// "persistence" is simply the in-memory struct itself.
func (h *memHandle) Save(ctx context.Context) error { return nil }
