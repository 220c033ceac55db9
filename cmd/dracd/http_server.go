package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"dracd/internal/config"
	"dracd/internal/node"
	"dracd/internal/vendorpassthru"
	"dracd/internal/wsman"
)

// vendorPassthruServer is the thin HTTP binding the vendorpassthru dispatch
// table sits behind. It owns only request/response plumbing: decoding a
// path into (node uuid, method), decoding args, and encoding whatever
// vendorpassthru.Dispatch returns. All method semantics live in
// internal/vendorpassthru and the packages it calls.
type vendorPassthruServer struct {
	store   *memStore
	lockMgr node.LockManager
	cfg     *config.Config
}

// newVendorPassthruMux wires the single route this surface exposes:
// /v1/nodes/{uuid}/passthru/{method}
func newVendorPassthruMux(store *memStore, cfg *config.Config) *http.ServeMux {
	srv := &vendorPassthruServer{store: store, lockMgr: store, cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/nodes/", srv.handle)
	return mux
}

func (s *vendorPassthruServer) handle(w http.ResponseWriter, r *http.Request) {
	uuid, method, ok := splitNodePassthruPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	handle, err := s.store.Get(r.Context(), uuid)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	args, err := decodeArgs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	client := wsman.NewClient(handle.Credentials(), wsman.ClientConfig{
		Timeout:            s.cfg.WSManTimeout,
		InsecureSkipVerify: s.cfg.WSManInsecureSkipVerify,
	})

	req := vendorpassthru.Request{
		Handle:  handle,
		Client:  client,
		LockMgr: s.lockMgr,
		Args:    args,
	}

	verb := vendorpassthru.Verb(r.Method)
	result, err := vendorpassthru.Dispatch(r.Context(), verb, method, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(result)
}

func splitNodePassthruPath(path string) (uuid, method string, ok bool) {
	const prefix = "/v1/nodes/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/passthru/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func decodeArgs(r *http.Request) (map[string]any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodDelete {
		args := make(map[string]any, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				args[k] = v[0]
			}
		}
		return args, nil
	}

	if r.Body == nil {
		return map[string]any{}, nil
	}
	defer r.Body.Close()

	var args map[string]any
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&args); err != nil {
		if err.Error() == "EOF" {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return args, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func startVendorPassthruServer(ctx context.Context, addr string, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("component", "vendor_passthru_server").Msg("failed to shut down cleanly")
		}
	}()

	go func() {
		log.Info().Str("component", "vendor_passthru_server").Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("component", "vendor_passthru_server").Msg("server stopped unexpectedly")
		}
	}()
}
