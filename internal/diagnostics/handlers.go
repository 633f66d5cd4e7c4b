package diagnostics

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kingrea/modpath/internal/module"
	"github.com/kingrea/modpath/internal/pathindex"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string   `json:"status"`
	LoaderState   string   `json:"loader_state"`
	Hooks         []string `json:"hooks"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

type skippedView struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type indexResponse struct {
	Directories []pathindex.Dir `json:"directories"`
	Skipped     []skippedView   `json:"skipped"`
	Extensions  []string        `json:"extensions"`
}

// ModuleView is the JSON shape of a loaded module.
type ModuleView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Mode     string    `json:"mode"`
	Version  string    `json:"version,omitempty"`
	Requires []string  `json:"requires,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

type cacheEntryView struct {
	Key    string     `json:"key"`
	Module ModuleView `json:"module"`
}

type resolveRequest struct {
	Name string `json:"name"`
}

// NewModuleView converts a handle for JSON output.
func NewModuleView(h *module.Handle) ModuleView {
	return ModuleView{
		ID:       h.ID.String(),
		Name:     h.Name,
		Path:     h.Path,
		Mode:     string(h.Mode),
		Version:  h.Manifest.Version,
		Requires: h.Manifest.Requires,
		LoadedAt: h.LoadedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        string(s.Status()),
		UptimeSeconds: s.uptimeSeconds(),
	}
	if s.source != nil {
		resp.LoaderState = s.source.State().String()
		resp.Hooks = s.source.Runtime().Hooks()
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireSource answers 503 for routes that read loader state when the
// server was built without a source.
func (s *Server) requireSource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.source == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no module loader attached"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.source.Metrics().Handler().ServeHTTP(w, r)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	r := s.source.Resolver()
	ix := r.Index()
	resp := indexResponse{
		Directories: ix.Dirs(),
		Skipped:     []skippedView{},
		Extensions:  r.Extensions(),
	}
	if resp.Directories == nil {
		resp.Directories = []pathindex.Dir{}
	}
	for _, sk := range ix.Skipped() {
		view := skippedView{Path: sk.Path}
		if sk.Err != nil {
			view.Error = sk.Err.Error()
		}
		resp.Skipped = append(resp.Skipped, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	entries := s.source.Resolver().Cache().Snapshot()
	views := make([]cacheEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, cacheEntryView{Key: entry.Name, Module: NewModuleView(entry.Handle)})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleModules(w http.ResponseWriter, _ *http.Request) {
	loaded := s.source.Runtime().Loaded()
	views := make([]ModuleView, 0, len(loaded))
	for _, h := range loaded {
		views = append(views, NewModuleView(h))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty body"})
		return
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return
	}
	var req resolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	h, err := s.source.LoadModuleByName(name)
	if err != nil {
		if errors.Is(err, module.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("diagnostics resolve failed", "name", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, NewModuleView(h))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
