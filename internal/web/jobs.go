package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/handler"
	"github.com/JonMunkholm/chunkjob/internal/logging"
	"github.com/JonMunkholm/chunkjob/internal/schema"
	"github.com/JonMunkholm/chunkjob/internal/web/templates"
)

// maxJSONBody bounds create requests.
const maxJSONBody = 1 << 20

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Operation string       `json:"operation"`
	Options   core.Options `json:"options"`
}

// respondSnapshot writes s as JSON, or as a progress fragment for HTMX.
func respondSnapshot(w http.ResponseWriter, r *http.Request, status int, s core.Snapshot) {
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.JobProgress(s, isExport(s.Operation)).Render(r.Context(), w)
		return
	}
	writeJSON(w, status, s)
}

// isExport reports whether operation writes a downloadable file.
func isExport(operation string) bool {
	return strings.HasPrefix(operation, handler.OpExport+".")
}

// resolvePaths confines file paths to the configured directories. Export
// files go to the export dir, under a generated name when none is given;
// import files must already be in the import dir.
func (s *Server) resolvePaths(operation string, opts core.Options) (core.Options, error) {
	kind, entity, ok := strings.Cut(operation, ".")
	if !ok {
		return opts, nil
	}
	opts.Entity = entity

	var dir string
	switch kind {
	case handler.OpExport:
		dir = s.cfg.Jobs.ExportDir
		if opts.Path == "" {
			opts.Path = uuid.NewString() + ".csv"
		}
	case handler.OpImport:
		dir = s.cfg.Jobs.ImportDir
		if opts.Path == "" {
			return opts, nil
		}
	default:
		opts.Path = ""
		return opts, nil
	}

	name := filepath.Base(opts.Path)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return opts, fmt.Errorf("%w: invalid file name %q", core.ErrInvalidOptions, opts.Path)
	}
	opts.Path = filepath.Join(dir, name)
	return opts, nil
}

// handleCreateJob creates a job. The client then drives it with step calls.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErrorStatus(w, r, fmt.Errorf("%w: decode request: %v", core.ErrInvalidOptions, err), http.StatusBadRequest)
		return
	}

	opts, err := s.resolvePaths(req.Operation, req.Options)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.disp.Create(r.Context(), req.Operation, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondSnapshot(w, r, http.StatusCreated, snap)
}

// handleStep advances the job by one chunk.
// 404 means the job is gone and the client should stop; 409 means another
// step is in flight and the client should retry after Retry-After.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.disp.Step(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondSnapshot(w, r, http.StatusOK, snap)
}

// handleJobStatus returns the snapshot without advancing the job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.disp.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondSnapshot(w, r, http.StatusOK, snap)
}

// handleCancel deletes the job record.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.disp.Cancel(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

func (s *Server) handleOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"operations": s.disp.Registry().Operations(),
	})
}

// EntityInfo describes an entity for clients building import mappings.
type EntityInfo struct {
	Name   string   `json:"name"`
	Key    string   `json:"key"`
	Fields []string `json:"fields"`
}

func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request) {
	var out []EntityInfo
	for _, e := range schema.Entities() {
		info := EntityInfo{Name: e.Name, Key: e.Key}
		for _, f := range e.Fields {
			info.Fields = append(info.Fields, schema.Describe(f))
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string][]EntityInfo{"entities": out})
}

// handleImportUpload stores an uploaded CSV in the import dir and creates
// the import job for it. Form fields: file (required), limit, delimiter and
// fields (JSON list of {header, field}).
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	e, ok := schema.Lookup(chi.URLParam(r, "entity"))
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: import.%s", core.ErrUnknownOperation, chi.URLParam(r, "entity")))
		return
	}

	maxSize := s.cfg.Jobs.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = fmt.Errorf("file too large: limit is %d bytes", maxSize)
		}
		s.respondErrorStatus(w, r, fmt.Errorf("%w: %v", core.ErrInvalidOptions, err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondErrorStatus(w, r, fmt.Errorf("%w: no file provided", core.ErrInvalidOptions), http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts := core.Options{Entity: e.Name, Delimiter: r.FormValue("delimiter")}
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondErrorStatus(w, r, fmt.Errorf("%w: limit %q is not a number", core.ErrInvalidOptions, v), http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	if v := r.FormValue("fields"); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.Fields); err != nil {
			s.respondErrorStatus(w, r, fmt.Errorf("%w: invalid fields: %v", core.ErrInvalidOptions, err), http.StatusBadRequest)
			return
		}
	}

	path, err := s.saveUpload(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("save upload: %w", err))
		return
	}
	opts.Path = path

	snap, err := s.disp.Create(r.Context(), handler.Operation(handler.OpImport, e), opts)
	if err != nil {
		_ = os.Remove(path)
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", snap.ID, "file", header.Filename).
		Info("import uploaded", "bytes", header.Size, "total", snap.Total)
	respondSnapshot(w, r, http.StatusCreated, snap)
}

func (s *Server) saveUpload(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.Jobs.ImportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.Jobs.ImportDir, uuid.NewString()+".csv")
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

// handleDownload serves the file of a finished export job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.disp.Job(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !isExport(job.Operation) {
		s.respondError(w, r, fmt.Errorf("%w: job %s is not an export", core.ErrInvalidOptions, id))
		return
	}
	if job.Status != core.StatusDone {
		s.respondError(w, r, fmt.Errorf("%w: export is %s", core.ErrNotReady, job.Status))
		return
	}

	f, err := os.Open(job.Data.Path)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	name := filepath.Base(job.Data.Path)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
