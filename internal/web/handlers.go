package web

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rowforge/rowforge/internal/conversion"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/logging"
)

// maxDocumentBytes caps configuration document imports.
const maxDocumentBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImportConfiguration accepts a portable configuration document,
// validates it, and stores it as a new active configuration.
func (s *Server) handleImportConfiguration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read body: %w", err))
		return
	}

	doc, err := engine.ParseDocument(body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	orgID := organizationID(r)
	id, err := s.configs.Create(r.Context(), orgID, doc)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("configuration imported",
		"configuration_id", id,
		"organization_id", orgID,
		"rules", len(doc.Rules),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        id,
		"name":      doc.Name,
		"ruleCount": len(doc.Rules),
	})
}

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	list, err := s.configs.List(r.Context(), organizationID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configurations": list})
}

func (s *Server) handleExportConfiguration(w http.ResponseWriter, r *http.Request) {
	configID, err := uuid.Parse(chi.URLParam(r, "configID"))
	if err != nil {
		s.respondError(w, r, conversion.ErrConfigurationNotFound)
		return
	}

	doc, err := s.configs.Export(r.Context(), organizationID(r), configID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleConvert admits one conversion of the uploaded workbook against the
// named configuration. Small files without an async flag or callback run
// inline and return the CSV; everything else is queued and returns 202 with
// the pending job.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	configID, err := uuid.Parse(chi.URLParam(r, "configID"))
	if err != nil {
		s.respondError(w, r, conversion.ErrConfigurationNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Convert.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large or malformed form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, conversion.ErrNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	async, _ := strconv.ParseBool(r.FormValue("async"))
	req := conversion.Request{
		OrganizationID:  organizationID(r),
		ConfigurationID: configID,
		FileName:        header.Filename,
		FileData:        data,
		Async:           async,
		CallbackURL:     r.FormValue("callback_url"),
		UID:             r.FormValue("uid"),
	}

	result, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch result.Job.Status {
	case conversion.StatusPending:
		writeJSON(w, http.StatusAccepted, map[string]any{"job": result.Job})

	case conversion.StatusFailed:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"job": result.Job,
			"log": result.Log,
		})

	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"job": result.Job,
			"csv": result.CSV,
			"log": result.Log,
		})
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobForRequest(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, conversion.ErrJobNotFound)
		return
	}

	log, err := s.jobs.ExecutionLog(r.Context(), organizationID(r), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"log": log})
}

// handleJobDownload streams a completed job's CSV artifact. The output
// reference doubles as a time-limited token; expired references are gone,
// not retried.
func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobForRequest(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if job.Status != conversion.StatusCompleted || job.OutputRef == "" {
		writeError(w, http.StatusConflict, "job has no output; status is "+string(job.Status))
		return
	}

	csv, err := s.service.Download(r.Context(), organizationID(r), job.OutputRef)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.ID.String()+`.csv"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, csv)
}

func (s *Server) jobForRequest(r *http.Request) (*conversion.Job, error) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		return nil, conversion.ErrJobNotFound
	}
	return s.service.Job(r.Context(), organizationID(r), jobID)
}
