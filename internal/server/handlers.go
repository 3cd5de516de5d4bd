package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentic-research/genframe/api"
	"github.com/agentic-research/genframe/internal/archive"
	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/report"
	"github.com/agentic-research/genframe/internal/views"
)

const uploadField = "file"

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, greeting) // client went away
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	a := &report.Assembler{Graph: s.Graph, Artifacts: s.Artifacts, Logger: s.logger()}
	rep, err := a.Assemble(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeUpstream, "Failed to generate report", err)
		return
	}
	if rep.Outcome() == report.NoData {
		s.writeJSON(w, http.StatusNotFound, api.Message{Message: "No data found to generate the report."})
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, rep); err != nil {
		if errors.Is(err, report.ErrNoData) {
			s.writeJSON(w, http.StatusNotFound, api.Message{Message: "No data found to generate the report."})
			return
		}
		s.writeError(w, http.StatusInternalServerError, codeInternal, "Failed to generate report", err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", reportFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w) // client went away
}

func (s *Server) handleJCLNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := graph.ListJCLNodes(r.Context(), s.Graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeUpstream, "Failed to fetch JCL nodes", err)
		return
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleAllPrograms(w http.ResponseWriter, r *http.Request) {
	paths, err := graph.ListProgramPaths(r.Context(), s.Graph)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeUpstream, "Failed to fetch all programs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, paths)
}

func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	}
}

func (s *Server) handleSaveViews(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if tooLarge(err) {
			s.writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body too large", err)
			return
		}
		s.writeError(w, http.StatusBadRequest, codeValidation, "Error reading request body", err)
		return
	}

	batch, err := views.ParseViews(body)
	switch {
	case errors.Is(err, views.ErrNotArray):
		s.writeError(w, http.StatusBadRequest, codeValidation, "Invalid data format. Expected an array of views.", err)
		return
	case errors.Is(err, views.ErrMissingID):
		s.writeError(w, http.StatusBadRequest, codeValidation, "Invalid view structure. Each view must have at least an 'id'.", err)
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body", err)
		return
	}

	out, err := s.Views.Add(batch)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternal, "Error saving views", err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	id, err := viewID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeValidation, "Invalid view ID", err)
		return
	}
	out, err := s.Views.Delete(id)
	switch {
	case errors.Is(err, views.ErrNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("View with ID %s not found.", id), nil)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, codeInternal, "Error deleting view", err)
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

// viewID returns the decoded {id} segment. chi matches on RawPath when the
// request carries escapes Path cannot round-trip, such as %2F, and the
// parameter is still encoded in that case.
func viewID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

// handleUpload streams the "file" part to the staging directory and extracts
// it. Other parts are skipped.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, codeValidation, "No file uploaded", err)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, codeValidation, "No file uploaded", nil)
			return
		}
		if err != nil {
			s.uploadReadError(w, err, http.StatusBadRequest, codeValidation)
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close() // skipped part
			continue
		}

		name := part.FileName()
		if _, err := archive.SafeDirName(name); err != nil {
			_ = part.Close()
			s.writeError(w, http.StatusBadRequest, codeValidation, "No file uploaded", err)
			return
		}

		staged, err := s.Stager.Stage(part)
		_ = part.Close() // safe to ignore
		if err != nil {
			s.uploadReadError(w, err, http.StatusInternalServerError, codeInternal)
			return
		}

		dir, err := s.Archives.Ingest(staged, name)
		if err != nil {
			if errors.Is(err, archive.ErrInvalidName) {
				s.writeError(w, http.StatusBadRequest, codeValidation, "No file uploaded", err)
				return
			}
			if errors.Is(err, archive.ErrTooLarge) {
				s.writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Archive expands beyond the size limit", err)
				return
			}
			s.writeError(w, http.StatusInternalServerError, codeInternal, "Failed to extract the file", err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.UploadResult{
			Message:    "File uploaded and extracted successfully",
			ExtractDir: dir,
		})
		return
	}
}

// uploadReadError reports a failed body read, mapping the size limit to 413.
func (s *Server) uploadReadError(w http.ResponseWriter, err error, status int, code string) {
	if tooLarge(err) {
		s.writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Uploaded file too large", err)
		return
	}
	s.writeError(w, status, code, "Failed to receive the file", err)
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.Health{
		Status:    "ok",
		Timestamp: s.clock().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}
