package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joseph-ayodele/claims-processor/internal/async"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	"github.com/joseph-ayodele/claims-processor/internal/ocr"
)

const msgNoFiles = "At least one file is required"

type errorBody struct {
	Detail string `json:"detail"`
}

type extractTextResponse struct {
	Text        string   `json:"text"`
	Pages       int      `json:"pages"`
	Method      string   `json:"method"`
	PageMethods []string `json:"page_methods"`
	Warnings    []string `json:"warnings,omitempty"`
}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Health reports liveness and, when a database is wired, its reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
	}
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			common.LoggerFromContext(r.Context(), h.Logger).Warn("http.health.db_unreachable", "error", err)
			body["status"] = "unhealthy"
			body["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, body)
}

// ProcessClaim handles POST /process-claim with one or more multipart "files".
func (h *Handler) ProcessClaim(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerFromContext(r.Context(), h.Logger)

	uploads, status, err := h.readUploads(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	res, err := h.Processor.ProcessClaim(r.Context(), uploads)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, detailOf(err))
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "Internal processing error: "+err.Error())
		default:
			log.Error("http.process_claim.failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal processing error: "+err.Error())
		}
		return
	}

	if h.Claims != nil {
		if err := h.Claims.Save(r.Context(), res); err != nil {
			log.Error("http.process_claim.save_failed", "claim_id", res.ClaimID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// ExtractText handles POST /extract-text with a single multipart "file".
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.formMemory); err != nil {
		writeError(w, uploadStatus(err), "A single PDF file is required in field \"file\"")
		return
	}
	defer removeForm(r)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, uploadStatus(err), "A single PDF file is required in field \"file\"")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	name := filepath.Base(header.Filename)
	if err := ingest.CheckPDF(name, data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Extractor.ExtractResult(r.Context(), data)
	if err != nil {
		var xerr *ocr.ExtractionError
		if errors.As(err, &xerr) {
			writeError(w, http.StatusUnprocessableEntity, xerr.Error())
			return
		}
		common.LoggerFromContext(r.Context(), h.Logger).Error("http.extract_text.failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal processing error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, extractTextResponse{
		Text:        res.Text,
		Pages:       res.Pages,
		Method:      res.Method,
		PageMethods: res.PageMethods,
		Warnings:    res.Warnings,
	})
}

// SubmitClaim handles POST /claims: the claim is queued and processed in the background.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	uploads, status, err := h.readUploads(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	for _, u := range uploads {
		if err := ingest.CheckPDF(u.Name, u.Data); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job := async.ClaimJob{Name: r.FormValue("name"), Uploads: uploads}
	id, err := h.Queue.Submit(r.Context(), job)
	if err != nil {
		if errors.Is(err, async.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "queue is full: "+err.Error())
		return
	}
	h.Jobs.Queued(id, job.Name)
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: id, Status: "QUEUED"})
}

// GetJob handles GET /jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := h.Jobs.Get(id)
	if st, live := h.Queue.Status(id); live {
		if !ok {
			view, ok = JobView{JobID: id}, true
		}
		if !view.Finished() {
			view.Status = st
		}
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetClaim handles GET /claims/{id} from the repository.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Claims.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, detailOf(err))
			return
		}
		common.LoggerFromContext(r.Context(), h.Logger).Error("http.get_claim.failed", "claim_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readUploads parses the multipart "files" field. The returned status is meaningful only with an error.
func (h *Handler) readUploads(w http.ResponseWriter, r *http.Request) ([]ingest.Upload, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.formMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, http.StatusBadRequest, errors.New(msgNoFiles)
		}
		return nil, uploadStatus(err), err
	}
	// parts above formMemory spill to temp files; every upload is in memory once this returns
	defer removeForm(r)
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, http.StatusBadRequest, errors.New(msgNoFiles)
	}

	uploads := make([]ingest.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, uploadStatus(err), fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, ingest.Upload{Name: filepath.Base(fh.Filename), Data: data})
	}
	return uploads, 0, nil
}

// removeForm deletes the temp files of a parsed multipart form. The server's own cleanup only
// sees the original request, not the copies middleware hands down.
func removeForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// detailOf prefers an AppError's message over its coded Error() text.
func detailOf(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}
