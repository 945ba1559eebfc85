package httpadapter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lawknot/legal-assistant/internal/core/domain"
	"github.com/lawknot/legal-assistant/internal/core/ports"
	"github.com/lawknot/legal-assistant/internal/core/usecase"
)

const (
	uploadField = "document"
	// Room for multipart boundaries and part headers on top of the file limit.
	multipartOverhead = 64 << 10
	multipartMemory   = 1 << 20
)

type uploadResponse struct {
	Message    string                `json:"message"`
	DocumentID string                `json:"documentId"`
	Status     domain.DocumentStatus `json:"status"`
}

func (rt *Router) uploadLimit() int64 {
	if rt.cfg.UploadMaxBytes > 0 {
		return rt.cfg.UploadMaxBytes
	}
	return usecase.DefaultUploadMaxBytes
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := rt.uploadLimit()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > limit+multipartOverhead {
			rt.recordUpload("rejected", 0)
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", limit)))
			return
		}
		rt.recordUpload("rejected", 0)
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("no file uploaded")))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		rt.recordUpload("rejected", 0)
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("no file uploaded")))
		return
	}
	defer file.Close()

	doc, err := rt.deps.Intake.Upload(r.Context(), ports.UploadRequest{
		OwnerID:      owner,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		if mapErrorToHTTPStatus(err) < http.StatusInternalServerError {
			rt.recordUpload("rejected", 0)
		} else {
			rt.recordUpload("error", 0)
		}
		writeError(w, r, err)
		return
	}

	rt.recordUpload("accepted", doc.FileSize)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message:    "Document uploaded successfully",
		DocumentID: doc.ID,
		Status:     doc.Status,
	})
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := rt.deps.Analyses.ListDocuments(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := rt.deps.Analyses.GetAnalysis(r.Context(), owner, r.PathValue("id"), wait)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if rt.deps.Metrics != nil {
		mode, state := "read", "pending"
		if wait > 0 {
			mode = "wait"
		}
		if view.Status.IsTerminal() {
			state = "terminal"
		}
		rt.deps.Metrics.RecordPoll(serviceName, mode, state)
	}
	writeJSON(w, http.StatusOK, view)
}

// parseWait accepts a Go duration ("15s") or whole seconds ("15").
func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, domain.WrapError(domain.ErrInvalidInput, "parse wait", fmt.Errorf("invalid wait %q", raw))
		}
		d = time.Duration(n) * time.Second
	}
	if d < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse wait", fmt.Errorf("invalid wait %q", raw))
	}
	return d, nil
}

func (rt *Router) recordUpload(outcome string, size int64) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordUpload(serviceName, outcome, size)
	}
}
